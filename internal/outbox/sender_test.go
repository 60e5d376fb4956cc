package outbox

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/smolnikov/molva/internal/store"
	"github.com/smolnikov/molva/internal/wire"
	"go.uber.org/zap"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type fakeConn struct {
	mu   sync.Mutex
	sent []any
	err  error
}

func (f *fakeConn) Send(cmd any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, cmd)
	return nil
}

type fakeEcho struct {
	mu     sync.Mutex
	echoed []string
	failed []string
}

func (f *fakeEcho) LocalEcho(entry store.OutboxEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.echoed = append(f.echoed, entry.ClientNonce)
}

func (f *fakeEcho) SendFailed(entry store.OutboxEntry, cause error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, entry.ClientNonce)
}

func TestDrainSendsQueuedEntries(t *testing.T) {
	db := testDB(t)
	conn := &fakeConn{}
	echo := &fakeEcho{}
	s := NewSender(db, conn, echo, 1, "me", zap.NewNop())

	if err := db.QueueOutbox("n1", 7, "first"); err != nil {
		t.Fatal(err)
	}
	if err := db.QueueOutbox("n2", 7, "second"); err != nil {
		t.Fatal(err)
	}

	s.drain()

	if len(conn.sent) != 2 {
		t.Fatalf("sent %d commands, want 2", len(conn.sent))
	}
	cmd := conn.sent[0].(wire.SendMessageCmd)
	if cmd.Type != "send_message" || cmd.ClientNonce != "n1" || cmd.Text != "first" || cmd.SenderID != 1 {
		t.Errorf("first command = %+v", cmd)
	}
	if len(echo.echoed) != 2 {
		t.Errorf("echoed %d entries, want 2", len(echo.echoed))
	}

	// Everything left 'queued', so a second drain sends nothing again.
	s.drain()
	if len(conn.sent) != 2 {
		t.Errorf("second drain re-sent entries: %d total", len(conn.sent))
	}

	inflight, err := db.SendingOutboxByChat(7)
	if err != nil {
		t.Fatal(err)
	}
	if len(inflight) != 2 {
		t.Errorf("in-flight entries = %d, want 2", len(inflight))
	}
}

func TestDrainMarksFailedAndRollsBack(t *testing.T) {
	db := testDB(t)
	conn := &fakeConn{err: errors.New("not connected")}
	echo := &fakeEcho{}
	s := NewSender(db, conn, echo, 1, "me", zap.NewNop())

	if err := db.QueueOutbox("n1", 7, "doomed"); err != nil {
		t.Fatal(err)
	}

	s.drain()

	if len(echo.failed) != 1 || echo.failed[0] != "n1" {
		t.Errorf("failed echoes = %v, want [n1]", echo.failed)
	}
	// Failed entries are not retried.
	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("failed entry still pending: %+v", pending)
	}
}
