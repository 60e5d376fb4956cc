package store

import (
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestUpsertMessageIdempotent(t *testing.T) {
	db := testDB(t)

	m := &Message{ChatID: 7, MsgID: "m1", SenderID: 99, Text: "v1", SentAt: 1000}
	if err := db.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}
	m.Text = "v2"
	if err := db.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages(7, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Text != "v2" {
		t.Errorf("text = %q, want v2", msgs[0].Text)
	}
}

func TestListMessagesArrivalOrder(t *testing.T) {
	db := testDB(t)

	// Insert with non-monotonic timestamps; listing must follow insertion.
	for _, m := range []Message{
		{ChatID: 7, MsgID: "m1", SentAt: 3000},
		{ChatID: 7, MsgID: "m2", SentAt: 1000},
		{ChatID: 7, MsgID: "m3", SentAt: 2000},
	} {
		if err := db.UpsertMessage(&m); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := db.ListMessages(7, 10)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"m1", "m2", "m3"}
	for i, w := range want {
		if msgs[i].MsgID != w {
			t.Errorf("msgs[%d] = %s, want %s", i, msgs[i].MsgID, w)
		}
	}
}

func TestListMessagesLimitKeepsNewest(t *testing.T) {
	db := testDB(t)
	for _, id := range []string{"m1", "m2", "m3"} {
		if err := db.UpsertMessage(&Message{ChatID: 7, MsgID: id}); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := db.ListMessages(7, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].MsgID != "m2" || msgs[1].MsgID != "m3" {
		t.Errorf("got %v, want newest two in arrival order", msgs)
	}
}

func TestMarkMessagesRead(t *testing.T) {
	db := testDB(t)
	for _, m := range []Message{
		{ChatID: 7, MsgID: "m1", FromMe: true, SentAt: 1000},
		{ChatID: 7, MsgID: "m2", FromMe: false, SentAt: 1500},
		{ChatID: 7, MsgID: "m3", FromMe: true, SentAt: 2000},
	} {
		if err := db.UpsertMessage(&m); err != nil {
			t.Fatal(err)
		}
	}

	n, err := db.MarkMessagesRead(7, 1500)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("marked %d, want 1 (only own m1)", n)
	}
	// Cutoff earlier than everything marks nothing.
	n, err = db.MarkMessagesRead(7, 1)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("marked %d, want 0", n)
	}
}

func TestRenameMessageID(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertMessage(&Message{ChatID: 7, MsgID: "local-abc", FromMe: true, Text: "hi"}); err != nil {
		t.Fatal(err)
	}
	if err := db.RenameMessageID(7, "local-abc", "srv-1"); err != nil {
		t.Fatal(err)
	}
	msgs, _ := db.ListMessages(7, 10)
	if len(msgs) != 1 || msgs[0].MsgID != "srv-1" {
		t.Errorf("rename not applied: %v", msgs)
	}
}

func TestOutboxLifecycle(t *testing.T) {
	db := testDB(t)

	if err := db.QueueOutbox("n1", 7, "hello"); err != nil {
		t.Fatal(err)
	}
	if err := db.QueueOutbox("n2", 8, "there"); err != nil {
		t.Fatal(err)
	}

	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 || pending[0].ClientNonce != "n1" {
		t.Fatalf("pending = %v", pending)
	}

	if err := db.MarkOutboxSending("n1"); err != nil {
		t.Fatal(err)
	}
	sending, err := db.SendingOutboxByChat(7)
	if err != nil {
		t.Fatal(err)
	}
	if len(sending) != 1 || sending[0].ClientNonce != "n1" {
		t.Fatalf("sending = %v", sending)
	}

	if err := db.MarkOutboxSent("n1", "srv-9"); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxFailed("n2", "boom"); err != nil {
		t.Fatal(err)
	}

	pending, err = db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %v, want empty", pending)
	}
}

func TestChatUpsertAndList(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertChat(&Chat{ChatID: 7, CompanionID: 42, CompanionLogin: "vanya", LastMessage: "hi", LastMessageAt: 2000, Unread: 3}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertChat(&Chat{ChatID: 8, LastMessage: "yo", LastMessageAt: 3000}); err != nil {
		t.Fatal(err)
	}
	// Preview-only update must not wipe companion info.
	if err := db.UpsertChat(&Chat{ChatID: 7, LastMessage: "hi again", LastMessageAt: 4000, Unread: 4}); err != nil {
		t.Fatal(err)
	}

	chats, err := db.ListChats(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 2 || chats[0].ChatID != 7 {
		t.Fatalf("chats = %v", chats)
	}
	if chats[0].CompanionLogin != "vanya" || chats[0].Unread != 4 {
		t.Errorf("merge lost fields: %+v", chats[0])
	}

	c, err := db.GetChat(99)
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Errorf("GetChat(99) = %+v, want nil", c)
	}
}

func TestCheckpoint(t *testing.T) {
	db := testDB(t)
	if err := db.SetCheckpoint("chat_seed_at", "1700000000"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetCheckpoint("chat_seed_at", "1700000001"); err != nil {
		t.Fatal(err)
	}
	v, err := db.GetCheckpoint("chat_seed_at")
	if err != nil {
		t.Fatal(err)
	}
	if v != "1700000001" {
		t.Errorf("checkpoint = %q", v)
	}
}
