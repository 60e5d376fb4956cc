package sync

import (
	"fmt"
	gosync "sync"
	"testing"

	"github.com/smolnikov/molva/internal/notify"
	"github.com/smolnikov/molva/internal/state"
	"go.uber.org/zap"
)

type fakeNotifier struct {
	mu    gosync.Mutex
	notes []notify.Notification
}

func (f *fakeNotifier) Notify(n notify.Notification, onClick func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, n)
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.notes)
}

func newTestEngine(t *testing.T) (*Engine, *state.Store, *fakeNotifier) {
	t.Helper()
	sender := &recordingSender{}
	notifier := &fakeNotifier{}
	st := state.New()
	logger := zap.NewNop()
	corr := NewCorrelator(sender, logger)
	e := NewEngine(Identity{UserID: 1, Login: "me"}, sender, corr, st,
		notify.NewGate(notifier, nil), nil, nil, logger)
	return e, st, notifier
}

// openChat simulates the server's joined reply putting the engine in a room.
func openChat(e *Engine, chatID int64) {
	e.HandleFrame([]byte(fmt.Sprintf(`{"type":"joined","chat_id":%d,"companion_id":42}`, chatID)))
}

func TestMessageForOpenChatAppends(t *testing.T) {
	e, st, _ := newTestEngine(t)
	openChat(e, 7)
	st.Messages.SetAll(7, nil)

	e.HandleFrame([]byte(`{"type":"message","id":"m1","chat_id":7,"sender_id":2,"sender_login":"ann","text":"hi","timestamp":1000}`))

	if st.Messages.Len() != 1 {
		t.Fatalf("len = %d, want 1", st.Messages.Len())
	}
	m, _ := st.Messages.Get("m1")
	if m.Text != "hi" || m.FromMe {
		t.Errorf("message = %+v", m)
	}
	// Open chat: counted as seen, not unread.
	if got := st.Chats.Unread(7); got != 0 {
		t.Errorf("unread = %d, want 0", got)
	}
	sum, _ := st.Chats.Get(7)
	if sum.LastMessage != "hi" || sum.LastMessageAt != 1000 {
		t.Errorf("preview = %+v", sum)
	}
}

func TestMessageForOtherChatIncrementsUnread(t *testing.T) {
	e, st, _ := newTestEngine(t)
	openChat(e, 7)
	st.Messages.SetAll(7, nil)

	e.HandleFrame([]byte(`{"type":"message","id":"m2","chat_id":8,"sender_id":3,"text":"yo","timestamp":2000}`))

	if st.Messages.Len() != 0 {
		t.Errorf("open chat gained a foreign message")
	}
	if got := st.Chats.Unread(8); got != 1 {
		t.Errorf("unread(8) = %d, want 1", got)
	}
	// New traffic moves the chat to the front of the list.
	if snap := st.Chats.Snapshot(); len(snap) == 0 || snap[0].ChatID != 8 {
		t.Errorf("chat 8 not at front: %+v", snap)
	}
}

func TestOwnMessageNeverCountsUnread(t *testing.T) {
	e, st, notifier := newTestEngine(t)
	openChat(e, 7)

	// Own message delivered for a chat that is not open (sent from another
	// device): preview updates, unread stays zero, no notification.
	e.HandleFrame([]byte(`{"type":"message","id":"m3","chat_id":8,"sender_id":1,"text":"mine","timestamp":3000}`))

	if got := st.Chats.Unread(8); got != 0 {
		t.Errorf("unread(8) = %d, want 0", got)
	}
	if notifier.count() != 0 {
		t.Error("own message produced a notification")
	}
}

func TestEditShapedMessageUpdatesInPlace(t *testing.T) {
	e, st, _ := newTestEngine(t)
	openChat(e, 7)
	st.Messages.SetAll(7, []state.Message{
		{ID: "m1", ChatID: 7, SenderID: 2, Text: "first", SentAt: 1000},
		{ID: "m2", ChatID: 7, SenderID: 2, Text: "second", SentAt: 2000},
	})
	st.Chats.UpdateLastMessagePreview(7, "second", 2000, true)

	// Same id, edited_at present: in-place edit, no append, no preview bump.
	e.HandleFrame([]byte(`{"type":"message","id":"m1","chat_id":7,"sender_id":2,"text":"first!","timestamp":1000,"edited_at":5000}`))

	if st.Messages.Len() != 2 {
		t.Fatalf("len = %d, want 2", st.Messages.Len())
	}
	snap := st.Messages.Snapshot()
	if snap[0].ID != "m1" || snap[0].Text != "first!" || snap[0].EditedAt != 5000 {
		t.Errorf("edited message = %+v", snap[0])
	}
	sum, _ := st.Chats.Get(7)
	if sum.LastMessage != "second" {
		t.Errorf("edit bumped the preview to %q", sum.LastMessage)
	}
}

func TestMessageEditedEvent(t *testing.T) {
	e, st, _ := newTestEngine(t)
	openChat(e, 7)
	st.Messages.SetAll(7, []state.Message{
		{ID: "m1", ChatID: 7, SenderID: 2, Text: "typo", SentAt: 1000},
	})
	st.Chats.IncrementUnread(9)

	e.HandleFrame([]byte(`{"type":"message_edited","id":"m1","text":"fixed","edited_at":4000}`))

	m, _ := st.Messages.Get("m1")
	if m.Text != "fixed" || m.EditedAt != 4000 {
		t.Errorf("message = %+v", m)
	}
	if got := st.Chats.Unread(9); got != 1 {
		t.Errorf("edit touched an unrelated unread counter")
	}
}

func TestMessageDeletedIsIdempotent(t *testing.T) {
	e, st, _ := newTestEngine(t)
	openChat(e, 7)
	st.Messages.SetAll(7, []state.Message{
		{ID: "m1", ChatID: 7, Text: "bye", SentAt: 1000},
	})

	e.HandleFrame([]byte(`{"type":"message_deleted","id":"m1"}`))
	e.HandleFrame([]byte(`{"type":"message_deleted","id":"m1"}`)) // replay

	if st.Messages.Len() != 0 {
		t.Errorf("len = %d, want 0", st.Messages.Len())
	}
}

func TestReadReceiptDecrementsUnread(t *testing.T) {
	e, st, _ := newTestEngine(t)
	openChat(e, 7)
	st.Messages.SetAll(7, []state.Message{
		{ID: "m1", ChatID: 7, SenderID: 1, Text: "a", SentAt: 1000, FromMe: true},
		{ID: "m2", ChatID: 7, SenderID: 1, Text: "b", SentAt: 2000, FromMe: true},
		{ID: "m3", ChatID: 7, SenderID: 1, Text: "c", SentAt: 3000, FromMe: true},
	})
	st.Chats.IncrementUnread(7)
	st.Chats.IncrementUnread(7)
	st.Chats.IncrementUnread(7)

	// Companion read up to 2000: two messages flagged, counter drops by two.
	e.HandleFrame([]byte(`{"type":"mark_as_read","chat_id":7,"user_id":42,"until_timestamp":2000}`))

	for _, tc := range []struct {
		id   string
		read bool
	}{{"m1", true}, {"m2", true}, {"m3", false}} {
		m, _ := st.Messages.Get(tc.id)
		if m.Read != tc.read {
			t.Errorf("%s read = %v, want %v", tc.id, m.Read, tc.read)
		}
	}
	if got := st.Chats.Unread(7); got != 1 {
		t.Errorf("unread = %d, want 1", got)
	}

	// A receipt older than everything decrements nothing.
	e.HandleFrame([]byte(`{"type":"mark_as_read","chat_id":7,"user_id":42,"until_timestamp":500}`))
	if got := st.Chats.Unread(7); got != 1 {
		t.Errorf("stale receipt changed unread to %d", got)
	}
}

func TestOwnReadReceiptSkipsDecrement(t *testing.T) {
	e, st, _ := newTestEngine(t)
	openChat(e, 7)
	st.Messages.SetAll(7, []state.Message{
		{ID: "m1", ChatID: 7, SenderID: 1, Text: "a", SentAt: 1000, FromMe: true},
	})
	st.Chats.IncrementUnread(7)

	// Local user's own receipt echoed back: flags advance, counter untouched.
	e.HandleFrame([]byte(`{"type":"read","room_id":7,"reader_id":1,"until":2000}`))

	m, _ := st.Messages.Get("m1")
	if !m.Read {
		t.Error("own receipt did not flag the message")
	}
	if got := st.Chats.Unread(7); got != 1 {
		t.Errorf("own receipt changed unread to %d", got)
	}
}

func TestPresenceLastWriteWins(t *testing.T) {
	e, st, _ := newTestEngine(t)

	e.HandleFrame([]byte(`{"type":"user_status_changed","user_id":5,"is_online":true,"last_seen":9000}`))
	// Older embedded timestamp but later arrival: it still wins.
	e.HandleFrame([]byte(`{"type":"user_status_changed","user_id":5,"is_online":false,"last_seen":100}`))

	if st.Presence.IsOnline(5) {
		t.Error("stale arrival-order loser kept user online")
	}
	if got, _ := st.Presence.LastSeen(5); got != 100 {
		t.Errorf("last seen = %d, want 100", got)
	}
}

func TestMalformedAndUnknownFramesAreNoOps(t *testing.T) {
	e, st, _ := newTestEngine(t)
	openChat(e, 7)
	st.Messages.SetAll(7, []state.Message{{ID: "m1", ChatID: 7, Text: "x", SentAt: 1}})

	e.HandleFrame([]byte(`{not json`))
	e.HandleFrame([]byte(`{"type":"typing_started","chat_id":7}`))
	e.HandleFrame([]byte(`{"type":"message","chat_id":7,"sender_id":2}`)) // no id

	if st.Messages.Len() != 1 {
		t.Errorf("len = %d after garbage frames, want 1", st.Messages.Len())
	}
}

func TestNonceSupersedesOptimisticID(t *testing.T) {
	e, st, _ := newTestEngine(t)
	openChat(e, 7)
	st.Messages.SetAll(7, []state.Message{
		{ID: "local-abc", ChatID: 7, SenderID: 1, Text: "hello", SentAt: 1000, FromMe: true},
	})

	e.HandleFrame([]byte(`{"type":"message","id":"srv-9","chat_id":7,"sender_id":1,"text":"hello","timestamp":1500,"client_nonce":"abc"}`))

	if st.Messages.Len() != 1 {
		t.Fatalf("len = %d, want 1 (confirmation duplicated the message)", st.Messages.Len())
	}
	if st.Messages.Contains("local-abc") {
		t.Error("synthetic id survived confirmation")
	}
	m, ok := st.Messages.Get("srv-9")
	if !ok || m.Text != "hello" {
		t.Errorf("confirmed message = %+v (found %v)", m, ok)
	}
}

func TestTextMatchFallbackWithoutNonceEcho(t *testing.T) {
	e, st, _ := newTestEngine(t)
	openChat(e, 7)
	st.Messages.SetAll(7, []state.Message{
		{ID: "local-abc", ChatID: 7, SenderID: 1, Text: "hello", SentAt: 1000, FromMe: true},
	})

	e.HandleFrame([]byte(`{"type":"message","id":"srv-9","chat_id":7,"sender_id":1,"text":"hello","timestamp":1500}`))

	if st.Messages.Contains("local-abc") {
		t.Error("optimistic entry not matched by text")
	}
	if !st.Messages.Contains("srv-9") {
		t.Error("server id missing after fallback confirmation")
	}
	if st.Messages.Len() != 1 {
		t.Errorf("len = %d, want 1", st.Messages.Len())
	}
}

func TestNotificationOfferedForForeignMessage(t *testing.T) {
	e, _, notifier := newTestEngine(t)
	openChat(e, 7)

	e.HandleFrame([]byte(`{"type":"message","id":"m1","chat_id":8,"sender_id":3,"sender_login":"bob","text":"ping","timestamp":1000}`))
	// Identical repeat within the dedup window stays silent.
	e.HandleFrame([]byte(`{"type":"message","id":"m1b","chat_id":8,"sender_id":3,"sender_login":"bob","text":"ping","timestamp":1000}`))

	if notifier.count() != 1 {
		t.Errorf("notifications = %d, want 1", notifier.count())
	}
}

func TestMessageTypeAlias(t *testing.T) {
	e, st, _ := newTestEngine(t)
	openChat(e, 7)
	st.Messages.SetAll(7, nil)

	e.HandleFrame([]byte(`{"message_type":"text","id":"m1","chat_id":7,"sender_id":2,"text":"aliased","timestamp":1000}`))

	if !st.Messages.Contains("m1") {
		t.Error("message_type alias not honored")
	}
}
