package notify

import (
	"testing"
	"time"
)

type recordingNotifier struct {
	shown []Notification
}

func (r *recordingNotifier) Notify(n Notification, onClick func()) {
	r.shown = append(r.shown, n)
}

type fakeFocus struct {
	focused   bool
	messenger bool
}

func (f *fakeFocus) Focused() bool          { return f.focused }
func (f *fakeFocus) MessengerVisible() bool { return f.messenger }

func gateAt(t *testing.T, start time.Time) (*Gate, *recordingNotifier, *time.Time) {
	t.Helper()
	rec := &recordingNotifier{}
	g := NewGate(rec, nil)
	clock := start
	g.now = func() time.Time { return clock }
	return g, rec, &clock
}

func TestDuplicateWithinWindowShownOnce(t *testing.T) {
	g, rec, clock := gateAt(t, time.Unix(1000, 0))

	n := Notification{ChatID: 7, Sender: "vanya", Text: "hi", SentAt: 1000_000}
	if !g.Offer(n, false, nil) {
		t.Fatal("first offer suppressed")
	}
	*clock = clock.Add(3 * time.Second)
	if g.Offer(n, false, nil) {
		t.Error("duplicate within window shown")
	}
	if len(rec.shown) != 1 {
		t.Errorf("shown %d notifications, want 1", len(rec.shown))
	}
}

func TestDuplicateAfterWindowShownAgain(t *testing.T) {
	g, rec, clock := gateAt(t, time.Unix(1000, 0))

	n := Notification{Sender: "vanya", Text: "hi", SentAt: 1000_000}
	g.Offer(n, false, nil)
	*clock = clock.Add(DedupWindow + time.Second)
	if !g.Offer(n, false, nil) {
		t.Error("offer after window suppressed")
	}
	if len(rec.shown) != 2 {
		t.Errorf("shown %d, want 2", len(rec.shown))
	}
}

func TestOwnMessagesSuppressed(t *testing.T) {
	g, rec, _ := gateAt(t, time.Unix(1000, 0))
	if g.Offer(Notification{Sender: "me", Text: "x"}, true, nil) {
		t.Error("own message shown")
	}
	if len(rec.shown) != 0 {
		t.Errorf("shown %d, want 0", len(rec.shown))
	}
}

func TestFocusedMessengerSuppressed(t *testing.T) {
	rec := &recordingNotifier{}
	focus := &fakeFocus{focused: true, messenger: true}
	g := NewGate(rec, focus)

	if g.Offer(Notification{Sender: "vanya", Text: "hi"}, false, nil) {
		t.Error("shown while messenger focused")
	}

	// Focused but on a different view: notification goes through.
	focus.messenger = false
	if !g.Offer(Notification{Sender: "vanya", Text: "hi"}, false, nil) {
		t.Error("suppressed while messenger not visible")
	}
}

func TestDefaultDismissApplied(t *testing.T) {
	g, rec, _ := gateAt(t, time.Unix(1000, 0))
	g.Offer(Notification{Sender: "a", Text: "b"}, false, nil)
	if rec.shown[0].Dismiss != DefaultDismiss {
		t.Errorf("dismiss = %v, want %v", rec.shown[0].Dismiss, DefaultDismiss)
	}
}
