// Package notify gates desktop-style notifications derived from inbound
// events: suppression of own and already-visible messages, plus
// deduplication of repeats within a short window.
package notify

import (
	"fmt"
	"sync"
	"time"
)

const (
	// DedupWindow is how long an identical notification stays suppressed.
	DedupWindow = 10 * time.Second
	// DefaultDismiss is the auto-dismiss duration passed to the notifier.
	DefaultDismiss = 10 * time.Second
)

// Notification is a candidate desktop notification.
type Notification struct {
	ChatID  int64
	Sender  string
	Text    string
	SentAt  int64 // unix ms
	Dismiss time.Duration
}

// Notifier presents a transient notification. Implementations invoke
// onClick when the user activates it; the click focuses the window and
// navigates to the chat.
type Notifier interface {
	Notify(n Notification, onClick func())
}

// FocusState reports whether the viewing surface would already show the
// message, making a notification redundant.
type FocusState interface {
	Focused() bool
	MessengerVisible() bool
}

// Gate deduplicates and rate-limits notifications.
type Gate struct {
	notifier Notifier
	focus    FocusState

	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

// NewGate creates a gate in front of the given notifier. focus may be nil
// (headless operation: never suppressed by focus).
func NewGate(notifier Notifier, focus FocusState) *Gate {
	return &Gate{
		notifier: notifier,
		focus:    focus,
		seen:     make(map[string]time.Time),
		now:      time.Now,
	}
}

// Offer considers a candidate notification and reports whether it was
// shown. Suppressed when: the event was authored by the local user; the
// surface is focused and the messenger view is visible; or an equivalent
// notification (sender + text, timestamp rounded to the second) was shown
// within the dedup window.
func (g *Gate) Offer(n Notification, fromMe bool, onClick func()) bool {
	if fromMe {
		return false
	}
	if g.focus != nil && g.focus.Focused() && g.focus.MessengerVisible() {
		return false
	}

	key := fmt.Sprintf("%s\x00%s\x00%d", n.Sender, n.Text, n.SentAt/1000)
	now := g.now()

	g.mu.Lock()
	if shown, ok := g.seen[key]; ok && now.Sub(shown) < DedupWindow {
		g.mu.Unlock()
		return false
	}
	g.seen[key] = now
	g.prune(now)
	g.mu.Unlock()

	if n.Dismiss == 0 {
		n.Dismiss = DefaultDismiss
	}
	g.notifier.Notify(n, onClick)
	return true
}

// prune drops expired dedup entries. Caller holds g.mu.
func (g *Gate) prune(now time.Time) {
	for key, shown := range g.seen {
		if now.Sub(shown) >= DedupWindow {
			delete(g.seen, key)
		}
	}
}
