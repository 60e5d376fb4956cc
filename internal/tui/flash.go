package tui

import (
	"fmt"
	"sync"
	"time"

	"github.com/smolnikov/molva/internal/notify"
)

// Flash renders gated notifications as a transient status-bar message. It
// is the TUI's notify.Notifier: there is no desktop surface, so the flash
// line is where notifications land.
type Flash struct {
	mu      sync.RWMutex
	message string
	expires time.Time
	onClick func()
}

// Notify implements notify.Notifier.
func (f *Flash) Notify(n notify.Notification, onClick func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.message = fmt.Sprintf("%s: %s", n.Sender, clip(n.Text, 60))
	f.expires = time.Now().Add(n.Dismiss)
	f.onClick = onClick
}

// Set stores a plain flash message (errors, confirmations).
func (f *Flash) Set(msg string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.message = msg
	f.expires = time.Now().Add(d)
	f.onClick = nil
}

// Get returns the current flash message, or empty if expired.
func (f *Flash) Get() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if time.Now().After(f.expires) {
		return ""
	}
	return f.message
}

// Activate fires the notification's click action, if one is pending.
func (f *Flash) Activate() {
	f.mu.Lock()
	onClick := f.onClick
	f.onClick = nil
	f.mu.Unlock()
	if onClick != nil {
		onClick()
	}
}

var _ notify.Notifier = (*Flash)(nil)

func clip(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-1] + "…"
}
