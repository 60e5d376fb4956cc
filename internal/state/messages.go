// Package state holds the in-memory session state: the open chat's message
// list, the chat list with unread counters, and the presence ledger. The
// sync engine is the sole writer; everything else reads through the
// interfaces in views.go.
package state

import "sync"

// Message is one unit of conversation content in the open chat.
type Message struct {
	ID            string
	ChatID        int64
	SenderID      int64
	SenderLogin   string
	Text          string
	AttachedFiles []string
	SentAt        int64 // unix ms
	EditedAt      int64 // unix ms, 0 = never edited
	Read          bool  // meaningful only for FromMe messages
	FromMe        bool
	Pinned        bool
}

// MessageList is the ordered message collection for the currently open chat.
// Append order equals arrival order and is the authoritative display order:
// the list is never re-sorted by timestamp, since server timestamps are not
// guaranteed monotonic with arrival under retry/replay.
type MessageList struct {
	mu     sync.RWMutex
	chatID int64
	msgs   []Message
	index  map[string]int
}

// NewMessageList creates an empty list.
func NewMessageList() *MessageList {
	return &MessageList{index: make(map[string]int)}
}

// SetAll replaces the whole list, used on chat switch and initial load.
// Duplicate ids keep the first occurrence.
func (l *MessageList) SetAll(chatID int64, msgs []Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.chatID = chatID
	l.msgs = l.msgs[:0]
	l.index = make(map[string]int, len(msgs))
	for _, m := range msgs {
		if _, dup := l.index[m.ID]; dup {
			continue
		}
		l.index[m.ID] = len(l.msgs)
		l.msgs = append(l.msgs, m)
	}
}

// ChatID returns the chat the list currently belongs to (0 = none).
func (l *MessageList) ChatID() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.chatID
}

// Append adds a message at the end. If a message with the same id already
// exists it is updated in place instead, keeping its position. Returns true
// when a new entry was added.
func (l *MessageList) Append(m Message) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i, ok := l.index[m.ID]; ok {
		read := l.msgs[i].Read
		l.msgs[i] = m
		// Read flag advances monotonically, never regresses.
		l.msgs[i].Read = l.msgs[i].Read || read
		return false
	}
	l.index[m.ID] = len(l.msgs)
	l.msgs = append(l.msgs, m)
	return true
}

// ApplyEdit updates text and edit timestamp of the message with the given
// id, in place. Position is untouched. Returns false if the id is unknown.
func (l *MessageList) ApplyEdit(id, text string, editedAt int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.index[id]
	if !ok {
		return false
	}
	l.msgs[i].Text = text
	l.msgs[i].EditedAt = editedAt
	return true
}

// RemoveByID deletes a message. Idempotent: removing an unknown id is a
// no-op returning false.
func (l *MessageList) RemoveByID(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.index[id]
	if !ok {
		return false
	}
	l.msgs = append(l.msgs[:i], l.msgs[i+1:]...)
	delete(l.index, id)
	for j := i; j < len(l.msgs); j++ {
		l.index[l.msgs[j].ID] = j
	}
	return true
}

// ReplaceID swaps a synthetic local id for the server-confirmed one,
// keeping position and content. No-op if oldID is unknown or newID is
// already taken.
func (l *MessageList) ReplaceID(oldID, newID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.index[oldID]
	if !ok {
		return false
	}
	if _, taken := l.index[newID]; taken {
		return false
	}
	delete(l.index, oldID)
	l.msgs[i].ID = newID
	l.index[newID] = i
	return true
}

// ReconcileReadUntil flags own messages with SentAt <= until as read and
// returns how many were newly flagged. The flag never regresses. Receipts
// for a different chat than the one held are ignored.
func (l *MessageList) ReconcileReadUntil(chatID, until int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if chatID != l.chatID {
		return 0
	}
	n := 0
	for i := range l.msgs {
		m := &l.msgs[i]
		if m.FromMe && !m.Read && m.SentAt <= until {
			m.Read = true
			n++
		}
	}
	return n
}

// SetPinned flags or unflags a message as pinned. Returns false if the id
// is unknown.
func (l *MessageList) SetPinned(id string, pinned bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.index[id]
	if !ok {
		return false
	}
	l.msgs[i].Pinned = pinned
	return true
}

// Pinned returns the pinned messages in arrival order.
func (l *MessageList) Pinned() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Message
	for _, m := range l.msgs {
		if m.Pinned {
			out = append(out, m)
		}
	}
	return out
}

// Get returns a message by id.
func (l *MessageList) Get(id string) (Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.index[id]
	if !ok {
		return Message{}, false
	}
	return l.msgs[i], true
}

// Contains reports whether a message with the id is held.
func (l *MessageList) Contains(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.index[id]
	return ok
}

// Len returns the number of held messages.
func (l *MessageList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.msgs)
}

// Snapshot returns a copy of the list in arrival order.
func (l *MessageList) Snapshot() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Message, len(l.msgs))
	copy(out, l.msgs)
	return out
}
