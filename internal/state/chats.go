package state

import "sync"

// ChatSummary is one row in the chat list.
type ChatSummary struct {
	ChatID         int64
	CompanionID    int64
	CompanionLogin string
	LastMessage    string
	LastMessageAt  int64 // unix ms
	Unread         int
}

// ChatLedger maintains per-chat previews and unread counters, independent
// of which chat is currently open. The unread counter is seeded once from
// the server-reported value and locally authoritative afterwards.
type ChatLedger struct {
	mu    sync.RWMutex
	order []int64 // front = most recent
	byID  map[int64]*ChatSummary
}

// NewChatLedger creates an empty ledger.
func NewChatLedger() *ChatLedger {
	return &ChatLedger{byID: make(map[int64]*ChatSummary)}
}

// Seed replaces the ledger wholesale from a server-fetched chat list,
// preserving the given order.
func (c *ChatLedger) Seed(summaries []ChatSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = c.order[:0]
	c.byID = make(map[int64]*ChatSummary, len(summaries))
	for i := range summaries {
		s := summaries[i]
		if _, dup := c.byID[s.ChatID]; dup {
			continue
		}
		c.byID[s.ChatID] = &s
		c.order = append(c.order, s.ChatID)
	}
}

// Ensure creates a row for chatID if none exists yet (appended at the back;
// a preview update will move it to the front).
func (c *ChatLedger) Ensure(chatID, companionID int64, companionLogin string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byID[chatID]; ok {
		return
	}
	c.byID[chatID] = &ChatSummary{ChatID: chatID, CompanionID: companionID, CompanionLogin: companionLogin}
	c.order = append(c.order, chatID)
}

// IncrementUnread bumps the unread counter for a chat, creating the row if
// needed.
func (c *ChatLedger) IncrementUnread(chatID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.byID[chatID]
	if !ok {
		s = &ChatSummary{ChatID: chatID}
		c.byID[chatID] = s
		c.order = append(c.order, chatID)
	}
	s.Unread++
}

// DecrementUnread lowers the unread counter by the given amount, floored
// at zero.
func (c *ChatLedger) DecrementUnread(chatID int64, by int) {
	if by <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.byID[chatID]
	if !ok {
		return
	}
	s.Unread -= by
	if s.Unread < 0 {
		s.Unread = 0
	}
}

// MarkChatRead zeroes the unread counter, used when the chat is opened.
func (c *ChatLedger) MarkChatRead(chatID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.byID[chatID]; ok {
		s.Unread = 0
	}
}

// UpdateLastMessagePreview sets the preview text/time for a chat. When bump
// is true the chat moves to the front of the list; edit-originated updates
// pass bump=false so an edit never changes chat recency.
func (c *ChatLedger) UpdateLastMessagePreview(chatID int64, text string, at int64, bump bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.byID[chatID]
	if !ok {
		s = &ChatSummary{ChatID: chatID}
		c.byID[chatID] = s
		c.order = append(c.order, chatID)
	}
	s.LastMessage = text
	s.LastMessageAt = at
	if bump {
		c.moveToFront(chatID)
	}
}

func (c *ChatLedger) moveToFront(chatID int64) {
	for i, id := range c.order {
		if id == chatID {
			copy(c.order[1:i+1], c.order[:i])
			c.order[0] = chatID
			return
		}
	}
}

// Unread returns the unread counter for a chat.
func (c *ChatLedger) Unread(chatID int64) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.byID[chatID]; ok {
		return s.Unread
	}
	return 0
}

// Get returns a chat summary by id.
func (c *ChatLedger) Get(chatID int64) (ChatSummary, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.byID[chatID]; ok {
		return *s, true
	}
	return ChatSummary{}, false
}

// Snapshot returns the chat list in display order (most recent first).
func (c *ChatLedger) Snapshot() []ChatSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ChatSummary, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.byID[id])
	}
	return out
}
