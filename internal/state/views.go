package state

// Read-only views handed to UI components. The sync engine keeps the only
// writable references; readers observe but never mutate.

// MessageReader is the read model of the open chat's message list.
type MessageReader interface {
	ChatID() int64
	Len() int
	Snapshot() []Message
	Pinned() []Message
	Get(id string) (Message, bool)
}

// ChatReader is the read model of the chat list.
type ChatReader interface {
	Snapshot() []ChatSummary
	Get(chatID int64) (ChatSummary, bool)
	Unread(chatID int64) int
}

// PresenceReader is the read model of the presence ledger.
type PresenceReader interface {
	IsOnline(userID int64) bool
	LastSeen(userID int64) (int64, bool)
}

var (
	_ MessageReader  = (*MessageList)(nil)
	_ ChatReader     = (*ChatLedger)(nil)
	_ PresenceReader = (*PresenceLedger)(nil)
)
