package state

// Store bundles the three in-memory ledgers owned by the application root.
// The sync engine holds the only writable reference.
type Store struct {
	Messages *MessageList
	Chats    *ChatLedger
	Presence *PresenceLedger
}

// New creates an empty store.
func New() *Store {
	return &Store{
		Messages: NewMessageList(),
		Chats:    NewChatLedger(),
		Presence: NewPresenceLedger(),
	}
}
