package store

// Chat is a cached chat-list row.
type Chat struct {
	ChatID         int64
	CompanionID    int64
	CompanionLogin string
	LastMessage    string
	LastMessageAt  int64
	Unread         int
}

// Message is a cached message. ID is the sqlite rowid and encodes arrival
// order; MsgID is the protocol identifier.
type Message struct {
	ID          int64
	ChatID      int64
	MsgID       string
	SenderID    int64
	SenderLogin string
	Text        string
	FromMe      bool
	Read        bool
	SentAt      int64
	EditedAt    int64
}

// OutboxEntry is a pending outgoing message keyed by the client nonce.
type OutboxEntry struct {
	ID           int64
	ClientNonce  string
	ChatID       int64
	Text         string
	Status       string // queued, sending, sent, failed
	ErrorMessage string
	ServerMsgID  string
}
