package wire

// Outbound commands. Each is sent as a single JSON object over the same
// websocket the events arrive on.

// AccessTokenCmd authenticates the connection. Sent as the first frame
// after the transport opens.
type AccessTokenCmd struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// NewAccessToken builds the handshake frame.
func NewAccessToken(token string) AccessTokenCmd {
	return AccessTokenCmd{Type: "access_token", Token: token}
}

// JoinChatCmd asks the server to open (or create) the chat with a companion.
// The reply arrives as a "joined" event.
type JoinChatCmd struct {
	Type        string `json:"type"`
	CompanionID int64  `json:"companion_id"`
}

// NewJoinChat builds a join request.
func NewJoinChat(companionID int64) JoinChatCmd {
	return JoinChatCmd{Type: "join_chat", CompanionID: companionID}
}

// SendMessageCmd publishes a message into a chat. ClientNonce lets the
// server echo which local optimistic entry this send confirms.
type SendMessageCmd struct {
	Type          string   `json:"type"`
	SenderID      int64    `json:"sender_id"`
	SenderLogin   string   `json:"sender_login"`
	ChatID        int64    `json:"chat_id"`
	Text          string   `json:"text"`
	AttachedFiles []string `json:"attached_files,omitempty"`
	ClientNonce   string   `json:"client_nonce,omitempty"`
}

// NewSendMessage builds a message publication.
func NewSendMessage(senderID int64, senderLogin string, chatID int64, text, nonce string) SendMessageCmd {
	return SendMessageCmd{
		Type:        "send_message",
		SenderID:    senderID,
		SenderLogin: senderLogin,
		ChatID:      chatID,
		Text:        text,
		ClientNonce: nonce,
	}
}

// MarkAsReadCmd advances the reader's receipt cutoff for a chat.
type MarkAsReadCmd struct {
	Type           string `json:"type"`
	ChatID         int64  `json:"chat_id"`
	UserID         int64  `json:"user_id"`
	UntilTimestamp int64  `json:"until_timestamp"`
}

// NewMarkAsRead builds a read-receipt command.
func NewMarkAsRead(chatID, userID, until int64) MarkAsReadCmd {
	return MarkAsReadCmd{Type: "mark_as_read", ChatID: chatID, UserID: userID, UntilTimestamp: until}
}

// DeleteMessageCmd removes a message by id.
type DeleteMessageCmd struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
}

// NewDeleteMessage builds a delete command.
func NewDeleteMessage(messageID string) DeleteMessageCmd {
	return DeleteMessageCmd{Type: "delete_message", MessageID: messageID}
}

// EditMessageCmd replaces a message's text.
type EditMessageCmd struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
}

// NewEditMessage builds an edit command.
func NewEditMessage(messageID, text string) EditMessageCmd {
	return EditMessageCmd{Type: "edit_message", MessageID: messageID, Text: text}
}
