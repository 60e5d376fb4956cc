package store

import "time"

// UpsertMessage inserts or updates a cached message (idempotent on
// chat_id + msg_id). The read flag only ever advances.
func (db *DB) UpsertMessage(m *Message) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (chat_id, msg_id, sender_id, sender_login, text, from_me, read, sent_at, edited_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, msg_id) DO UPDATE SET
			text = excluded.text,
			read = MAX(messages.read, excluded.read),
			edited_at = excluded.edited_at`,
		m.ChatID, m.MsgID, m.SenderID, m.SenderLogin, m.Text, m.FromMe, m.Read, m.SentAt, m.EditedAt, now)
	return err
}

// ListMessages returns the latest messages of a chat in arrival order
// (insertion rowid, not timestamp).
func (db *DB) ListMessages(chatID int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT id, chat_id, msg_id, sender_id, sender_login, text, from_me, read, sent_at, edited_at
		FROM (
			SELECT * FROM messages WHERE chat_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.MsgID, &m.SenderID, &m.SenderLogin, &m.Text, &m.FromMe, &m.Read, &m.SentAt, &m.EditedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// UpdateMessageText applies an edit to a cached message.
func (db *DB) UpdateMessageText(chatID int64, msgID, text string, editedAt int64) error {
	_, err := db.Exec(`UPDATE messages SET text = ?, edited_at = ? WHERE chat_id = ? AND msg_id = ?`,
		text, editedAt, chatID, msgID)
	return err
}

// DeleteMessage removes a cached message. Deleting an absent row is a no-op.
func (db *DB) DeleteMessage(chatID int64, msgID string) error {
	_, err := db.Exec(`DELETE FROM messages WHERE chat_id = ? AND msg_id = ?`, chatID, msgID)
	return err
}

// MarkMessagesRead flags own messages up to the receipt cutoff as read and
// returns how many rows changed.
func (db *DB) MarkMessagesRead(chatID int64, until int64) (int64, error) {
	res, err := db.Exec(`
		UPDATE messages SET read = 1
		WHERE chat_id = ? AND from_me = 1 AND read = 0 AND sent_at <= ?`, chatID, until)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RenameMessageID swaps a synthetic local id for the server-confirmed one.
func (db *DB) RenameMessageID(chatID int64, oldID, newID string) error {
	_, err := db.Exec(`UPDATE messages SET msg_id = ? WHERE chat_id = ? AND msg_id = ?`,
		newID, chatID, oldID)
	return err
}
