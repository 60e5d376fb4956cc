package store

import (
	"database/sql"
	"time"
)

// UpsertChat inserts or updates a cached chat row.
func (db *DB) UpsertChat(c *Chat) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO chats (chat_id, companion_id, companion_login, last_message, last_message_at, unread, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			companion_id = CASE WHEN excluded.companion_id != 0 THEN excluded.companion_id ELSE chats.companion_id END,
			companion_login = CASE WHEN excluded.companion_login != '' THEN excluded.companion_login ELSE chats.companion_login END,
			last_message = excluded.last_message,
			last_message_at = excluded.last_message_at,
			unread = excluded.unread,
			updated_at = excluded.updated_at`,
		c.ChatID, c.CompanionID, c.CompanionLogin, c.LastMessage, c.LastMessageAt, c.Unread, now)
	return err
}

// ListChats returns cached chats sorted by last message time descending.
func (db *DB) ListChats(limit int) ([]Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT chat_id, companion_id, companion_login, last_message, last_message_at, unread
		FROM chats
		ORDER BY last_message_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ChatID, &c.CompanionID, &c.CompanionLogin, &c.LastMessage, &c.LastMessageAt, &c.Unread); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// GetChat returns a single cached chat, nil when absent.
func (db *DB) GetChat(chatID int64) (*Chat, error) {
	var c Chat
	err := db.QueryRow(`
		SELECT chat_id, companion_id, companion_login, last_message, last_message_at, unread
		FROM chats WHERE chat_id = ?`, chatID).
		Scan(&c.ChatID, &c.CompanionID, &c.CompanionLogin, &c.LastMessage, &c.LastMessageAt, &c.Unread)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
