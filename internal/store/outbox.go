package store

import "time"

// QueueOutbox adds an outgoing message to the send outbox.
func (db *DB) QueueOutbox(clientNonce string, chatID int64, text string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO outbox (client_nonce, chat_id, text, status, created_at, updated_at)
		VALUES (?, ?, ?, 'queued', ?, ?)`,
		clientNonce, chatID, text, now, now)
	return err
}

// MarkOutboxSending moves an entry to 'sending'.
func (db *DB) MarkOutboxSending(clientNonce string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'sending', updated_at = ? WHERE client_nonce = ?`, now, clientNonce)
	return err
}

// MarkOutboxSent records the server-confirmed message id for an entry.
func (db *DB) MarkOutboxSent(clientNonce, serverMsgID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'sent', server_msg_id = ?, updated_at = ? WHERE client_nonce = ?`, serverMsgID, now, clientNonce)
	return err
}

// MarkOutboxFailed records a send failure. Failed entries are not retried;
// the user re-triggers the send.
func (db *DB) MarkOutboxFailed(clientNonce, errMsg string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'failed', error_message = ?, updated_at = ? WHERE client_nonce = ?`, errMsg, now, clientNonce)
	return err
}

// PendingOutbox returns entries still waiting to be sent, oldest first.
func (db *DB) PendingOutbox() ([]OutboxEntry, error) {
	rows, err := db.Query(`
		SELECT id, client_nonce, chat_id, text, status, error_message, server_msg_id
		FROM outbox WHERE status = 'queued' ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.ClientNonce, &e.ChatID, &e.Text, &e.Status, &e.ErrorMessage, &e.ServerMsgID); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SendingOutboxByChat returns in-flight entries for a chat, oldest first.
// Used to correlate server confirmations that lack a nonce echo.
func (db *DB) SendingOutboxByChat(chatID int64) ([]OutboxEntry, error) {
	rows, err := db.Query(`
		SELECT id, client_nonce, chat_id, text, status, error_message, server_msg_id
		FROM outbox WHERE chat_id = ? AND status = 'sending' ORDER BY created_at ASC`, chatID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.ClientNonce, &e.ChatID, &e.Text, &e.Status, &e.ErrorMessage, &e.ServerMsgID); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
