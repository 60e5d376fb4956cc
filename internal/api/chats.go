package api

import (
	"context"
	"fmt"

	"github.com/smolnikov/molva/internal/state"
)

type chatRow struct {
	ChatID         int64  `json:"chat_id"`
	CompanionID    int64  `json:"companion_id"`
	CompanionLogin string `json:"companion_login"`
	LastMessage    string `json:"last_message"`
	LastMessageAt  int64  `json:"last_message_at"`
	Unread         int    `json:"unread"`
}

// Chats fetches the chat list used to seed the ledger. The server-reported
// unread counts are authoritative only at this moment; afterwards the
// local ledger takes over.
func (c *Client) Chats(ctx context.Context) ([]state.ChatSummary, error) {
	var rows []chatRow
	if err := c.do(ctx, "GET", "/chats", nil, &rows); err != nil {
		return nil, fmt.Errorf("fetch chats: %w", err)
	}
	out := make([]state.ChatSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, state.ChatSummary{
			ChatID:         r.ChatID,
			CompanionID:    r.CompanionID,
			CompanionLogin: r.CompanionLogin,
			LastMessage:    r.LastMessage,
			LastMessageAt:  r.LastMessageAt,
			Unread:         r.Unread,
		})
	}
	return out, nil
}
