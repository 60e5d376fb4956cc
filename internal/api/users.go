package api

import (
	"context"
	"fmt"
)

// User is a chat-service account.
type User struct {
	ID       int64  `json:"id"`
	Login    string `json:"login"`
	IsOnline bool   `json:"is_online"`
	LastSeen int64  `json:"last_seen"`
}

// UserByID looks up one user.
func (c *Client) UserByID(ctx context.Context, id int64) (*User, error) {
	var u User
	if err := c.do(ctx, "GET", fmt.Sprintf("/users/%d", id), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
