package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// refreshMargin is how close to expiry a cached token is still reused.
const refreshMargin = 30 * time.Second

// TokenSource issues short-lived websocket access tokens, caching the
// current one until it nears its exp claim.
type TokenSource struct {
	client *Client
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
	userID  int64
	login   string
}

// NewTokenSource creates a token source over the REST client.
func NewTokenSource(client *Client, logger *zap.Logger) *TokenSource {
	return &TokenSource{client: client, logger: logger, now: time.Now}
}

type wsTokenResponse struct {
	Token string `json:"token"`
}

// AccessToken returns a websocket token, fetching a fresh one when the
// cached token is absent or within 30s of its expiry.
func (t *TokenSource) AccessToken(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && t.now().Before(t.expires.Add(-refreshMargin)) {
		return t.token, nil
	}

	var resp wsTokenResponse
	if err := t.client.do(ctx, "POST", "/auth/ws-token", nil, &resp); err != nil {
		return "", fmt.Errorf("fetch ws token: %w", err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("auth endpoint returned an empty token")
	}

	t.token = resp.Token
	t.expires, t.userID, t.login = inspectClaims(resp.Token)
	if t.expires.IsZero() {
		// Opaque token: refetch on every connect rather than guessing a TTL.
		t.logger.Debug("ws token carries no exp claim, caching disabled")
		t.expires = t.now()
	}
	return t.token, nil
}

// Identity returns the user id and login claims of the last issued token.
// Zero values until the first successful AccessToken call.
func (t *TokenSource) Identity() (int64, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.userID, t.login
}

type wsClaims struct {
	UserID int64  `json:"user_id"`
	Login  string `json:"login"`
	jwt.RegisteredClaims
}

// inspectClaims reads exp/user_id/login from the token without verifying
// the signature. The server is the authority; the client only schedules
// refreshes and labels its own messages.
func inspectClaims(token string) (time.Time, int64, string) {
	var claims wsClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return time.Time{}, 0, ""
	}
	var exp time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	return exp, claims.UserID, claims.Login
}
