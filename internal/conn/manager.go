// Package conn owns the websocket transport to the chat server: dialing,
// the token handshake, ordered frame delivery, and teardown.
package conn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/smolnikov/molva/internal/status"
	"github.com/smolnikov/molva/internal/wire"
	"go.uber.org/zap"
)

const (
	handshakeTimeout = 10 * time.Second
	writeWait        = 10 * time.Second
)

// ErrNotConnected is returned by Send when no transport is open.
var ErrNotConnected = errors.New("connection is not open")

// TokenSource provides the short-lived token transmitted as the first
// frame after the transport opens.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// FrameHandler receives raw inbound frames. It is invoked synchronously
// from the read loop, so handler execution order equals frame arrival
// order.
type FrameHandler func(frame []byte)

// Manager owns exactly one websocket connection per session. It does not
// retry: reconnection policy belongs to the hosting application.
type Manager struct {
	url     string
	tokens  TokenSource
	machine *status.Machine
	logger  *zap.Logger

	handler FrameHandler
	onClose func(error)

	mu sync.Mutex
	ws *websocket.Conn
}

// NewManager creates a manager for the given ws:// URL.
func NewManager(url string, tokens TokenSource, machine *status.Machine, logger *zap.Logger) *Manager {
	return &Manager{url: url, tokens: tokens, machine: machine, logger: logger}
}

// SetFrameHandler registers the inbound frame handler. Must be called
// before Connect.
func (m *Manager) SetFrameHandler(h FrameHandler) {
	m.handler = h
}

// SetCloseHook registers a hook invoked once when the connection goes
// away, before any new Connect. Pending correlated requests are failed
// from this hook so they do not hang until their timeout.
func (m *Manager) SetCloseHook(f func(error)) {
	m.onClose = f
}

// Connect dials the server, performs the access-token handshake, and
// starts the read loop.
func (m *Manager) Connect(ctx context.Context) error {
	if err := m.machine.Transition(status.Connecting); err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, m.url, nil)
	if err != nil {
		_ = m.machine.Transition(status.Errored)
		return fmt.Errorf("dial %s: %w", m.url, err)
	}

	token, err := m.tokens.AccessToken(ctx)
	if err != nil {
		_ = ws.Close()
		_ = m.machine.Transition(status.Errored)
		return fmt.Errorf("fetch access token: %w", err)
	}

	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteJSON(wire.NewAccessToken(token)); err != nil {
		_ = ws.Close()
		_ = m.machine.Transition(status.Errored)
		return fmt.Errorf("send access token: %w", err)
	}

	m.mu.Lock()
	m.ws = ws
	m.mu.Unlock()

	_ = m.machine.Transition(status.Open)
	m.logger.Info("connection open", zap.String("url", m.url))

	go m.readPump(ws)
	return nil
}

// Send marshals one outbound command. Sending on a closed connection
// returns ErrNotConnected; it never panics.
func (m *Manager) Send(cmd any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ws == nil {
		return ErrNotConnected
	}
	_ = m.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := m.ws.WriteJSON(cmd); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}
	return nil
}

// IsOpen reports whether the transport is open.
func (m *Manager) IsOpen() bool {
	return m.machine.Connected()
}

// Close shuts the transport down. Teardown (state transition, close hook)
// happens on the read loop's exit path.
func (m *Manager) Close() {
	m.mu.Lock()
	ws := m.ws
	m.mu.Unlock()
	if ws == nil {
		return
	}
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = ws.Close()
}

// readPump delivers frames to the handler in arrival order until the
// connection dies.
func (m *Manager) readPump(ws *websocket.Conn) {
	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			m.teardown(ws, err)
			return
		}
		if m.handler != nil {
			m.handler(frame)
		}
	}
}

func (m *Manager) teardown(ws *websocket.Conn, cause error) {
	m.mu.Lock()
	if m.ws == ws {
		m.ws = nil
	}
	m.mu.Unlock()
	_ = ws.Close()

	if websocket.IsCloseError(cause, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(cause, websocket.ErrCloseSent) {
		m.logger.Info("connection closed", zap.Error(cause))
		_ = m.machine.Transition(status.Closed)
	} else {
		m.logger.Warn("connection lost", zap.Error(cause))
		if m.machine.Transition(status.Errored) != nil {
			_ = m.machine.Transition(status.Closed)
		}
	}

	if m.onClose != nil {
		m.onClose(cause)
	}
}
