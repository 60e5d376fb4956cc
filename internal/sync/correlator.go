package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/smolnikov/molva/internal/wire"
	"go.uber.org/zap"
)

// JoinTimeout is how long a join request waits for its "joined" reply.
const JoinTimeout = 10 * time.Second

var (
	// ErrJoinTimeout is the only user-visible correlation failure.
	ErrJoinTimeout = errors.New("timed out waiting for join reply")
	// ErrConnClosed settles pending joins when the transport goes away.
	ErrConnClosed = errors.New("connection closed")
)

// CommandSender sends one outbound command frame.
type CommandSender interface {
	Send(cmd any) error
}

type pendingJoin struct {
	companionID int64
	timer       *time.Timer

	once   gosync.Once
	chatID int64
	err    error
	done   chan struct{}
}

func (p *pendingJoin) settle(chatID int64, err error) {
	p.once.Do(func() {
		p.chatID = chatID
		p.err = err
		close(p.done)
	})
}

// Correlator matches outgoing join_chat requests with their eventual
// "joined" replies arriving on the shared event channel.
type Correlator struct {
	sender  CommandSender
	logger  *zap.Logger
	timeout time.Duration

	mu      gosync.Mutex
	pending map[int64]*pendingJoin
}

// NewCorrelator creates a correlator sending over the given sender.
func NewCorrelator(sender CommandSender, logger *zap.Logger) *Correlator {
	return &Correlator{
		sender:  sender,
		logger:  logger,
		timeout: JoinTimeout,
		pending: make(map[int64]*pendingJoin),
	}
}

// RequestJoin sends a join_chat command and blocks until the matching
// reply, the timeout, ctx cancellation, or connection close. A concurrent
// request for the same companion shares the existing pending entry;
// different companions get independent entries.
func (c *Correlator) RequestJoin(ctx context.Context, companionID int64) (int64, error) {
	c.mu.Lock()
	p, ok := c.pending[companionID]
	if !ok {
		p = &pendingJoin{companionID: companionID, done: make(chan struct{})}
		p.timer = time.AfterFunc(c.timeout, func() { c.expire(companionID, p) })
		c.pending[companionID] = p
	}
	c.mu.Unlock()

	if !ok {
		if err := c.sender.Send(wire.NewJoinChat(companionID)); err != nil {
			c.remove(companionID, p)
			p.timer.Stop()
			p.settle(0, fmt.Errorf("send join request: %w", err))
		}
	}

	select {
	case <-p.done:
		return p.chatID, p.err
	case <-ctx.Done():
		// No explicit cancel for a pending join: the entry stays until
		// resolution or timeout. Only this caller stops waiting.
		return 0, ctx.Err()
	}
}

// Resolve settles a pending join from a "joined" event. When the reply
// carries no companion id and exactly one request is pending, that one is
// resolved by elimination; with zero or more than one pending the reply is
// unresolvable and dropped.
func (c *Correlator) Resolve(chatID int64, companionID *int64) {
	c.mu.Lock()
	var p *pendingJoin
	switch {
	case companionID != nil:
		p = c.pending[*companionID]
		if p == nil {
			c.mu.Unlock()
			// Late or duplicate reply for an already-settled key.
			c.logger.Debug("joined reply with no pending request",
				zap.Int64("chat_id", chatID), zap.Int64("companion_id", *companionID))
			return
		}
		delete(c.pending, *companionID)
	case len(c.pending) == 1:
		for k, v := range c.pending {
			p = v
			delete(c.pending, k)
		}
	default:
		n := len(c.pending)
		c.mu.Unlock()
		c.logger.Warn("unresolvable joined reply: no companion id in event",
			zap.Int64("chat_id", chatID), zap.Int("pending", n))
		return
	}
	c.mu.Unlock()

	p.timer.Stop()
	p.settle(chatID, nil)
}

// FailAll rejects every pending join immediately. Called when the
// connection closes so waiters fail fast instead of hanging until timeout.
func (c *Correlator) FailAll(cause error) {
	c.mu.Lock()
	taken := c.pending
	c.pending = make(map[int64]*pendingJoin)
	c.mu.Unlock()

	for _, p := range taken {
		p.timer.Stop()
		p.settle(0, fmt.Errorf("%w: %v", ErrConnClosed, cause))
	}
}

// Pending returns the number of in-flight join requests.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Correlator) expire(companionID int64, p *pendingJoin) {
	c.remove(companionID, p)
	p.settle(0, ErrJoinTimeout)
	c.logger.Warn("join request timed out", zap.Int64("companion_id", companionID))
}

func (c *Correlator) remove(companionID int64, p *pendingJoin) {
	c.mu.Lock()
	if c.pending[companionID] == p {
		delete(c.pending, companionID)
	}
	c.mu.Unlock()
}
