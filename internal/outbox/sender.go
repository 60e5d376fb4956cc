// Package outbox drains queued outgoing messages from the local store and
// transmits them over the live connection.
package outbox

import (
	"context"
	"time"

	"github.com/smolnikov/molva/internal/store"
	"github.com/smolnikov/molva/internal/wire"
	"go.uber.org/zap"
)

// PollInterval is how often the outbox is scanned for queued entries.
const PollInterval = 500 * time.Millisecond

// CommandSender transmits one outbound command frame.
type CommandSender interface {
	Send(cmd any) error
}

// Echo reflects outbox progress into the in-memory session state: the
// optimistic entry appears before transmission and is rolled back on
// failure. Confirmation comes later through the event stream.
type Echo interface {
	LocalEcho(entry store.OutboxEntry)
	SendFailed(entry store.OutboxEntry, cause error)
}

// Sender polls the outbox and sends queued messages. Failed entries stay
// failed; the user re-triggers the send.
type Sender struct {
	db          *store.DB
	conn        CommandSender
	echo        Echo
	senderID    int64
	senderLogin string
	logger      *zap.Logger
	interval    time.Duration
	cancel      context.CancelFunc
}

// NewSender creates an outbox sender for the given local identity.
func NewSender(db *store.DB, conn CommandSender, echo Echo, senderID int64, senderLogin string, logger *zap.Logger) *Sender {
	return &Sender{
		db:          db,
		conn:        conn,
		echo:        echo,
		senderID:    senderID,
		senderLogin: senderLogin,
		logger:      logger,
		interval:    PollInterval,
	}
}

// Start begins polling for queued messages.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the polling loop.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sender) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.drain()
		case <-ctx.Done():
			return
		}
	}
}

// drain sends every queued entry once, oldest first.
func (s *Sender) drain() {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if err := s.db.MarkOutboxSending(entry.ClientNonce); err != nil {
			s.logger.Error("mark sending", zap.Error(err), zap.String("nonce", entry.ClientNonce))
			continue
		}

		// Show the message immediately; the server confirmation swaps the
		// synthetic id for the real one.
		s.echo.LocalEcho(entry)

		cmd := wire.NewSendMessage(s.senderID, s.senderLogin, entry.ChatID, entry.Text, entry.ClientNonce)
		if err := s.conn.Send(cmd); err != nil {
			s.logger.Error("send message", zap.Error(err), zap.String("nonce", entry.ClientNonce))
			if dbErr := s.db.MarkOutboxFailed(entry.ClientNonce, err.Error()); dbErr != nil {
				s.logger.Error("mark failed", zap.Error(dbErr), zap.String("nonce", entry.ClientNonce))
			}
			s.echo.SendFailed(entry, err)
			continue
		}

		s.logger.Info("message transmitted",
			zap.String("nonce", entry.ClientNonce), zap.Int64("chat_id", entry.ChatID))
	}
}
