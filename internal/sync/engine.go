// Package sync is the real-time synchronization core: the Engine ingests
// the server event stream and reconciles it against the in-memory session
// state, and the Correlator matches join requests with their replies.
package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/smolnikov/molva/internal/bus"
	"github.com/smolnikov/molva/internal/notify"
	"github.com/smolnikov/molva/internal/state"
	"github.com/smolnikov/molva/internal/store"
	"github.com/smolnikov/molva/internal/wire"
	"go.uber.org/zap"
)

// ErrNoOpenChat is returned by SendText when no chat is selected.
var ErrNoOpenChat = errors.New("no chat is open")

// localIDPrefix marks synthetic ids of optimistic messages awaiting
// server confirmation.
const localIDPrefix = "local-"

// Identity is the local user as known from the session token.
type Identity struct {
	UserID int64
	Login  string
}

// Engine is the event dispatcher. It is registered as the connection's
// frame handler and runs each handler to completion in frame arrival
// order; it holds the sole writable reference to the session state.
type Engine struct {
	self   Identity
	sender CommandSender
	corr   *Correlator
	st     *state.Store
	gate   *notify.Gate
	db     *store.DB // local cache, may be nil
	bus    *bus.Bus
	logger *zap.Logger

	mu         gosync.Mutex
	activeChat int64
}

// NewEngine creates the dispatcher.
func NewEngine(self Identity, sender CommandSender, corr *Correlator, st *state.Store, gate *notify.Gate, db *store.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		self:   self,
		sender: sender,
		corr:   corr,
		st:     st,
		gate:   gate,
		db:     db,
		bus:    b,
		logger: logger,
	}
}

// HandleFrame classifies one inbound frame and routes it. It never
// panics or propagates errors: malformed and unknown events degrade to a
// logged no-op so protocol evolution cannot break the client.
func (e *Engine) HandleFrame(frame []byte) {
	env, err := wire.Decode(frame)
	if err != nil {
		e.logger.Warn("discarding unparsable frame", zap.Error(err))
		return
	}

	switch kind := env.Kind(); kind {
	case wire.KindJoined:
		e.handleJoined(env)
	case wire.KindMessage:
		e.handleMessage(env)
	case wire.KindMessageEdited:
		e.handleEdited(env)
	case wire.KindMessageDeleted:
		e.handleDeleted(env)
	case wire.KindMarkAsRead:
		e.handleReadReceipt(env)
	case wire.KindUserStatusChanged:
		e.handlePresence(env)
	default:
		e.logger.Debug("ignoring unknown event kind", zap.String("kind", kind))
	}
}

// ActiveChat returns the currently open chat id, 0 when none.
func (e *Engine) ActiveChat() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeChat
}

func (e *Engine) setActiveChat(chatID int64) {
	e.mu.Lock()
	e.activeChat = chatID
	e.mu.Unlock()
}

func (e *Engine) handleJoined(env *wire.Envelope) {
	chatID := env.Chat()
	var companion *int64
	if env.CompanionID != nil {
		v := int64(*env.CompanionID)
		companion = &v
	}
	e.corr.Resolve(chatID, companion)
	// The joined chat becomes the current-room context deciding which
	// subsequent message events belong to the open view.
	e.setActiveChat(chatID)
}

func (e *Engine) handleMessage(env *wire.Envelope) {
	chatID := env.Chat()
	id := string(env.ID)
	if chatID == 0 || id == "" {
		e.logger.Warn("message event without chat or id, discarding")
		return
	}

	fromMe := int64(env.SenderID) == e.self.UserID
	sentAt := int64(env.Timestamp)
	if sentAt == 0 {
		sentAt = time.Now().UnixMilli()
	}

	// Edit notifications sometimes arrive on the generic message channel.
	// Same id already held plus an edit timestamp means update in place:
	// no append, no unread, no recency bump.
	if env.EditShaped() && e.st.Messages.Contains(id) {
		e.applyEdit(chatID, id, env.Text, int64(*env.EditedAt))
		return
	}

	if fromMe {
		e.confirmOptimistic(chatID, id, env)
	}

	if chatID == e.ActiveChat() {
		e.st.Messages.Append(state.Message{
			ID:            id,
			ChatID:        chatID,
			SenderID:      int64(env.SenderID),
			SenderLogin:   env.SenderLogin,
			Text:          env.Text,
			AttachedFiles: env.Files(),
			SentAt:        sentAt,
			FromMe:        fromMe,
		})
		e.publish("message.appended", id)
	} else if !fromMe {
		e.st.Chats.IncrementUnread(chatID)
	}

	if !fromMe {
		e.st.Chats.Ensure(chatID, int64(env.SenderID), env.SenderLogin)
	}
	e.st.Chats.UpdateLastMessagePreview(chatID, env.Text, sentAt, true)
	e.publish("chat.updated", chatID)

	if e.db != nil {
		e.persistMessage(chatID, id, env, sentAt, fromMe)
	}

	if !fromMe {
		sender := env.SenderLogin
		if sender == "" {
			sender = fmt.Sprintf("user %d", env.SenderID)
		}
		e.gate.Offer(notify.Notification{
			ChatID: chatID,
			Sender: sender,
			Text:   env.Text,
			SentAt: sentAt,
		}, false, func() {
			e.publish("ui.navigate", chatID)
		})
	}
}

func (e *Engine) handleEdited(env *wire.Envelope) {
	id := string(env.ID)
	if id == "" {
		return
	}
	chatID := env.Chat()
	if chatID == 0 {
		chatID = e.ActiveChat()
	}
	editedAt := int64(env.Timestamp)
	if env.EditedAt != nil {
		editedAt = int64(*env.EditedAt)
	}
	// Edits never touch unread counters or chat ordering.
	e.applyEdit(chatID, id, env.Text, editedAt)
}

func (e *Engine) handleDeleted(env *wire.Envelope) {
	id := string(env.ID)
	if id == "" {
		return
	}
	if e.st.Messages.RemoveByID(id) {
		e.publish("message.removed", id)
	}
	if e.db != nil {
		chatID := env.Chat()
		if chatID == 0 {
			chatID = e.ActiveChat()
		}
		if err := e.db.DeleteMessage(chatID, id); err != nil {
			e.logger.Error("delete cached message", zap.Error(err), zap.String("msg_id", id))
		}
	}
}

func (e *Engine) handleReadReceipt(env *wire.Envelope) {
	chatID := env.Chat()
	reader := env.Reader()
	until := env.ReadUntil()
	if chatID == 0 || until == 0 {
		return
	}

	n := e.st.Messages.ReconcileReadUntil(chatID, until)
	if reader != e.self.UserID && n > 0 {
		e.st.Chats.DecrementUnread(chatID, n)
		e.publish("chat.updated", chatID)
	}
	if n > 0 {
		e.publish("message.read_reconciled", chatID)
	}
	if e.db != nil {
		if _, err := e.db.MarkMessagesRead(chatID, until); err != nil {
			e.logger.Error("persist read receipt", zap.Error(err), zap.Int64("chat_id", chatID))
		}
	}
}

func (e *Engine) handlePresence(env *wire.Envelope) {
	userID := int64(env.UserID)
	if userID == 0 {
		return
	}
	e.st.Presence.Overwrite(state.PresenceRecord{
		UserID:     userID,
		Online:     env.IsOnline,
		LastSeen:   int64(env.LastSeen),
		ProducedAt: int64(env.Timestamp),
		ReceivedAt: time.Now().UnixMilli(),
	})
	e.publish("presence.updated", userID)
}

// confirmOptimistic reconciles a server-confirmed own message with its
// optimistic local entry: by the echoed client nonce when present, else by
// matching text against the oldest in-flight send for the chat.
func (e *Engine) confirmOptimistic(chatID int64, serverID string, env *wire.Envelope) {
	if nonce := env.ClientNonce; nonce != "" {
		localID := localIDPrefix + nonce
		e.st.Messages.ReplaceID(localID, serverID)
		if e.db != nil {
			if err := e.db.MarkOutboxSent(nonce, serverID); err != nil {
				e.logger.Error("mark outbox sent", zap.Error(err), zap.String("nonce", nonce))
			}
			_ = e.db.RenameMessageID(chatID, localID, serverID)
		}
		e.publish("message.confirmed", serverID)
		return
	}

	// No nonce echo from this server build. Best effort: take the newest
	// optimistic entry with identical text as confirmed.
	for _, m := range e.st.Messages.Snapshot() {
		if m.FromMe && m.Text == env.Text && strings.HasPrefix(m.ID, localIDPrefix) {
			nonce := strings.TrimPrefix(m.ID, localIDPrefix)
			e.st.Messages.ReplaceID(m.ID, serverID)
			if e.db != nil {
				_ = e.db.MarkOutboxSent(nonce, serverID)
				_ = e.db.RenameMessageID(chatID, m.ID, serverID)
			}
			e.publish("message.confirmed", serverID)
			return
		}
	}
}

func (e *Engine) applyEdit(chatID int64, id, text string, editedAt int64) {
	if e.st.Messages.ApplyEdit(id, text, editedAt) {
		e.publish("message.updated", id)
	}
	if e.db != nil && chatID != 0 {
		if err := e.db.UpdateMessageText(chatID, id, text, editedAt); err != nil {
			e.logger.Error("persist edit", zap.Error(err), zap.String("msg_id", id))
		}
	}
}

func (e *Engine) persistMessage(chatID int64, id string, env *wire.Envelope, sentAt int64, fromMe bool) {
	if err := e.db.UpsertMessage(&store.Message{
		ChatID:      chatID,
		MsgID:       id,
		SenderID:    int64(env.SenderID),
		SenderLogin: env.SenderLogin,
		Text:        env.Text,
		FromMe:      fromMe,
		SentAt:      sentAt,
	}); err != nil {
		e.logger.Error("cache message", zap.Error(err), zap.String("msg_id", id))
		return
	}
	if err := e.db.UpsertChat(&store.Chat{
		ChatID:        chatID,
		LastMessage:   truncate(env.Text, 100),
		LastMessageAt: sentAt,
		Unread:        e.st.Chats.Unread(chatID),
	}); err != nil {
		e.logger.Error("cache chat preview", zap.Error(err), zap.Int64("chat_id", chatID))
	}
}

// OpenChat joins the chat with a companion and makes it the open view:
// the unread counter resets, cached history is loaded, and a read receipt
// is sent. Blocks until the join resolves or fails.
func (e *Engine) OpenChat(ctx context.Context, companionID int64) (int64, error) {
	chatID, err := e.corr.RequestJoin(ctx, companionID)
	if err != nil {
		return 0, err
	}

	e.setActiveChat(chatID)
	e.st.Chats.Ensure(chatID, companionID, "")
	e.st.Chats.MarkChatRead(chatID)

	var msgs []state.Message
	if e.db != nil {
		cached, err := e.db.ListMessages(chatID, 200)
		if err != nil {
			e.logger.Error("load cached history", zap.Error(err), zap.Int64("chat_id", chatID))
		}
		for _, m := range cached {
			msgs = append(msgs, state.Message{
				ID:          m.MsgID,
				ChatID:      m.ChatID,
				SenderID:    m.SenderID,
				SenderLogin: m.SenderLogin,
				Text:        m.Text,
				SentAt:      m.SentAt,
				EditedAt:    m.EditedAt,
				Read:        m.Read,
				FromMe:      m.FromMe,
			})
		}
	}
	e.st.Messages.SetAll(chatID, msgs)

	if err := e.sender.Send(wire.NewMarkAsRead(chatID, e.self.UserID, time.Now().UnixMilli())); err != nil {
		e.logger.Warn("send read receipt", zap.Error(err))
	}

	e.publish("chat.opened", chatID)
	return chatID, nil
}

// SendText queues a message for the open chat. The outbox sender picks it
// up, echoes it optimistically, and transmits it with a client nonce.
func (e *Engine) SendText(text string) error {
	chatID := e.ActiveChat()
	if chatID == 0 {
		return ErrNoOpenChat
	}
	nonce := uuid.NewString()
	if err := e.db.QueueOutbox(nonce, chatID, text); err != nil {
		return fmt.Errorf("queue message: %w", err)
	}
	e.publish("message.queued", nonce)
	return nil
}

// DeleteMessage asks the server to remove a message. Local state changes
// when the message_deleted event comes back.
func (e *Engine) DeleteMessage(id string) error {
	return e.sender.Send(wire.NewDeleteMessage(id))
}

// EditMessage asks the server to replace a message's text.
func (e *Engine) EditMessage(id, text string) error {
	return e.sender.Send(wire.NewEditMessage(id, text))
}

// LocalEcho shows a queued outgoing message immediately, before the
// server confirms it. Called by the outbox sender.
func (e *Engine) LocalEcho(entry store.OutboxEntry) {
	now := time.Now().UnixMilli()
	if entry.ChatID == e.ActiveChat() {
		e.st.Messages.Append(state.Message{
			ID:          localIDPrefix + entry.ClientNonce,
			ChatID:      entry.ChatID,
			SenderID:    e.self.UserID,
			SenderLogin: e.self.Login,
			Text:        entry.Text,
			SentAt:      now,
			FromMe:      true,
		})
		e.publish("message.appended", localIDPrefix+entry.ClientNonce)
	}
	e.st.Chats.UpdateLastMessagePreview(entry.ChatID, entry.Text, now, true)
	e.publish("chat.updated", entry.ChatID)
}

// SendFailed rolls back the optimistic echo after a send error.
func (e *Engine) SendFailed(entry store.OutboxEntry, cause error) {
	e.st.Messages.RemoveByID(localIDPrefix + entry.ClientNonce)
	e.publish("message.send_failed", entry.ClientNonce)
	e.logger.Error("message send failed", zap.Error(cause), zap.String("nonce", entry.ClientNonce))
}

// ConnectionClosed fails all pending correlated requests immediately so
// callers do not hang until their timeout.
func (e *Engine) ConnectionClosed(cause error) {
	e.corr.FailAll(cause)
}

// Self returns the local user identity.
func (e *Engine) Self() Identity {
	return e.self
}

func (e *Engine) publish(kind string, payload any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
