// Package app composes the client: configuration, logging, the local
// cache, the websocket connection, the sync engine, and the TUI.
package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/smolnikov/molva/internal/api"
	"github.com/smolnikov/molva/internal/bus"
	"github.com/smolnikov/molva/internal/config"
	"github.com/smolnikov/molva/internal/conn"
	"github.com/smolnikov/molva/internal/lock"
	"github.com/smolnikov/molva/internal/logging"
	"github.com/smolnikov/molva/internal/notify"
	"github.com/smolnikov/molva/internal/outbox"
	"github.com/smolnikov/molva/internal/session"
	"github.com/smolnikov/molva/internal/state"
	"github.com/smolnikov/molva/internal/status"
	"github.com/smolnikov/molva/internal/store"
	intsync "github.com/smolnikov/molva/internal/sync"
	"github.com/smolnikov/molva/internal/tui"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
}

// Module returns the fx module composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("molva",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideAPIClient,
			provideTokenSource,
			provideIdentity,
			provideState,
			provideFocus,
			provideFlash,
			provideGate,
			provideConn,
			provideCorrelator,
			provideEngine,
			provideSender,
			provideTUI,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) *config.Config {
	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		cfg = config.Default()
	}
	cfg.ApplyEnv()
	return cfg
}

func provideLogger(p Params) (*zap.Logger, error) {
	// The TUI owns the terminal, so nothing may write to stderr.
	return logging.NewFileOnly(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired", zap.String("session", p.SessionName))
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideAPIClient(cfg *config.Config) *api.Client {
	return api.NewClient(cfg.APIURL, cfg.APIToken)
}

func provideTokenSource(client *api.Client, logger *zap.Logger) *api.TokenSource {
	return api.NewTokenSource(client, logger)
}

// provideIdentity fetches the first websocket token to learn who we are.
// The token is cached, so the subsequent connect reuses it.
func provideIdentity(tokens *api.TokenSource, logger *zap.Logger) (intsync.Identity, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := tokens.AccessToken(ctx); err != nil {
		return intsync.Identity{}, err
	}
	userID, login := tokens.Identity()
	logger.Info("authenticated", zap.Int64("user_id", userID), zap.String("login", login))
	return intsync.Identity{UserID: userID, Login: login}, nil
}

func provideState() *state.Store {
	return state.New()
}

// focusProxy defers the focus source to the TUI, which exists only after
// the gate it feeds.
type focusProxy struct {
	inner atomic.Value // notify.FocusState
}

func (f *focusProxy) bind(fs notify.FocusState) { f.inner.Store(fs) }

func (f *focusProxy) Focused() bool {
	if fs, ok := f.inner.Load().(notify.FocusState); ok {
		return fs.Focused()
	}
	return false
}

func (f *focusProxy) MessengerVisible() bool {
	if fs, ok := f.inner.Load().(notify.FocusState); ok {
		return fs.MessengerVisible()
	}
	return false
}

func provideFocus() *focusProxy {
	return &focusProxy{}
}

type noopNotifier struct{}

func (noopNotifier) Notify(notify.Notification, func()) {}

func provideFlash() *tui.Flash {
	return &tui.Flash{}
}

func provideGate(cfg *config.Config, focus *focusProxy, flash *tui.Flash) *notify.Gate {
	if !cfg.Notifications {
		return notify.NewGate(noopNotifier{}, focus)
	}
	return notify.NewGate(flash, focus)
}

func provideConn(cfg *config.Config, tokens *api.TokenSource, machine *status.Machine, logger *zap.Logger) *conn.Manager {
	return conn.NewManager(cfg.WSURL, tokens, machine, logger)
}

func provideCorrelator(m *conn.Manager, logger *zap.Logger) *intsync.Correlator {
	return intsync.NewCorrelator(m, logger)
}

func provideEngine(self intsync.Identity, m *conn.Manager, corr *intsync.Correlator, st *state.Store, gate *notify.Gate, db *store.DB, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(self, m, corr, st, gate, db, b, logger)
}

func provideSender(db *store.DB, m *conn.Manager, engine *intsync.Engine, self intsync.Identity, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, m, engine, self.UserID, self.Login, logger)
}

func provideTUI(p Params, engine *intsync.Engine, st *state.Store, machine *status.Machine, b *bus.Bus, flash *tui.Flash, logger *zap.Logger) *tui.App {
	return tui.NewApp(engine, st, machine, b, flash, p.SessionName, logger)
}

func registerLifecycle(lc fx.Lifecycle, p Params, client *api.Client, m *conn.Manager, engine *intsync.Engine, sender *outbox.Sender, st *state.Store, db *store.DB, focus *focusProxy, ui *tui.App, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			focus.bind(ui)

			// Inbound frames go straight to the dispatcher, in arrival
			// order. The close hook fails pending joins immediately.
			m.SetFrameHandler(engine.HandleFrame)
			m.SetCloseHook(engine.ConnectionClosed)

			// Cached chat list first, server seed when it lands.
			if cached, err := db.ListChats(200); err == nil && len(cached) > 0 {
				st.Chats.Seed(chatSummaries(cached))
			}
			go seedChats(client, st, db, logger)

			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := m.Connect(ctx); err != nil {
					logger.Error("connect failed", zap.Error(err))
				}
			}()

			sender.Start(context.Background())
			return nil
		},
		OnStop: func(_ context.Context) error {
			sender.Stop()
			m.Close()
			_ = db.Close()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("client stopped", zap.String("session", p.SessionName))
			return nil
		},
	})
}

// seedChats fetches the chat list and makes it the ledger's baseline. The
// server-reported unread counts are authoritative only at this point.
func seedChats(client *api.Client, st *state.Store, db *store.DB, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	summaries, err := client.Chats(ctx)
	if err != nil {
		logger.Error("chat list fetch failed", zap.Error(err))
		return
	}
	st.Chats.Seed(summaries)

	for _, s := range summaries {
		if err := db.UpsertChat(&store.Chat{
			ChatID:         s.ChatID,
			CompanionID:    s.CompanionID,
			CompanionLogin: s.CompanionLogin,
			LastMessage:    s.LastMessage,
			LastMessageAt:  s.LastMessageAt,
			Unread:         s.Unread,
		}); err != nil {
			logger.Error("cache chat", zap.Error(err), zap.Int64("chat_id", s.ChatID))
		}
	}
	if err := db.SetCheckpoint("chats_seeded_at", time.Now().UTC().Format(time.RFC3339)); err != nil {
		logger.Error("record seed checkpoint", zap.Error(err))
	}
	logger.Info("chat list seeded", zap.Int("chats", len(summaries)))
}

func chatSummaries(rows []store.Chat) []state.ChatSummary {
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
	return out
}
