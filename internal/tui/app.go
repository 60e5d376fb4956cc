// Package tui is the terminal surface: a chat list, the open conversation,
// a composer, and a status bar. All views read the session state through
// read-only interfaces; every mutation goes through the Controller.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/smolnikov/molva/internal/bus"
	"github.com/smolnikov/molva/internal/state"
	"github.com/smolnikov/molva/internal/status"
	"github.com/smolnikov/molva/internal/tui/views"
	"go.uber.org/zap"
)

const (
	pageChats = "chats"
	pageChat  = "chat"
)

// Controller is the slice of the sync engine the TUI drives.
type Controller interface {
	OpenChat(ctx context.Context, companionID int64) (int64, error)
	SendText(text string) error
	DeleteMessage(id string) error
	ActiveChat() int64
}

// App is the TUI application shell.
type App struct {
	app      *tview.Application
	pages    *tview.Pages
	ctrl     Controller
	messages state.MessageReader
	chats    state.ChatReader
	presence state.PresenceReader
	machine  *status.Machine
	bus      *bus.Bus
	logger   *zap.Logger

	flash     *Flash
	statusBar *views.StatusBar
	chatList  *views.ChatList
	msgView   *views.MessageView
	composer  *views.Composer

	page   atomic.Value // current front page name
	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(ctrl Controller, st *state.Store, machine *status.Machine, b *bus.Bus, flash *Flash, sessionName string, logger *zap.Logger) *App {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		ctrl:      ctrl,
		messages:  st.Messages,
		chats:     st.Chats,
		presence:  st.Presence,
		machine:   machine,
		bus:       b,
		logger:    logger,
		flash:     flash,
		statusBar: views.NewStatusBar(),
		chatList:  views.NewChatList(),
		msgView:   views.NewMessageView(),
		composer:  views.NewComposer(),
		ctx:       ctx,
		cancel:    cancel,
	}
	a.page.Store(pageChats)

	a.statusBar.SetSession(sessionName)
	a.setupCallbacks()
	a.setupLayout()

	return a
}

// Focused implements notify.FocusState. A running terminal UI counts as
// focused; there is no portable focus signal for terminals.
func (a *App) Focused() bool {
	return true
}

// MessengerVisible implements notify.FocusState: the open-conversation
// page is in front.
func (a *App) MessengerVisible() bool {
	return a.page.Load() == pageChat
}

func (a *App) setupCallbacks() {
	a.chatList.SetSelectedFunc(func(row, col int) {
		if chat, ok := a.chatList.Selected(); ok {
			a.openChat(chat.CompanionID, chat.CompanionLogin)
		}
	})

	a.composer.SetOnSend(func(text string) {
		if err := a.ctrl.SendText(text); err != nil {
			a.flash.Set("Send failed: "+err.Error(), 5*time.Second)
			a.statusBar.SetFlash(a.flash.Get())
		}
	})
}

func (a *App) setupLayout() {
	chatFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.msgView, 0, 1, false).
		AddItem(a.composer, 1, 0, false)

	a.pages.AddPage(pageChats, a.chatList, true, true)
	a.pages.AddPage(pageChat, chatFlex, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		if event.Key() == tcell.KeyEscape && currentPage == pageChat {
			a.switchTo(pageChats)
			a.app.SetFocus(a.chatList)
			return nil
		}

		// Text input handles its own keys.
		if _, ok := a.app.GetFocus().(*tview.InputField); ok {
			return event
		}

		if event.Key() == tcell.KeyRune {
			switch event.Rune() {
			case 'q':
				a.app.Stop()
				return nil
			case 'i':
				if currentPage == pageChat {
					a.app.SetFocus(a.composer.InputField)
					return nil
				}
			case 'n':
				a.flash.Activate()
				return nil
			}
		}

		return event
	})
}

func (a *App) switchTo(page string) {
	a.page.Store(page)
	a.pages.SwitchToPage(page)
}

func (a *App) openChat(companionID int64, login string) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, 15*time.Second)
		defer cancel()

		if _, err := a.ctrl.OpenChat(ctx, companionID); err != nil {
			a.flash.Set("Open failed: "+err.Error(), 8*time.Second)
			a.app.QueueUpdateDraw(func() { a.statusBar.SetFlash(a.flash.Get()) })
			return
		}

		a.app.QueueUpdateDraw(func() {
			name := login
			if name == "" {
				name = fmt.Sprintf("user %d", companionID)
			}
			a.msgView.SetChatName(name)
			a.msgView.Update(a.messages.Snapshot())
			a.switchTo(pageChat)
			a.app.SetFocus(a.composer.InputField)
		})
	}()
}

// Run starts the event loops and blocks in the tview main loop.
func (a *App) Run() error {
	go a.watchBus()
	go a.tick()

	a.statusBar.SetStatus(string(a.machine.Current()))
	a.chatList.Update(a.chats.Snapshot(), a.presence.IsOnline)

	return a.app.Run()
}

// Stop tears the UI down.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

// watchBus redraws the affected view after each state mutation.
func (a *App) watchBus() {
	events, unsub := a.bus.Subscribe("", 128)
	defer unsub()

	for {
		select {
		case ev := <-events:
			a.handleEvent(ev)
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) handleEvent(ev bus.Event) {
	switch {
	case ev.Kind == "ui.navigate":
		chatID, ok := ev.Payload.(int64)
		if !ok {
			return
		}
		if chat, found := a.chats.Get(chatID); found {
			a.openChat(chat.CompanionID, chat.CompanionLogin)
		}
	case ev.Kind == "conn.status_changed":
		a.app.QueueUpdateDraw(func() {
			a.statusBar.SetStatus(string(a.machine.Current()))
		})
	case strings.HasPrefix(ev.Kind, "message."):
		a.app.QueueUpdateDraw(func() {
			if a.page.Load() == pageChat {
				a.msgView.Update(a.messages.Snapshot())
			}
			a.statusBar.SetFlash(a.flash.Get())
		})
	case strings.HasPrefix(ev.Kind, "chat."), strings.HasPrefix(ev.Kind, "presence."):
		a.app.QueueUpdateDraw(func() {
			if a.page.Load() == pageChats {
				a.chatList.Update(a.chats.Snapshot(), a.presence.IsOnline)
			}
			a.statusBar.SetFlash(a.flash.Get())
		})
	}
}

// tick keeps the clock and flash expiry current even without traffic.
func (a *App) tick() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.app.QueueUpdateDraw(func() {
				a.statusBar.SetFlash(a.flash.Get())
			})
		case <-a.ctx.Done():
			return
		}
	}
}
