package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
	"github.com/smolnikov/molva/internal/state"
)

// ChatList is the main chat list view (table, most recent chat on top).
type ChatList struct {
	*tview.Table
	chats      []state.ChatSummary
	selectedFn func() (int, int)
}

// NewChatList creates a new chat list table.
func NewChatList() *ChatList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Chats ")

	cl := &ChatList{Table: table}
	cl.selectedFn = table.GetSelection
	return cl
}

// Update refreshes the chat list with new data.
func (cl *ChatList) Update(chats []state.ChatSummary, online func(userID int64) bool) {
	cl.chats = chats
	cl.Clear()

	cl.SetCell(0, 0, tview.NewTableCell(" Companion").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 1, tview.NewTableCell(" Last Message").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 2, tview.NewTableCell(" Time").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))

	for i, chat := range chats {
		row := i + 1
		name := chat.CompanionLogin
		if name == "" {
			name = fmt.Sprintf("user %d", chat.CompanionID)
		}
		if online != nil && online(chat.CompanionID) {
			name = "• " + name
		}
		if chat.Unread > 0 {
			name = fmt.Sprintf("* %s (%d)", name, chat.Unread)
		}

		cl.SetCell(row, 0, tview.NewTableCell(" "+name).SetMaxWidth(30).SetExpansion(1))
		cl.SetCell(row, 1, tview.NewTableCell(" "+chat.LastMessage).SetMaxWidth(40).SetExpansion(2))
		cl.SetCell(row, 2, tview.NewTableCell(" "+formatTimestamp(chat.LastMessageAt)).SetMaxWidth(12))
	}
}

// Selected returns the summary of the currently selected chat.
func (cl *ChatList) Selected() (state.ChatSummary, bool) {
	row, _ := cl.selectedFn()
	idx := row - 1 // header row
	if idx >= 0 && idx < len(cl.chats) {
		return cl.chats[idx], true
	}
	return state.ChatSummary{}, false
}

func formatTimestamp(ms int64) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms)
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
