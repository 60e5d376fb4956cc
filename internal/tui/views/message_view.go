package views

import (
	"fmt"

	"github.com/rivo/tview"
	"github.com/smolnikov/molva/internal/state"
)

// MessageView displays the open chat's messages in arrival order.
type MessageView struct {
	*tview.TextView
	chatName string
}

// NewMessageView creates a new message view.
func NewMessageView() *MessageView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" Messages ")

	return &MessageView{TextView: tv}
}

// SetChatName updates the title with the companion name.
func (mv *MessageView) SetChatName(name string) {
	mv.chatName = name
	mv.SetTitle(fmt.Sprintf(" %s ", name))
}

// Update re-renders the view. Messages come already in display order.
func (mv *MessageView) Update(msgs []state.Message) {
	mv.Clear()

	for _, m := range msgs {
		sender := m.SenderLogin
		if m.FromMe {
			sender = "You"
		}
		if sender == "" {
			sender = fmt.Sprintf("user %d", m.SenderID)
		}

		marker := ""
		if m.FromMe {
			if m.Read {
				marker = " [green]✓✓[-]"
			} else {
				marker = " ✓"
			}
		}
		edited := ""
		if m.EditedAt != 0 {
			edited = " [::d](edited)[-:-:-]"
		}

		ts := formatTimestamp(m.SentAt)
		line := fmt.Sprintf("[::b]%s[-:-:-] [::d]%s[-:-:-]%s\n%s%s\n\n", sender, ts, marker, tview.Escape(m.Text), edited)
		_, _ = fmt.Fprint(mv, line)
	}

	mv.ScrollToEnd()
}
