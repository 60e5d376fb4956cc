package bus

import "time"

// Event is a domain event published on the bus.
//
// Kinds are dot-namespaced. The conventions used across molva:
//
//	conn.*     connection lifecycle (status changes, handshake done)
//	chat.*     chat list updates (preview, unread, seed)
//	message.*  open-chat message list updates
//	presence.* presence overwrites
//	ui.*       requests from non-UI components to the UI (navigation)
//
// Inbound protocol frames are never carried on the bus: frame handling
// must run in arrival order, while bus delivery is lossy by design.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
