// Package wire defines the JSON protocol spoken over the chat websocket:
// inbound event envelopes with tolerant field decoding, and outbound
// command frames.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Normalized inbound event kinds.
const (
	KindJoined            = "joined"
	KindMessage           = "message"
	KindMessageEdited     = "message_edited"
	KindMessageDeleted    = "message_deleted"
	KindMarkAsRead        = "mark_as_read"
	KindUserStatusChanged = "user_status_changed"
)

// ID is a message identifier normalized to a string. The server sends both
// string and numeric ids depending on the event source.
type ID string

// UnmarshalJSON accepts a JSON string or number.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id is neither string nor number: %s", data)
	}
	*id = ID(n.String())
	return nil
}

// Int64 is a numeric identifier or timestamp tolerated as a JSON number or
// a numeric string.
type Int64 int64

// UnmarshalJSON accepts a JSON number or a string holding one.
func (v *Int64) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("parse %q as int64: %w", s, err)
		}
		*v = Int64(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*v = Int64(n)
	return nil
}

// Envelope is a single inbound server event. Field aliases used by older
// server builds are kept as separate fields and merged by the accessors.
type Envelope struct {
	Type        string `json:"type"`
	MessageType string `json:"message_type"`

	ID            ID     `json:"id"`
	ChatID        Int64  `json:"chat_id"`
	RoomID        Int64  `json:"room_id"`
	SenderID      Int64  `json:"sender_id"`
	SenderLogin   string `json:"sender_login"`
	UserID        Int64  `json:"user_id"`
	ReaderID      Int64  `json:"reader_id"`
	CompanionID   *Int64 `json:"companion_id"`
	Text          string `json:"text"`
	AttachedFiles []ID   `json:"attached_files"`
	Timestamp     Int64  `json:"timestamp"`
	EditedAt      *Int64 `json:"edited_at"`
	UntilTS       *Int64 `json:"until_timestamp"`
	Until         *Int64 `json:"until"`
	ClientNonce   string `json:"client_nonce"`
	IsOnline      bool   `json:"is_online"`
	LastSeen      Int64  `json:"last_seen"`
}

// Decode parses a raw frame into an Envelope.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}

// Kind returns the normalized event kind. "message_type" is accepted as an
// alias for "type"; "text" normalizes to message and "read" to mark_as_read.
func (e *Envelope) Kind() string {
	t := e.Type
	if t == "" {
		t = e.MessageType
	}
	switch t {
	case "text":
		return KindMessage
	case "read":
		return KindMarkAsRead
	}
	return t
}

// Chat returns the chat identifier, preferring chat_id over room_id.
func (e *Envelope) Chat() int64 {
	if e.ChatID != 0 {
		return int64(e.ChatID)
	}
	return int64(e.RoomID)
}

// Reader returns the read-receipt reader, preferring user_id over reader_id.
func (e *Envelope) Reader() int64 {
	if e.UserID != 0 {
		return int64(e.UserID)
	}
	return int64(e.ReaderID)
}

// ReadUntil returns the read-receipt cutoff, preferring until_timestamp.
func (e *Envelope) ReadUntil() int64 {
	if e.UntilTS != nil {
		return int64(*e.UntilTS)
	}
	if e.Until != nil {
		return int64(*e.Until)
	}
	return 0
}

// EditShaped reports whether a generic message event should be treated as an
// edit of an existing message rather than an append.
func (e *Envelope) EditShaped() bool {
	return e.EditedAt != nil
}

// Files returns attached file ids as plain strings.
func (e *Envelope) Files() []string {
	if len(e.AttachedFiles) == 0 {
		return nil
	}
	out := make([]string, len(e.AttachedFiles))
	for i, f := range e.AttachedFiles {
		out[i] = string(f)
	}
	return out
}
