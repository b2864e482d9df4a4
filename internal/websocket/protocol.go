package websocket

import (
	"bytes"
	"encoding/json"
)

// Message types exchanged between relay and clients
const (
	TypeHello = "HELLO"
	TypeAck   = "ACK"
	TypePut   = "PUT"
	TypeSub   = "SUB"
	TypeUnsub = "UNSUB"
	TypeEvent = "EVENT"
	TypeError = "ERROR"
)

// Subscription modes
const (
	ModeNode     = "node"     // the node at path
	ModeChildren = "children" // every direct child of path
)

// Message is the single frame shape used in both directions
type Message struct {
	Type     string          `json:"type"`
	MsgID    string          `json:"msgId,omitempty"`
	ClientID string          `json:"clientId,omitempty"`
	SubID    string          `json:"subId,omitempty"`
	Mode     string          `json:"mode,omitempty"`
	Path     string          `json:"path,omitempty"`
	Key      string          `json:"key,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Status   string          `json:"status,omitempty"`
	Error    string          `json:"error,omitempty"`
}

var null = json.RawMessage("null")

// IsNull reports whether an EVENT payload means "node removed"
func IsNull(data json.RawMessage) bool {
	data = bytes.TrimSpace(data)
	return len(data) == 0 || bytes.Equal(data, null)
}
