// Package websocket maintains the favorites change stream connection.
package websocket

import (
	"time"

	"github.com/google/uuid"
)

// MessageType represents the type of WebSocket message.
type MessageType int

const (
	// MessageTypeText is a text message.
	MessageTypeText MessageType = iota
	// MessageTypeBinary is a binary message.
	MessageTypeBinary
)

// String returns the string representation of the message type.
func (t MessageType) String() string {
	switch t {
	case MessageTypeText:
		return "text"
	case MessageTypeBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// Message is one data frame read from the stream.
type Message struct {
	// ID is a local identifier, unrelated to any id inside Data.
	ID string

	Type MessageType

	Data []byte

	// ReceivedAt is when the frame was read.
	ReceivedAt time.Time
}

// NewMessage creates a received message.
func NewMessage(t MessageType, data []byte) *Message {
	return &Message{
		ID:         uuid.NewString(),
		Type:       t,
		Data:       data,
		ReceivedAt: time.Now(),
	}
}
