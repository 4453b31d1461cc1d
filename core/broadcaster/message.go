package broadcaster

import (
	"time"

	"github.com/google/uuid"
)

// MessageType tells transports how to frame a payload.
type MessageType uint8

const (
	TextMessage MessageType = iota + 1
	BinaryMessage
)

func (t MessageType) String() string {
	switch t {
	case TextMessage:
		return "text"
	case BinaryMessage:
		return "binary"
	default:
		return "unknown"
	}
}

// Message is an opaque payload travelling through a broadcaster.
// Treat it as a value: filters return modified copies.
type Message struct {
	ID        string      `json:"id" cbor:"1,keyasint"`
	Channel   string      `json:"channel,omitempty" cbor:"2,keyasint,omitempty"`
	Type      MessageType `json:"type" cbor:"3,keyasint"`
	Payload   []byte      `json:"payload" cbor:"4,keyasint"`
	Original  []byte      `json:"original,omitempty" cbor:"5,keyasint,omitempty"`
	CreatedAt time.Time   `json:"created_at" cbor:"6,keyasint"`
}

// NewMessage creates a message with a fresh id.
func NewMessage(t MessageType, payload []byte) Message {
	return Message{
		ID:        uuid.NewString(),
		Type:      t,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

func NewTextMessage(text string) Message {
	return NewMessage(TextMessage, []byte(text))
}

func NewBinaryMessage(data []byte) Message {
	return NewMessage(BinaryMessage, data)
}

// Text returns the payload as a string.
func (m Message) Text() string {
	return string(m.Payload)
}

// WithPayload returns a copy carrying p. The first pre-filter payload is kept
// in Original so it survives any number of transformations.
func (m Message) WithPayload(p []byte) Message {
	if m.Original == nil {
		m.Original = m.Payload
	}
	m.Payload = p
	return m
}

// WithText is WithPayload for strings.
func (m Message) WithText(s string) Message {
	return m.WithPayload([]byte(s))
}

// OriginalMessage returns the message as it was before any transformation.
func (m Message) OriginalMessage() Message {
	if m.Original == nil {
		return m
	}
	m.Payload = m.Original
	m.Original = nil
	return m
}

// IsTransformed reports whether a filter replaced the payload.
func (m Message) IsTransformed() bool {
	return m.Original != nil
}

// normalize fills in the fields a broadcaster relies on.
func (m Message) normalize(channel string) Message {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Type == 0 {
		m.Type = TextMessage
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	m.Channel = channel
	return m
}
