package domain

import "time"

// SenderType records who wrote a message. It is fixed at write time.
type SenderType string

const (
	SenderCustomer SenderType = "customer"
	SenderAgent    SenderType = "agent"
	SenderSystem   SenderType = "system"
)

// MessageType classifies message content.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageSystem MessageType = "system"
	MessageImage  MessageType = "image"
	MessageFile   MessageType = "file"
)

// ParseMessageType maps input onto a MessageType, defaulting to text.
func ParseMessageType(s string) MessageType {
	switch t := MessageType(s); t {
	case MessageText, MessageSystem, MessageImage, MessageFile:
		return t
	default:
		return MessageText
	}
}

// Message is one entry in a session transcript. IDs increase
// monotonically, so ordering by ID is ordering by arrival.
type Message struct {
	ID            int64       `json:"id"`
	SessionID     int64       `json:"session_id"`
	SenderID      string      `json:"sender_id,omitempty"`
	SenderType    SenderType  `json:"sender_type"`
	Body          string      `json:"message"`
	Type          MessageType `json:"message_type"`
	AttachmentURL string      `json:"attachment_url,omitempty"`
	Read          bool        `json:"is_read"`
	Edited        bool        `json:"is_edited"`
	EditedAt      *time.Time  `json:"edited_at,omitempty"`
	ReplyToID     int64       `json:"reply_to_id,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// NewMessage is the input for appending a message.
type NewMessage struct {
	SessionID     int64
	SenderID      string
	SenderType    SenderType
	Body          string
	Type          MessageType
	AttachmentURL string
	ReplyToID     int64
}
