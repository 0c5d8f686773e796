package domain

import "time"

type MessageID string

// Message is the persisted chat record the relay fans out. Content is
// opaque to the relay; only the store reads or writes these fields.
type Message struct {
	ID          MessageID `json:"id"`
	SenderID    UserID    `json:"senderId"`
	RecipientID UserID    `json:"recipientId,omitempty"`
	ReplyToID   MessageID `json:"replyToId,omitempty"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"createdAt"`
}
