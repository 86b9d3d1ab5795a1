package models

import (
	"strings"
	"time"
)

// Message is a single direct message between two users. Rows are never
// physically removed except by EraseConversation; per-party visibility is
// controlled by the soft-delete flags.
type Message struct {
	ID                ObjectID   `bson:"_id,omitempty" json:"id"`
	SenderID          string     `bson:"sender_id" json:"sender_id" validate:"required"`
	ReceiverID        string     `bson:"receiver_id" json:"receiver_id" validate:"required"`
	Body              string     `bson:"body" json:"body"`
	CreatedAt         time.Time  `bson:"created_at" json:"created_at"`
	ReadAt            *time.Time `bson:"read_at,omitempty" json:"read_at,omitempty"`
	DeletedBySender   bool       `bson:"deleted_by_sender" json:"-"`
	DeletedByReceiver bool       `bson:"deleted_by_receiver" json:"-"`
	IsReported        bool       `bson:"is_reported" json:"-"`
}

func (Message) CollectionName() string {
	return "messages"
}

// CounterpartOf returns the other participant relative to userID.
func (m *Message) CounterpartOf(userID string) string {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// VisibleTo reports whether the given party's soft-delete flag is unset.
func (m *Message) VisibleTo(userID string) bool {
	if m.SenderID == userID && m.DeletedBySender {
		return false
	}
	if m.ReceiverID == userID && m.DeletedByReceiver {
		return false
	}
	return true
}

// IsUnreadFor reports whether userID is the receiver and has not read it yet.
func (m *Message) IsUnreadFor(userID string) bool {
	return m.ReceiverID == userID && m.ReadAt == nil
}

// NormalizedBody is the body with surrounding whitespace stripped,
// as used by validation and repetition checks.
func (m *Message) NormalizedBody() string {
	return strings.TrimSpace(m.Body)
}
