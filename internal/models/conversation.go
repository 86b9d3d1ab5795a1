package models

import "time"

// Identity is what the user directory knows about an account.
type Identity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Figure      string `json:"figure"`
	Hotel       string `json:"hotel"`
}

// Conversation is one entry in a user's conversation list, derived from
// the raw message rows for a single counterpart. It is never stored.
type Conversation struct {
	CounterpartID string    `json:"counterpart_id"`
	DisplayName   string    `json:"display_name"`
	Figure        string    `json:"figure"`
	Hotel         string    `json:"hotel"`
	LastMessage   string    `json:"last_message"`
	LastMessageAt time.Time `json:"last_message_at"`
	UnreadCount   int       `json:"unread_count"`
	IsOnline      bool      `json:"is_online"`

	// Placeholder marks an entry synthesized from a push event before the
	// counterpart's identity has been resolved; DisplayName carries the raw
	// user ID until the next full refresh replaces it.
	Placeholder bool `json:"-"`
}

// PlaceholderFor synthesizes a provisional conversation entry from a
// pushed message whose counterpart is not in the list yet.
func PlaceholderFor(msg Message, selfID string) Conversation {
	counterpart := msg.CounterpartOf(selfID)
	return Conversation{
		CounterpartID: counterpart,
		DisplayName:   counterpart,
		LastMessage:   msg.Body,
		LastMessageAt: msg.CreatedAt,
		UnreadCount:   1,
		Placeholder:   true,
	}
}

// PresenceRecord is the raw presence state as reported by the identity
// system. The raw flag is only trusted within the staleness window.
type PresenceRecord struct {
	UserID       string    `bson:"_id" json:"user_id"`
	RawOnline    bool      `bson:"raw_online" json:"raw_online"`
	LastUpdateAt time.Time `bson:"last_update_at" json:"last_update_at"`
	AppearOnline bool      `bson:"appear_online" json:"-"`
}

// BlockRelation suppresses conversation visibility and initiation from
// blocker to blocked. Unique per (blocker, blocked) pair.
type BlockRelation struct {
	ID        ObjectID  `bson:"_id,omitempty" json:"-"`
	BlockerID string    `bson:"blocker_id" json:"blocker_id"`
	BlockedID string    `bson:"blocked_id" json:"blocked_id"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

func (BlockRelation) CollectionName() string {
	return "blocks"
}

// Report is an append-only abuse report against a message.
type Report struct {
	ID         ObjectID  `bson:"_id,omitempty" json:"-"`
	MessageID  ObjectID  `bson:"message_id" json:"message_id"`
	ReporterID string    `bson:"reporter_id" json:"reporter_id"`
	Reason     string    `bson:"reason" json:"reason"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
}

func (Report) CollectionName() string {
	return "reports"
}
