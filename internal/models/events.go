package models

import "time"

// Feed event patterns carried over the broker. Messages are keyed by the
// receiving user so a consumer group can route them to live sessions.
const (
	PatternMessageInserted = "message.inserted"
	PatternMessageRead     = "message.read"
	PatternPresenceUpdated = "presence.updated"
	PatternUnreadRefresh   = "unread.refresh"
)

// FeedEvent is the wire envelope for the push delivery path.
type FeedEvent struct {
	Pattern   string        `json:"pattern"`
	UserID    string        `json:"user_id"`
	Data      FeedEventData `json:"data"`
	CreatedAt time.Time     `json:"created_at"`
}

type FeedEventData struct {
	Message  *Message        `json:"message,omitempty"`
	Presence *PresenceRecord `json:"presence,omitempty"`
	// CounterpartID identifies which conversation a read event applies to.
	CounterpartID string `json:"counterpart_id,omitempty"`
}
