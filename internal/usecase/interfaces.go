package usecase

import (
	"context"

	"github.com/pixelhotel/messenger/internal/models"
)

// FeedPublisher pushes delivery events onto the realtime channel. Loss
// of the channel is compensated by the poll paths, so publish failures
// are logged, never fatal to the triggering operation.
type FeedPublisher interface {
	Publish(ctx context.Context, event models.FeedEvent) error
}

// NotificationBridge tells the rest of the application that the global
// unread badge may have changed. One-way; no return contract.
type NotificationBridge interface {
	RefreshUnreadCount(ctx context.Context, userID string)
}
