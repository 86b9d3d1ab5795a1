package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/carousell/ct-go/pkg/logger/log_context"
	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"

	"github.com/pixelhotel/messenger/internal/config"
	"github.com/pixelhotel/messenger/internal/models"
	"github.com/pixelhotel/messenger/internal/usecase"
	"github.com/pixelhotel/messenger/pkg/clock"
)

// Publisher writes feed events to the broker, keyed by the receiving
// user so all events for one user land in one partition in order.
type Publisher struct {
	writer *kafka.Writer
	clock  clock.Clock
}

var _ usecase.FeedPublisher = (*Publisher)(nil)

func NewPublisher(lc fx.Lifecycle, conf *config.Config, clk clock.Clock) *Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(conf.Kafka.Brokers...),
		Topic:        conf.Kafka.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return writer.Close()
		},
	})
	return &Publisher{writer: writer, clock: clk}
}

func (p *Publisher) Publish(ctx context.Context, event models.FeedEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = p.clock.Now()
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal feed event: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.UserID),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("write feed event: %w", err)
	}
	return nil
}

// Bridge is the publisher-backed NotificationBridge: unread-badge
// refreshes ride the same feed topic as delivery events.
type Bridge struct {
	publisher *Publisher
}

var _ usecase.NotificationBridge = (*Bridge)(nil)

func NewBridge(publisher *Publisher) *Bridge {
	return &Bridge{publisher: publisher}
}

func (b *Bridge) RefreshUnreadCount(ctx context.Context, userID string) {
	event := models.FeedEvent{
		Pattern: models.PatternUnreadRefresh,
		UserID:  userID,
	}
	if err := b.publisher.Publish(ctx, event); err != nil {
		// One-way notification; a miss only delays the badge until the
		// next poll.
		log.Warnw(ctx, "failed to publish unread refresh", "error", err, "user_id", userID)
	}
}
