package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"time"

	log "github.com/carousell/ct-go/pkg/logger/log_context"
	"github.com/carousell/ct-go/pkg/workerpool"
	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"

	"github.com/pixelhotel/messenger/internal/config"
	"github.com/pixelhotel/messenger/internal/models"
	"github.com/pixelhotel/messenger/internal/session"
)

// maxReadFailures is how many consecutive reader errors are tolerated
// before the process shuts down for a supervisor restart.
const maxReadFailures = 10

type feedReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// StartConsumeFeed attaches the push delivery path: feed events are read
// from the broker and routed to the receiving user's live session.
// Transient fetch errors back off and retry while the poll paths cover
// the gap; only a reader that keeps failing takes the app down.
func StartConsumeFeed(
	sd fx.Shutdowner,
	lc fx.Lifecycle,
	conf *config.Config,
	manager *session.Manager,
) error {
	if !conf.Kafka.Enabled {
		log.Warnf(context.Background(), "feed consumer is disabled in configuration")
		return nil
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     conf.Kafka.Brokers,
		GroupID:     conf.Kafka.GroupID,
		GroupTopics: []string{conf.Kafka.Topic},
		StartOffset: kafka.LastOffset,
	})
	pool := workerpool.New(4)
	consumerCtx, cancel := context.WithCancel(context.Background())

	handle := func(ctx context.Context, msg kafka.Message) (err error) {
		defer func() {
			if r := recover(); r != nil {
				stack := make([]byte, 4096)
				length := runtime.Stack(stack, false)
				err = fmt.Errorf("PANIC RECOVER: %+v / %s", r, string(stack[:length]))
			}
		}()

		var event models.FeedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return fmt.Errorf("unmarshal feed event: %w", err)
		}

		switch event.Pattern {
		case models.PatternMessageInserted,
			models.PatternMessageRead,
			models.PatternPresenceUpdated:
		default:
			return nil
		}

		if s, ok := manager.Get(event.UserID); ok {
			s.Deliver(event)
		}
		return nil
	}

	dispatch := func(msg kafka.Message) {
		pool.Run(func() {
			if err := handle(consumerCtx, msg); err != nil {
				log.Errorw(consumerCtx, "error handling feed event",
					"error", err,
					"topic", msg.Topic,
					"partition", msg.Partition,
					"offset", msg.Offset,
					"key", string(msg.Key))
			}
		})
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go readFeed(consumerCtx, reader, sd, time.Second, dispatch)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			pool.Close()
			pool.Wait()
			return reader.Close()
		},
	})
	return nil
}

// readFeed pulls messages until the context is cancelled. Each error
// backs off with doubling delays starting from baseBackoff; a run of
// maxReadFailures consecutive errors requests an app shutdown.
func readFeed(ctx context.Context, reader feedReader, sd fx.Shutdowner, baseBackoff time.Duration, dispatch func(kafka.Message)) {
	backoff := baseBackoff
	failures := 0
	for ctx.Err() == nil {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			failures++
			if failures >= maxReadFailures {
				log.Errorw(ctx, "feed reader keeps failing, shutting down", "error", err)
				sd.Shutdown()
				return
			}
			log.Errorw(ctx, "error reading feed message", "error", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		failures = 0
		backoff = baseBackoff
		dispatch(msg)
	}
}
