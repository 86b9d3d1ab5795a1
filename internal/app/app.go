package app

import (
	"github.com/carousell/ct-go/pkg/logger"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap/zapcore"

	"github.com/pixelhotel/messenger/internal/config"
	"github.com/pixelhotel/messenger/internal/kafka"
	"github.com/pixelhotel/messenger/internal/repo/identity"
	"github.com/pixelhotel/messenger/internal/repo/mongodb"
	"github.com/pixelhotel/messenger/internal/server"
	"github.com/pixelhotel/messenger/internal/session"
	"github.com/pixelhotel/messenger/internal/usecase"
	"github.com/pixelhotel/messenger/pkg/clock"
)

func Invoke(funcs ...any) *fx.App {
	log := logger.MustNamed("app")
	conf := config.MustLoad()
	log.Debugw("config loaded", log.Reflect("config", conf))
	return fx.New(
		fx.WithLogger(func() fxevent.Logger {
			l := &fxevent.ZapLogger{
				Logger: log.Unwrap().Desugar(),
			}
			l.UseLogLevel(zapcore.DebugLevel)
			return l
		}),
		fx.Provide(
			clock.New,
			newMongoDB,

			mongodb.NewMessageRepository,
			mongodb.NewBlockRepository,
			mongodb.NewReportRepository,
			mongodb.NewAbuseStateRepository,
			mongodb.NewPresenceRepository,

			identity.NewDirectory,

			usecase.NewRateLimiter,
			usecase.NewSpamFilter,
			usecase.NewAbusePolicy,
			usecase.NewPresenceTracker,
			usecase.NewConversationAggregator,
			usecase.NewMessengerUsecase,

			kafka.NewPublisher,
			newFeedPublisher,
			kafka.NewBridge,
			newNotificationBridge,

			session.NewManager,
			server.NewController,
		),
		fx.Supply(conf),
		fx.Invoke(funcs...),
	)
}

func newFeedPublisher(p *kafka.Publisher) usecase.FeedPublisher {
	return p
}

func newNotificationBridge(b *kafka.Bridge) usecase.NotificationBridge {
	return b
}
