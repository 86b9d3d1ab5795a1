package usecase

import (
	"context"
	"fmt"
	"strings"

	log "github.com/carousell/ct-go/pkg/logger/log_context"

	"github.com/pixelhotel/messenger/internal/config"
	"github.com/pixelhotel/messenger/internal/models"
	"github.com/pixelhotel/messenger/internal/repo/mongodb"
	"github.com/pixelhotel/messenger/pkg/clock"
)

// MessengerUsecase is the application surface of the messaging core.
// Validation, spam filtering and rate limiting all run before any
// persistence is attempted.
type MessengerUsecase interface {
	SendMessage(ctx context.Context, senderID, receiverID, body string) (*models.Message, error)
	ListConversations(ctx context.Context, userID string) ([]models.Conversation, error)
	// OpenConversation returns the visible pair timeline and marks the
	// caller's unread messages from the counterpart as read.
	OpenConversation(ctx context.Context, userID, otherID string) ([]models.Message, error)
	DeleteMessage(ctx context.Context, userID string, messageID models.ObjectID) error
	// EraseConversation is the privileged hard delete for the pair.
	EraseConversation(ctx context.Context, userID, otherID string) error
	BlockUser(ctx context.Context, blockerID, blockedID string) error
	UnblockUser(ctx context.Context, blockerID, blockedID string) error
	ListBlocked(ctx context.Context, blockerID string) ([]models.BlockRelation, error)
	ReportMessage(ctx context.Context, reporterID string, messageID models.ObjectID, reason string) error
	SetAppearOnline(ctx context.Context, userID string, appear bool) error
	// PostComment gates and records a profile or photo comment against
	// the layered escalation policy.
	PostComment(ctx context.Context, userID, targetID string) error
}

type messengerUsecase struct {
	messages mongodb.MessageRepository
	blocks   mongodb.BlockRepository
	reports  mongodb.ReportRepository
	presence mongodb.PresenceRepository

	aggregator ConversationAggregator
	spam       SpamFilter
	limiter    RateLimiter
	abuse      AbusePolicy
	publisher  FeedPublisher
	bridge     NotificationBridge
	clock      clock.Clock
	limits     config.LimitsConfig
}

func NewMessengerUsecase(
	conf *config.Config,
	messages mongodb.MessageRepository,
	blocks mongodb.BlockRepository,
	reports mongodb.ReportRepository,
	presence mongodb.PresenceRepository,
	aggregator ConversationAggregator,
	spam SpamFilter,
	limiter RateLimiter,
	abuse AbusePolicy,
	publisher FeedPublisher,
	bridge NotificationBridge,
	clk clock.Clock,
) MessengerUsecase {
	return &messengerUsecase{
		messages:   messages,
		blocks:     blocks,
		reports:    reports,
		presence:   presence,
		aggregator: aggregator,
		spam:       spam,
		limiter:    limiter,
		abuse:      abuse,
		publisher:  publisher,
		bridge:     bridge,
		clock:      clk,
		limits:     conf.Limits,
	}
}

func (uc *messengerUsecase) SendMessage(ctx context.Context, senderID, receiverID, body string) (*models.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, &models.ValidationError{Field: "body", Reason: "must not be empty"}
	}
	if receiverID == "" || receiverID == senderID {
		return nil, &models.ValidationError{Field: "receiver_id", Reason: "must name another user"}
	}

	// Content checks run before the limiter so rejected content never
	// consumes a rate-limit slot.
	if verdict := uc.spam.CheckMessage(senderID, body); !verdict.Valid {
		return nil, &models.SpamRejectedError{Reason: verdict.Reason}
	}

	blocked, err := uc.blocks.IsBlockedEither(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, &models.PermissionDeniedError{Reason: "conversation is blocked"}
	}

	result := uc.limiter.Check("chat_message:"+senderID, LimitConfig{
		Window:   uc.limits.MessageWindow,
		MaxCount: uc.limits.MessageMax,
	})
	if !result.Allowed {
		return nil, &models.RateLimitError{
			Level:      models.LevelNormal,
			RetryAfter: result.RetryAfter,
		}
	}

	msg, err := uc.messages.Insert(ctx, senderID, receiverID, body)
	if err != nil {
		return nil, err
	}

	uc.publishEvent(ctx, models.FeedEvent{
		Pattern:   models.PatternMessageInserted,
		UserID:    receiverID,
		Data:      models.FeedEventData{Message: msg},
		CreatedAt: uc.clock.Now(),
	})
	uc.bridge.RefreshUnreadCount(ctx, receiverID)

	return msg, nil
}

func (uc *messengerUsecase) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	rows, err := uc.messages.FetchForUser(ctx, userID)
	if err != nil {
		// Read-path persistence failures degrade to an empty list rather
		// than failing the caller.
		log.Errorw(ctx, "failed to fetch conversation rows", "error", err, "user_id", userID)
		return []models.Conversation{}, nil
	}
	conversations, err := uc.aggregator.Build(ctx, userID, rows)
	if err != nil {
		log.Errorw(ctx, "failed to aggregate conversations", "error", err, "user_id", userID)
		return []models.Conversation{}, nil
	}
	return conversations, nil
}

func (uc *messengerUsecase) OpenConversation(ctx context.Context, userID, otherID string) ([]models.Message, error) {
	messages, err := uc.messages.FetchConversation(ctx, userID, otherID)
	if err != nil {
		log.Errorw(ctx, "failed to fetch conversation", "error", err,
			"user_id", userID, "other_id", otherID)
		return []models.Message{}, nil
	}

	// Read receipts fan out so other live sessions of this user zero
	// their unread counter for the counterpart.
	uc.publishEvent(ctx, models.FeedEvent{
		Pattern:   models.PatternMessageRead,
		UserID:    userID,
		Data:      models.FeedEventData{CounterpartID: otherID},
		CreatedAt: uc.clock.Now(),
	})
	uc.bridge.RefreshUnreadCount(ctx, userID)

	return messages, nil
}

func (uc *messengerUsecase) DeleteMessage(ctx context.Context, userID string, messageID models.ObjectID) error {
	msg, err := uc.messages.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	switch userID {
	case msg.SenderID:
		return uc.messages.SoftDelete(ctx, messageID, true)
	case msg.ReceiverID:
		return uc.messages.SoftDelete(ctx, messageID, false)
	default:
		return &models.PermissionDeniedError{Reason: "not a participant of this message"}
	}
}

func (uc *messengerUsecase) EraseConversation(ctx context.Context, userID, otherID string) error {
	deleted, err := uc.messages.HardDeleteConversation(ctx, userID, otherID)
	if err != nil {
		return err
	}
	log.Infow(ctx, "conversation erased",
		"user_id", userID, "other_id", otherID, "deleted", deleted)
	uc.bridge.RefreshUnreadCount(ctx, userID)
	uc.bridge.RefreshUnreadCount(ctx, otherID)
	return nil
}

func (uc *messengerUsecase) BlockUser(ctx context.Context, blockerID, blockedID string) error {
	if blockedID == "" || blockedID == blockerID {
		return &models.ValidationError{Field: "blocked_id", Reason: "must name another user"}
	}
	return uc.blocks.Block(ctx, blockerID, blockedID)
}

func (uc *messengerUsecase) UnblockUser(ctx context.Context, blockerID, blockedID string) error {
	return uc.blocks.Unblock(ctx, blockerID, blockedID)
}

func (uc *messengerUsecase) ListBlocked(ctx context.Context, blockerID string) ([]models.BlockRelation, error) {
	return uc.blocks.ListBlocked(ctx, blockerID)
}

func (uc *messengerUsecase) ReportMessage(ctx context.Context, reporterID string, messageID models.ObjectID, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return &models.ValidationError{Field: "reason", Reason: "must not be empty"}
	}
	msg, err := uc.messages.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != reporterID && msg.ReceiverID != reporterID {
		return &models.PermissionDeniedError{Reason: "not a participant of this message"}
	}
	if err := uc.reports.Create(ctx, messageID, reporterID, reason); err != nil {
		return err
	}
	if err := uc.messages.MarkReported(ctx, messageID); err != nil {
		return fmt.Errorf("mark message reported: %w", err)
	}
	return nil
}

func (uc *messengerUsecase) SetAppearOnline(ctx context.Context, userID string, appear bool) error {
	return uc.presence.SetAppearOnline(ctx, userID, appear)
}

func (uc *messengerUsecase) PostComment(ctx context.Context, userID, targetID string) error {
	if err := uc.abuse.CheckComment(ctx, userID, targetID); err != nil {
		return err
	}
	return uc.abuse.RecordComment(ctx, userID, targetID)
}

func (uc *messengerUsecase) publishEvent(ctx context.Context, event models.FeedEvent) {
	if err := uc.publisher.Publish(ctx, event); err != nil {
		// The poll paths compensate for a lost push channel.
		log.Warnw(ctx, "failed to publish feed event",
			"error", err, "pattern", event.Pattern, "user_id", event.UserID)
	}
}
