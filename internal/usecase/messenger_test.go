package usecase_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelhotel/messenger/internal/config"
	"github.com/pixelhotel/messenger/internal/models"
	"github.com/pixelhotel/messenger/internal/usecase"
	"github.com/pixelhotel/messenger/pkg/clock"
)

// memMessages is an in-memory message store mirroring the mongo
// repository's behavior, including read-receipt stamping on fetch.
type memMessages struct {
	mu   sync.Mutex
	clk  clock.Clock
	seq  int
	rows []models.Message
}

func newMemMessages(clk clock.Clock) *memMessages {
	return &memMessages{clk: clk}
}

func (m *memMessages) Insert(_ context.Context, senderID, receiverID, body string) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	msg := models.Message{
		ID:         models.ObjectID(fmt.Sprintf("m%d", m.seq)),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       body,
		CreatedAt:  m.clk.Now(),
	}
	m.rows = append(m.rows, msg)
	return &msg, nil
}

func (m *memMessages) GetByID(_ context.Context, id models.ObjectID) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.ID == id {
			copied := row
			return &copied, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memMessages) FetchConversation(_ context.Context, userID, otherID string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clk.Now()
	out := make([]models.Message, 0)
	for i := range m.rows {
		row := &m.rows[i]
		pair := (row.SenderID == userID && row.ReceiverID == otherID) ||
			(row.SenderID == otherID && row.ReceiverID == userID)
		if !pair || !row.VisibleTo(userID) {
			continue
		}
		if row.IsUnreadFor(userID) {
			at := now
			row.ReadAt = &at
		}
		out = append(out, *row)
	}
	return out, nil
}

func (m *memMessages) FetchForUser(_ context.Context, userID string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Message, 0)
	for _, row := range m.rows {
		if row.SenderID == userID || row.ReceiverID == userID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memMessages) SoftDelete(_ context.Context, id models.ObjectID, bySender bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id {
			if bySender {
				m.rows[i].DeletedBySender = true
			} else {
				m.rows[i].DeletedByReceiver = true
			}
			return nil
		}
	}
	return models.ErrNotFound
}

func (m *memMessages) MarkReported(_ context.Context, id models.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows[i].IsReported = true
			return nil
		}
	}
	return models.ErrNotFound
}

func (m *memMessages) HardDeleteConversation(_ context.Context, userID, otherID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	var deleted int64
	for _, row := range m.rows {
		pair := (row.SenderID == userID && row.ReceiverID == otherID) ||
			(row.SenderID == otherID && row.ReceiverID == userID)
		if pair {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	m.rows = kept
	return deleted, nil
}

// memBlocks is an in-memory block list.
type memBlocks struct {
	relations []models.BlockRelation
}

func newMemBlocks() *memBlocks {
	return &memBlocks{}
}

func (m *memBlocks) Block(_ context.Context, blockerID, blockedID string) error {
	for _, rel := range m.relations {
		if rel.BlockerID == blockerID && rel.BlockedID == blockedID {
			return nil
		}
	}
	m.relations = append(m.relations, models.BlockRelation{BlockerID: blockerID, BlockedID: blockedID})
	return nil
}

func (m *memBlocks) Unblock(_ context.Context, blockerID, blockedID string) error {
	kept := m.relations[:0]
	for _, rel := range m.relations {
		if rel.BlockerID == blockerID && rel.BlockedID == blockedID {
			continue
		}
		kept = append(kept, rel)
	}
	m.relations = kept
	return nil
}

func (m *memBlocks) ListBlocked(_ context.Context, blockerID string) ([]models.BlockRelation, error) {
	out := make([]models.BlockRelation, 0)
	for _, rel := range m.relations {
		if rel.BlockerID == blockerID {
			out = append(out, rel)
		}
	}
	return out, nil
}

func (m *memBlocks) IsBlockedEither(_ context.Context, a, b string) (bool, error) {
	for _, rel := range m.relations {
		if (rel.BlockerID == a && rel.BlockedID == b) || (rel.BlockerID == b && rel.BlockedID == a) {
			return true, nil
		}
	}
	return false, nil
}

// memReports records report calls.
type memReports struct {
	created []string
}

func (m *memReports) Create(_ context.Context, messageID models.ObjectID, reporterID, reason string) error {
	m.created = append(m.created, string(messageID)+":"+reporterID+":"+reason)
	return nil
}

// capturePublisher records published feed events.
type capturePublisher struct {
	mu     sync.Mutex
	events []models.FeedEvent
}

func (p *capturePublisher) Publish(_ context.Context, event models.FeedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) byPattern(pattern string) []models.FeedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.FeedEvent, 0)
	for _, e := range p.events {
		if e.Pattern == pattern {
			out = append(out, e)
		}
	}
	return out
}

// captureBridge records unread-refresh fanouts.
type captureBridge struct {
	refreshed []string
}

func (b *captureBridge) RefreshUnreadCount(_ context.Context, userID string) {
	b.refreshed = append(b.refreshed, userID)
}

// countingLimiter wraps the real sliding-window limiter and records how
// many checks reach it.
type countingLimiter struct {
	inner usecase.RateLimiter
	calls int
}

func (l *countingLimiter) Check(key string, conf usecase.LimitConfig) usecase.LimitResult {
	l.calls++
	return l.inner.Check(key, conf)
}

type messengerFixture struct {
	clk       *clock.Mock
	messages  *memMessages
	blocks    *memBlocks
	reports   *memReports
	presence  *memPresence
	publisher *capturePublisher
	bridge    *captureBridge
	limiter   *countingLimiter
	uc        usecase.MessengerUsecase
}

func newMessengerFixture(t *testing.T) *messengerFixture {
	t.Helper()

	conf := &config.Config{
		Limits: config.LimitsConfig{
			MessageWindow:      8 * time.Second,
			MessageMax:         5,
			CommentCooldown:    30 * time.Second,
			CommentBurstWindow: 10 * time.Minute,
			CommentBurstMax:    3,
			TargetRestriction:  time.Hour,
			GlobalRestriction:  6 * time.Hour,
			SpamTargetCount:    3,
		},
		Session: config.SessionConfig{PresenceStaleness: 5 * time.Minute},
		Spam: config.SpamConfig{
			MaxMessageLength:  1000,
			RepetitionHorizon: 30 * time.Second,
			RepetitionDepth:   3,
			MaxCharRun:        12,
		},
	}

	clk := clock.NewMock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	messages := newMemMessages(clk)
	blocks := newMemBlocks()
	reports := &memReports{}
	presence := newMemPresence()
	publisher := &capturePublisher{}
	bridge := &captureBridge{}
	limiter := &countingLimiter{inner: usecase.NewRateLimiter(clk)}

	spam, err := usecase.NewSpamFilter(conf, clk)
	require.NoError(t, err)
	abuse := usecase.NewAbusePolicy(conf, newMemAbuseStates(), clk)
	tracker := usecase.NewPresenceTracker(conf, presence, clk)
	directory := &memDirectory{identities: map[string]models.Identity{
		"u1": {UserID: "u1", DisplayName: "Alice"},
		"u2": {UserID: "u2", DisplayName: "Bobba"},
		"u3": {UserID: "u3", DisplayName: "Casper"},
	}}
	aggregator := usecase.NewConversationAggregator(directory, tracker)

	uc := usecase.NewMessengerUsecase(conf, messages, blocks, reports, presence,
		aggregator, spam, limiter, abuse, publisher, bridge, clk)

	return &messengerFixture{
		clk:       clk,
		messages:  messages,
		blocks:    blocks,
		reports:   reports,
		presence:  presence,
		publisher: publisher,
		bridge:    bridge,
		limiter:   limiter,
		uc:        uc,
	}
}

func TestSendMessage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("persists and fans out to the receiver", func(t *testing.T) {
		fx := newMessengerFixture(t)

		msg, err := fx.uc.SendMessage(ctx, "u1", "u2", "hello")
		require.NoError(t, err)
		assert.Equal(t, "u1", msg.SenderID)
		assert.Equal(t, "u2", msg.ReceiverID)
		assert.Equal(t, "hello", msg.Body)
		assert.Nil(t, msg.ReadAt)

		inserted := fx.publisher.byPattern(models.PatternMessageInserted)
		require.Len(t, inserted, 1)
		assert.Equal(t, "u2", inserted[0].UserID, "push event is keyed to the receiver")
		assert.Equal(t, []string{"u2"}, fx.bridge.refreshed)
	})

	t.Run("rejects empty body before anything else runs", func(t *testing.T) {
		fx := newMessengerFixture(t)

		_, err := fx.uc.SendMessage(ctx, "u1", "u2", "   ")
		var ve *models.ValidationError
		assert.ErrorAs(t, err, &ve)
		assert.Zero(t, fx.limiter.calls)
	})

	t.Run("rejects sending to yourself", func(t *testing.T) {
		fx := newMessengerFixture(t)

		_, err := fx.uc.SendMessage(ctx, "u1", "u1", "hi me")
		var ve *models.ValidationError
		assert.ErrorAs(t, err, &ve)
	})

	t.Run("spam rejection never consumes rate limit budget", func(t *testing.T) {
		fx := newMessengerFixture(t)

		require.NoError(t, func() error {
			_, err := fx.uc.SendMessage(ctx, "u1", "u2", "hello")
			return err
		}())
		require.Equal(t, 1, fx.limiter.calls)

		// Immediate repeats are spam; none of them reach the limiter.
		for i := 0; i < 10; i++ {
			_, err := fx.uc.SendMessage(ctx, "u1", "u2", "hello")
			var se *models.SpamRejectedError
			require.ErrorAs(t, err, &se)
		}
		assert.Equal(t, 1, fx.limiter.calls)
	})

	t.Run("blocked pair is denied in both directions", func(t *testing.T) {
		fx := newMessengerFixture(t)
		require.NoError(t, fx.uc.BlockUser(ctx, "u2", "u1"))

		_, err := fx.uc.SendMessage(ctx, "u1", "u2", "let me in")
		var pde *models.PermissionDeniedError
		require.ErrorAs(t, err, &pde)

		_, err = fx.uc.SendMessage(ctx, "u2", "u1", "blocked you")
		require.ErrorAs(t, err, &pde)

		require.NoError(t, fx.uc.UnblockUser(ctx, "u2", "u1"))
		_, err = fx.uc.SendMessage(ctx, "u1", "u2", "we are back")
		assert.NoError(t, err)
	})

	t.Run("fifth message inside the window is rate limited", func(t *testing.T) {
		fx := newMessengerFixture(t)

		for i := 0; i < 4; i++ {
			_, err := fx.uc.SendMessage(ctx, "u1", "u2", fmt.Sprintf("message %d", i))
			require.NoError(t, err)
			fx.clk.Advance(time.Second)
		}

		_, err := fx.uc.SendMessage(ctx, "u1", "u2", "one too many")
		var rle *models.RateLimitError
		require.ErrorAs(t, err, &rle)
		assert.Equal(t, models.LevelNormal, rle.Level)
		assert.Greater(t, rle.RetryAfter, time.Duration(0))

		fx.clk.Advance(8 * time.Second)
		_, err = fx.uc.SendMessage(ctx, "u1", "u2", "back under the limit")
		assert.NoError(t, err)
	})
}

func TestConversationFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("receiver sees the unread conversation then reads it", func(t *testing.T) {
		fx := newMessengerFixture(t)

		_, err := fx.uc.SendMessage(ctx, "u1", "u2", "hello")
		require.NoError(t, err)

		conversations, err := fx.uc.ListConversations(ctx, "u2")
		require.NoError(t, err)
		require.Len(t, conversations, 1)
		assert.Equal(t, "u1", conversations[0].CounterpartID)
		assert.Equal(t, "Alice", conversations[0].DisplayName)
		assert.Equal(t, "hello", conversations[0].LastMessage)
		assert.Equal(t, 1, conversations[0].UnreadCount)

		timeline, err := fx.uc.OpenConversation(ctx, "u2", "u1")
		require.NoError(t, err)
		require.Len(t, timeline, 1)
		assert.NotNil(t, timeline[0].ReadAt)

		read := fx.publisher.byPattern(models.PatternMessageRead)
		require.Len(t, read, 1)
		assert.Equal(t, "u2", read[0].UserID)
		assert.Equal(t, "u1", read[0].Data.CounterpartID)

		conversations, err = fx.uc.ListConversations(ctx, "u2")
		require.NoError(t, err)
		require.Len(t, conversations, 1)
		assert.Zero(t, conversations[0].UnreadCount)
	})

	t.Run("sender deletion hides the message from the sender only", func(t *testing.T) {
		fx := newMessengerFixture(t)

		msg, err := fx.uc.SendMessage(ctx, "u1", "u2", "regret this")
		require.NoError(t, err)
		require.NoError(t, fx.uc.DeleteMessage(ctx, "u1", msg.ID))

		mine, err := fx.uc.OpenConversation(ctx, "u1", "u2")
		require.NoError(t, err)
		assert.Empty(t, mine)

		theirs, err := fx.uc.OpenConversation(ctx, "u2", "u1")
		require.NoError(t, err)
		assert.Len(t, theirs, 1)
	})

	t.Run("outsiders cannot delete or report", func(t *testing.T) {
		fx := newMessengerFixture(t)

		msg, err := fx.uc.SendMessage(ctx, "u1", "u2", "private")
		require.NoError(t, err)

		var pde *models.PermissionDeniedError
		assert.ErrorAs(t, fx.uc.DeleteMessage(ctx, "u3", msg.ID), &pde)
		assert.ErrorAs(t, fx.uc.ReportMessage(ctx, "u3", msg.ID, "rude"), &pde)
	})

	t.Run("reporting records the report and flags the message", func(t *testing.T) {
		fx := newMessengerFixture(t)

		msg, err := fx.uc.SendMessage(ctx, "u1", "u2", "scam link")
		require.NoError(t, err)
		require.NoError(t, fx.uc.ReportMessage(ctx, "u2", msg.ID, "scam"))

		require.Len(t, fx.reports.created, 1)
		stored, err := fx.messages.GetByID(ctx, msg.ID)
		require.NoError(t, err)
		assert.True(t, stored.IsReported)

		var ve *models.ValidationError
		assert.ErrorAs(t, fx.uc.ReportMessage(ctx, "u2", msg.ID, "  "), &ve)
	})

	t.Run("erase removes the pair rows and refreshes both parties", func(t *testing.T) {
		fx := newMessengerFixture(t)

		_, err := fx.uc.SendMessage(ctx, "u1", "u2", "one")
		require.NoError(t, err)
		fx.clk.Advance(time.Second)
		_, err = fx.uc.SendMessage(ctx, "u2", "u1", "two")
		require.NoError(t, err)
		fx.clk.Advance(time.Second)
		_, err = fx.uc.SendMessage(ctx, "u1", "u3", "unrelated")
		require.NoError(t, err)

		fx.bridge.refreshed = nil
		require.NoError(t, fx.uc.EraseConversation(ctx, "u1", "u2"))
		assert.ElementsMatch(t, []string{"u1", "u2"}, fx.bridge.refreshed)

		timeline, err := fx.uc.OpenConversation(ctx, "u1", "u2")
		require.NoError(t, err)
		assert.Empty(t, timeline)

		other, err := fx.uc.OpenConversation(ctx, "u3", "u1")
		require.NoError(t, err)
		assert.Len(t, other, 1)
	})

	t.Run("missing message surfaces not found", func(t *testing.T) {
		fx := newMessengerFixture(t)

		err := fx.uc.DeleteMessage(ctx, "u1", models.ObjectID("nope"))
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestPostComment(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("gates comments through the escalation policy", func(t *testing.T) {
		fx := newMessengerFixture(t)

		require.NoError(t, fx.uc.PostComment(ctx, "u1", "photo:1"))

		err := fx.uc.PostComment(ctx, "u1", "photo:1")
		var rle *models.RateLimitError
		require.ErrorAs(t, err, &rle)
		assert.Equal(t, models.LevelNormal, rle.Level)

		fx.clk.Advance(31 * time.Second)
		assert.NoError(t, fx.uc.PostComment(ctx, "u1", "photo:1"))
	})
}
