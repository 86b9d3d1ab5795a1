package session

import (
	"context"
	"time"

	log "github.com/carousell/ct-go/pkg/logger/log_context"

	"github.com/pixelhotel/messenger/internal/config"
	"github.com/pixelhotel/messenger/internal/models"
	"github.com/pixelhotel/messenger/internal/usecase"
)

// Session is the delivery reconciler for one signed-in user: a
// single-writer actor that owns the conversation list and the open
// conversation's timeline. Push events, the two poll timers and user
// commands all funnel through the actor loop, so every mutation is one
// atomic replacement of the owned state and no locking is needed.
//
// The list poll runs only while no conversation is open; the timeline
// poll only while one is. The push feed stays attached for the whole
// session. Everything stops when the session context is cancelled.
type Session struct {
	userID string

	messenger usecase.MessengerUsecase
	tracker   usecase.PresenceTracker

	events chan models.FeedEvent
	cmds   chan func(*state)

	listInterval     time.Duration
	timelineInterval time.Duration
	keepAlive        time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// state is only ever touched from inside the actor loop.
type state struct {
	conversations []models.Conversation
	openWith      string
	timeline      []models.Message
}

func newSession(userID string, conf *config.Config, messenger usecase.MessengerUsecase, tracker usecase.PresenceTracker) *Session {
	return &Session{
		userID:           userID,
		messenger:        messenger,
		tracker:          tracker,
		events:           make(chan models.FeedEvent, 64),
		cmds:             make(chan func(*state), 16),
		listInterval:     conf.Session.ListPollInterval,
		timelineInterval: conf.Session.TimelinePollInterval,
		keepAlive:        conf.Session.KeepAliveInterval,
		done:             make(chan struct{}),
	}
}

// Deliver hands a push event to the actor. Events for a saturated or
// closed session are dropped; the poll paths recover them.
func (s *Session) Deliver(event models.FeedEvent) {
	select {
	case s.events <- event:
	case <-s.done:
	default:
	}
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	listTicker := time.NewTicker(s.listInterval)
	defer listTicker.Stop()
	timelineTicker := time.NewTicker(s.timelineInterval)
	timelineTicker.Stop()
	keepAliveTicker := time.NewTicker(s.keepAlive)
	defer keepAliveTicker.Stop()
	presenceTicker := time.NewTicker(s.listInterval)
	defer presenceTicker.Stop()

	st := &state{conversations: []models.Conversation{}}
	s.refreshList(ctx, st)

	for {
		select {
		case <-ctx.Done():
			return

		case event := <-s.events:
			s.applyPush(ctx, st, event)

		case cmd := <-s.cmds:
			before := st.openWith
			cmd(st)
			if st.openWith != before {
				// Swap which poll loop is live when the open conversation
				// changes.
				if st.openWith == "" {
					timelineTicker.Stop()
					listTicker.Reset(s.listInterval)
					s.refreshList(ctx, st)
				} else {
					listTicker.Stop()
					timelineTicker.Reset(s.timelineInterval)
				}
			}

		case <-listTicker.C:
			if st.openWith == "" {
				s.refreshList(ctx, st)
			}

		case <-timelineTicker.C:
			if st.openWith != "" {
				s.refreshTimeline(ctx, st)
			}

		case <-presenceTicker.C:
			s.recheckPresence(ctx, st)

		case <-keepAliveTicker.C:
			if err := s.tracker.KeepAlive(ctx, s.userID); err != nil {
				log.Warnw(ctx, "presence keep-alive failed", "error", err, "user_id", s.userID)
			}
		}
	}
}

// Open switches the session to a conversation: fetches the timeline
// (marking unread messages read), zeroes the unread counter and flips
// the poll loops.
func (s *Session) Open(ctx context.Context, otherID string) ([]models.Message, error) {
	timeline, err := s.messenger.OpenConversation(ctx, s.userID, otherID)
	if err != nil {
		return nil, err
	}
	s.do(ctx, func(st *state) {
		st.openWith = otherID
		st.timeline = timeline
		for i := range st.conversations {
			if st.conversations[i].CounterpartID == otherID {
				st.conversations[i].UnreadCount = 0
			}
		}
	})
	return timeline, nil
}

// Close returns the session to list browsing.
func (s *Session) Close(ctx context.Context) {
	s.do(ctx, func(st *state) {
		st.openWith = ""
		st.timeline = nil
	})
}

// Conversations returns a copy of the current conversation list.
func (s *Session) Conversations(ctx context.Context) []models.Conversation {
	var out []models.Conversation
	s.do(ctx, func(st *state) {
		out = append([]models.Conversation(nil), st.conversations...)
	})
	return out
}

// Timeline returns a copy of the open conversation's timeline.
func (s *Session) Timeline(ctx context.Context) []models.Message {
	var out []models.Message
	s.do(ctx, func(st *state) {
		out = append([]models.Message(nil), st.timeline...)
	})
	return out
}

func (s *Session) do(ctx context.Context, fn func(*state)) {
	applied := make(chan struct{})
	select {
	case s.cmds <- func(st *state) {
		fn(st)
		close(applied)
	}:
	case <-s.done:
		return
	case <-ctx.Done():
		return
	}
	select {
	case <-applied:
	case <-s.done:
	case <-ctx.Done():
	}
}

func (s *Session) applyPush(ctx context.Context, st *state, event models.FeedEvent) {
	switch event.Pattern {
	case models.PatternMessageInserted:
		msg := event.Data.Message
		if msg == nil {
			return
		}
		counterpart := msg.CounterpartOf(s.userID)
		if st.openWith != "" && counterpart == st.openWith {
			st.timeline = AppendIfNew(st.timeline, *msg)
			return
		}
		for i := range st.conversations {
			if st.conversations[i].CounterpartID == counterpart {
				st.conversations[i].UnreadCount++
				st.conversations[i].LastMessage = msg.Body
				st.conversations[i].LastMessageAt = msg.CreatedAt
				return
			}
		}
		// Unknown counterpart: show a placeholder immediately, then let a
		// full refresh resolve the identity.
		st.conversations = append([]models.Conversation{models.PlaceholderFor(*msg, s.userID)}, st.conversations...)
		if st.openWith == "" {
			s.refreshList(ctx, st)
		}

	case models.PatternMessageRead:
		for i := range st.conversations {
			if st.conversations[i].CounterpartID == event.Data.CounterpartID {
				st.conversations[i].UnreadCount = 0
			}
		}

	case models.PatternPresenceUpdated:
		rec := event.Data.Presence
		if rec == nil {
			return
		}
		online, changed := s.tracker.ApplyUpdate(*rec)
		if !changed {
			return
		}
		for i := range st.conversations {
			if st.conversations[i].CounterpartID == rec.UserID {
				st.conversations[i].IsOnline = online
			}
		}
	}
}

// recheckPresence is the presence pull path: re-verify every current
// counterpart and touch entries only when the effective value changed.
func (s *Session) recheckPresence(ctx context.Context, st *state) {
	if len(st.conversations) == 0 {
		return
	}
	ids := make([]string, 0, len(st.conversations))
	for _, conv := range st.conversations {
		ids = append(ids, conv.CounterpartID)
	}
	online, err := s.tracker.Snapshot(ctx, ids)
	if err != nil {
		log.Warnw(ctx, "presence recheck failed", "error", err, "user_id", s.userID)
		return
	}
	for i := range st.conversations {
		if v, ok := online[st.conversations[i].CounterpartID]; ok && v != st.conversations[i].IsOnline {
			st.conversations[i].IsOnline = v
		}
	}
}

func (s *Session) refreshList(ctx context.Context, st *state) {
	conversations, err := s.messenger.ListConversations(ctx, s.userID)
	if err != nil {
		log.Errorw(ctx, "conversation list refresh failed", "error", err, "user_id", s.userID)
		return
	}
	st.conversations = conversations
}

func (s *Session) refreshTimeline(ctx context.Context, st *state) {
	fetched, err := s.messenger.OpenConversation(ctx, s.userID, st.openWith)
	if err != nil {
		log.Errorw(ctx, "timeline refresh failed", "error", err,
			"user_id", s.userID, "other_id", st.openWith)
		return
	}
	st.timeline = MergeTimelines(st.timeline, fetched)
}
