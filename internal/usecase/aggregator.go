package usecase

import (
	"context"
	"sort"

	log "github.com/carousell/ct-go/pkg/logger/log_context"
	"golang.org/x/sync/errgroup"

	"github.com/pixelhotel/messenger/internal/models"
	"github.com/pixelhotel/messenger/internal/repo/identity"
)

// ConversationAggregator folds raw message rows into the per-counterpart
// conversation list: preview from the latest message, unread counters,
// resolved identity and effective online flags.
type ConversationAggregator interface {
	Build(ctx context.Context, selfID string, rows []models.Message) ([]models.Conversation, error)
}

type conversationAggregator struct {
	directory identity.Directory
	presence  PresenceTracker
}

func NewConversationAggregator(directory identity.Directory, presence PresenceTracker) ConversationAggregator {
	return &conversationAggregator{
		directory: directory,
		presence:  presence,
	}
}

func (a *conversationAggregator) Build(ctx context.Context, selfID string, rows []models.Message) ([]models.Conversation, error) {
	groups := make(map[string][]models.Message)
	order := make([]string, 0)
	for _, msg := range rows {
		if !msg.VisibleTo(selfID) {
			continue
		}
		other := msg.CounterpartOf(selfID)
		if other == selfID {
			continue
		}
		if _, seen := groups[other]; !seen {
			order = append(order, other)
		}
		groups[other] = append(groups[other], msg)
	}
	if len(groups) == 0 {
		return []models.Conversation{}, nil
	}

	// Identity and presence are independent lookups; batch both at once.
	var identities map[string]models.Identity
	var online map[string]bool
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		identities, err = a.directory.Lookup(gctx, order)
		return err
	})
	group.Go(func() error {
		var err error
		online, err = a.presence.Snapshot(gctx, order)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	conversations := make([]models.Conversation, 0, len(groups))
	for counterpart, msgs := range groups {
		ident, ok := identities[counterpart]
		if !ok {
			// A counterpart the directory cannot resolve (deleted account)
			// must not produce a stale conversation entry.
			log.Debugf(ctx, "dropping conversation with unresolved counterpart %s", counterpart)
			continue
		}

		latest := msgs[0]
		unread := 0
		for _, msg := range msgs {
			if msg.CreatedAt.After(latest.CreatedAt) {
				latest = msg
			}
			if msg.IsUnreadFor(selfID) {
				unread++
			}
		}

		conversations = append(conversations, models.Conversation{
			CounterpartID: counterpart,
			DisplayName:   ident.DisplayName,
			Figure:        ident.Figure,
			Hotel:         ident.Hotel,
			LastMessage:   latest.Body,
			LastMessageAt: latest.CreatedAt,
			UnreadCount:   unread,
			IsOnline:      online[counterpart],
		})
	}

	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].LastMessageAt.After(conversations[j].LastMessageAt)
	})
	return conversations, nil
}
