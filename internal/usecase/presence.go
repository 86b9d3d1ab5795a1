package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pixelhotel/messenger/internal/config"
	"github.com/pixelhotel/messenger/internal/models"
	"github.com/pixelhotel/messenger/internal/repo/mongodb"
	"github.com/pixelhotel/messenger/pkg/clock"
)

// PresenceTracker turns raw presence flags into trustworthy online
// state. A raw "online" is only believed within the staleness window of
// its last update, which guards against stuck flags after an ungraceful
// disconnect. It keeps a cache of the last effective value per user so
// the pull path can report change-only updates.
type PresenceTracker interface {
	EffectiveOnline(rec models.PresenceRecord) bool
	// ApplyUpdate feeds one push-path record and reports whether the
	// effective value changed against the cache.
	ApplyUpdate(rec models.PresenceRecord) (online bool, changed bool)
	// Snapshot re-fetches raw state for the given users (pull path) and
	// returns effective flags, updating the cache.
	Snapshot(ctx context.Context, userIDs []string) (map[string]bool, error)
	// KeepAlive refreshes the user's own raw presence, honoring the
	// stored "appear online" preference.
	KeepAlive(ctx context.Context, userID string) error
}

type presenceTracker struct {
	mu        sync.Mutex
	repo      mongodb.PresenceRepository
	clock     clock.Clock
	staleness time.Duration
	effective map[string]bool
}

func NewPresenceTracker(conf *config.Config, repo mongodb.PresenceRepository, clk clock.Clock) PresenceTracker {
	return &presenceTracker{
		repo:      repo,
		clock:     clk,
		staleness: conf.Session.PresenceStaleness,
		effective: make(map[string]bool),
	}
}

func (t *presenceTracker) EffectiveOnline(rec models.PresenceRecord) bool {
	return rec.RawOnline && t.clock.Now().Sub(rec.LastUpdateAt) <= t.staleness
}

func (t *presenceTracker) ApplyUpdate(rec models.PresenceRecord) (bool, bool) {
	online := t.EffectiveOnline(rec)

	t.mu.Lock()
	defer t.mu.Unlock()
	prev, seen := t.effective[rec.UserID]
	t.effective[rec.UserID] = online
	return online, !seen || prev != online
}

func (t *presenceTracker) Snapshot(ctx context.Context, userIDs []string) (map[string]bool, error) {
	if len(userIDs) == 0 {
		return map[string]bool{}, nil
	}
	records, err := t.repo.FetchMany(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("fetch presence records: %w", err)
	}

	byID := make(map[string]models.PresenceRecord, len(records))
	for _, rec := range records {
		byID[rec.UserID] = rec
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	result := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		online := false
		if rec, ok := byID[id]; ok {
			online = rec.RawOnline && t.clock.Now().Sub(rec.LastUpdateAt) <= t.staleness
		}
		t.effective[id] = online
		result[id] = online
	}
	return result, nil
}

func (t *presenceTracker) KeepAlive(ctx context.Context, userID string) error {
	rec, err := t.repo.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("get presence record: %w", err)
	}
	// The tracker never forces a user online against their preference.
	online := rec == nil || rec.AppearOnline
	if err := t.repo.Touch(ctx, userID, online); err != nil {
		return fmt.Errorf("touch presence: %w", err)
	}
	return nil
}
