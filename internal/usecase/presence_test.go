package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelhotel/messenger/internal/config"
	"github.com/pixelhotel/messenger/internal/models"
	"github.com/pixelhotel/messenger/internal/usecase"
	"github.com/pixelhotel/messenger/pkg/clock"
)

// memPresence is an in-memory stand-in for the presence repository.
type memPresence struct {
	records map[string]models.PresenceRecord
	touches []string
}

func newMemPresence() *memPresence {
	return &memPresence{records: make(map[string]models.PresenceRecord)}
}

func (m *memPresence) Get(_ context.Context, userID string) (*models.PresenceRecord, error) {
	if rec, ok := m.records[userID]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (m *memPresence) FetchMany(_ context.Context, userIDs []string) ([]models.PresenceRecord, error) {
	out := make([]models.PresenceRecord, 0, len(userIDs))
	for _, id := range userIDs {
		if rec, ok := m.records[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memPresence) Touch(_ context.Context, userID string, online bool) error {
	rec, ok := m.records[userID]
	if !ok {
		rec = models.PresenceRecord{UserID: userID, AppearOnline: true}
	}
	rec.RawOnline = online
	rec.LastUpdateAt = time.Now()
	m.records[userID] = rec
	m.touches = append(m.touches, userID)
	return nil
}

func (m *memPresence) SetAppearOnline(_ context.Context, userID string, appear bool) error {
	rec, ok := m.records[userID]
	if !ok {
		rec = models.PresenceRecord{UserID: userID}
	}
	rec.AppearOnline = appear
	m.records[userID] = rec
	return nil
}

func presenceConfig() *config.Config {
	return &config.Config{
		Session: config.SessionConfig{PresenceStaleness: 5 * time.Minute},
	}
}

func TestPresenceTracker(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("fresh raw online is effective", func(t *testing.T) {
		clk := clock.NewMock(start)
		tracker := usecase.NewPresenceTracker(presenceConfig(), newMemPresence(), clk)

		rec := models.PresenceRecord{UserID: "u1", RawOnline: true, LastUpdateAt: start.Add(-4 * time.Minute)}
		assert.True(t, tracker.EffectiveOnline(rec))
	})

	t.Run("stale raw online is not believed", func(t *testing.T) {
		clk := clock.NewMock(start)
		tracker := usecase.NewPresenceTracker(presenceConfig(), newMemPresence(), clk)

		rec := models.PresenceRecord{UserID: "u1", RawOnline: true, LastUpdateAt: start.Add(-6 * time.Minute)}
		assert.False(t, tracker.EffectiveOnline(rec))
	})

	t.Run("raw offline is offline regardless of freshness", func(t *testing.T) {
		clk := clock.NewMock(start)
		tracker := usecase.NewPresenceTracker(presenceConfig(), newMemPresence(), clk)

		rec := models.PresenceRecord{UserID: "u1", RawOnline: false, LastUpdateAt: start}
		assert.False(t, tracker.EffectiveOnline(rec))
	})

	t.Run("apply update reports changes against the cache", func(t *testing.T) {
		clk := clock.NewMock(start)
		tracker := usecase.NewPresenceTracker(presenceConfig(), newMemPresence(), clk)

		online, changed := tracker.ApplyUpdate(models.PresenceRecord{
			UserID: "u1", RawOnline: true, LastUpdateAt: start,
		})
		assert.True(t, online)
		assert.True(t, changed, "first observation always counts as a change")

		online, changed = tracker.ApplyUpdate(models.PresenceRecord{
			UserID: "u1", RawOnline: true, LastUpdateAt: start,
		})
		assert.True(t, online)
		assert.False(t, changed)

		online, changed = tracker.ApplyUpdate(models.PresenceRecord{
			UserID: "u1", RawOnline: false, LastUpdateAt: start,
		})
		assert.False(t, online)
		assert.True(t, changed)
	})

	t.Run("snapshot treats missing records as offline", func(t *testing.T) {
		clk := clock.NewMock(start)
		repo := newMemPresence()
		repo.records["u1"] = models.PresenceRecord{UserID: "u1", RawOnline: true, LastUpdateAt: start.Add(-time.Minute)}
		tracker := usecase.NewPresenceTracker(presenceConfig(), repo, clk)

		snapshot, err := tracker.Snapshot(context.Background(), []string{"u1", "u2"})
		require.NoError(t, err)
		assert.True(t, snapshot["u1"])
		assert.False(t, snapshot["u2"])
	})

	t.Run("keepalive honors appear online preference", func(t *testing.T) {
		clk := clock.NewMock(start)
		repo := newMemPresence()
		repo.records["u1"] = models.PresenceRecord{UserID: "u1", AppearOnline: false}
		tracker := usecase.NewPresenceTracker(presenceConfig(), repo, clk)

		require.NoError(t, tracker.KeepAlive(context.Background(), "u1"))
		assert.False(t, repo.records["u1"].RawOnline)

		// An unknown user defaults to appearing online.
		require.NoError(t, tracker.KeepAlive(context.Background(), "u2"))
		assert.True(t, repo.records["u2"].RawOnline)
	})
}
