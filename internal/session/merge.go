package session

import (
	"sort"

	"github.com/pixelhotel/messenger/internal/models"
)

// MergeTimelines reconciles two message slices into one timeline:
// collapse by message ID (last write wins, so a poll snapshot refreshes
// readAt set by an earlier push), then sort by createdAt. The merge is
// idempotent and commutative, which is what lets the push path and the
// poll path race for the same message safely.
func MergeTimelines(existing, incoming []models.Message) []models.Message {
	byID := make(map[models.ObjectID]models.Message, len(existing)+len(incoming))
	order := make([]models.ObjectID, 0, len(existing)+len(incoming))
	for _, msg := range existing {
		if _, seen := byID[msg.ID]; !seen {
			order = append(order, msg.ID)
		}
		byID[msg.ID] = msg
	}
	for _, msg := range incoming {
		if _, seen := byID[msg.ID]; !seen {
			order = append(order, msg.ID)
		}
		byID[msg.ID] = msg
	}

	merged := make([]models.Message, 0, len(order))
	for _, id := range order {
		merged = append(merged, byID[id])
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})
	return merged
}

// AppendIfNew appends msg unless the timeline already contains its ID.
func AppendIfNew(timeline []models.Message, msg models.Message) []models.Message {
	for _, existing := range timeline {
		if existing.ID == msg.ID {
			return timeline
		}
	}
	timeline = append(timeline, msg)
	sort.SliceStable(timeline, func(i, j int) bool {
		return timeline[i].CreatedAt.Before(timeline[j].CreatedAt)
	})
	return timeline
}
