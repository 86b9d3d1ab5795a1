package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pixelhotel/messenger/internal/models"
)

// AbuseStateRepository persists the layered escalation state per user.
// The whole record is replaced in one write so the three pieces of state
// never drift apart.
type AbuseStateRepository interface {
	// Load returns the user's state, or a fresh zero state if none exists.
	Load(ctx context.Context, userID string) (*models.AbuseState, error)
	Save(ctx context.Context, state *models.AbuseState) error
}

type abuseStateRepo struct {
	collection *mongo.Collection
}

func NewAbuseStateRepository(db *DB) AbuseStateRepository {
	return &abuseStateRepo{
		collection: db.Database.Collection(models.AbuseState{}.CollectionName()),
	}
}

func (r *abuseStateRepo) Load(ctx context.Context, userID string) (*models.AbuseState, error) {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	var state models.AbuseState
	err := r.collection.FindOne(ctx, bson.M{"_id": userID}).Decode(&state)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &models.AbuseState{
			UserID:             userID,
			TargetRestrictions: make(map[string]time.Time),
		}, nil
	}
	if err != nil {
		return nil, &models.PersistenceError{Op: "load abuse state", Err: err}
	}
	if state.TargetRestrictions == nil {
		state.TargetRestrictions = make(map[string]time.Time)
	}
	return &state, nil
}

func (r *abuseStateRepo) Save(ctx context.Context, state *models.AbuseState) error {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctx, bson.M{"_id": state.UserID}, state, opts); err != nil {
		return &models.PersistenceError{Op: "save abuse state", Err: err}
	}
	return nil
}
