package mongodb

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pixelhotel/messenger/internal/models"
	"github.com/pixelhotel/messenger/pkg/clock"
)

// PresenceRepository stores raw presence flags keyed by user. Only the
// keep-alive path writes raw flags; everything else reads.
type PresenceRepository interface {
	Get(ctx context.Context, userID string) (*models.PresenceRecord, error)
	FetchMany(ctx context.Context, userIDs []string) ([]models.PresenceRecord, error)
	// Touch sets the raw flag and stamps last_update_at with the current time.
	Touch(ctx context.Context, userID string, online bool) error
	SetAppearOnline(ctx context.Context, userID string, appear bool) error
}

type presenceRepo struct {
	collection *mongo.Collection
	clock      clock.Clock
}

func NewPresenceRepository(db *DB, clk clock.Clock) PresenceRepository {
	return &presenceRepo{
		collection: db.Database.Collection("presence"),
		clock:      clk,
	}
}

func (r *presenceRepo) Get(ctx context.Context, userID string) (*models.PresenceRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	var rec models.PresenceRecord
	err := r.collection.FindOne(ctx, bson.M{"_id": userID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, &models.PersistenceError{Op: "get presence", Err: err}
	}
	return &rec, nil
}

func (r *presenceRepo) FetchMany(ctx context.Context, userIDs []string) ([]models.PresenceRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": userIDs}})
	if err != nil {
		return nil, &models.PersistenceError{Op: "fetch presence", Err: err}
	}
	var records []models.PresenceRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, &models.PersistenceError{Op: "fetch presence", Err: err}
	}
	return records, nil
}

func (r *presenceRepo) Touch(ctx context.Context, userID string, online bool) error {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"raw_online":     online,
			"last_update_at": r.clock.Now(),
		},
		"$setOnInsert": bson.M{"appear_online": true},
	}
	opts := options.Update().SetUpsert(true)
	if _, err := r.collection.UpdateOne(ctx, bson.M{"_id": userID}, update, opts); err != nil {
		return &models.PersistenceError{Op: "touch presence", Err: err}
	}
	return nil
}

func (r *presenceRepo) SetAppearOnline(ctx context.Context, userID string, appear bool) error {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	update := bson.M{"$set": bson.M{"appear_online": appear}}
	opts := options.Update().SetUpsert(true)
	if _, err := r.collection.UpdateOne(ctx, bson.M{"_id": userID}, update, opts); err != nil {
		return &models.PersistenceError{Op: "set appear online", Err: err}
	}
	return nil
}
