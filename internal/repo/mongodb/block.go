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

type BlockRepository interface {
	Block(ctx context.Context, blockerID, blockedID string) error
	Unblock(ctx context.Context, blockerID, blockedID string) error
	ListBlocked(ctx context.Context, blockerID string) ([]models.BlockRelation, error)
	// IsBlockedEither reports whether a block exists in either direction
	// between the two users.
	IsBlockedEither(ctx context.Context, a, b string) (bool, error)
}

type blockRepo struct {
	collection *mongo.Collection
	clock      clock.Clock
}

func NewBlockRepository(db *DB, clk clock.Clock) BlockRepository {
	return &blockRepo{
		collection: db.Database.Collection(models.BlockRelation{}.CollectionName()),
		clock:      clk,
	}
}

func (r *blockRepo) Block(ctx context.Context, blockerID, blockedID string) error {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	// Upsert keeps the pair unique without a separate existence check.
	filter := bson.M{"blocker_id": blockerID, "blocked_id": blockedID}
	update := bson.M{
		"$setOnInsert": bson.M{
			"_id":        models.NewObjectID(),
			"blocker_id": blockerID,
			"blocked_id": blockedID,
			"created_at": r.clock.Now(),
		},
	}
	opts := options.Update().SetUpsert(true)
	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return &models.PersistenceError{Op: "block user", Err: err}
	}
	return nil
}

func (r *blockRepo) Unblock(ctx context.Context, blockerID, blockedID string) error {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	result, err := r.collection.DeleteOne(ctx, bson.M{
		"blocker_id": blockerID,
		"blocked_id": blockedID,
	})
	if err != nil {
		return &models.PersistenceError{Op: "unblock user", Err: err}
	}
	if result.DeletedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *blockRepo) ListBlocked(ctx context.Context, blockerID string) ([]models.BlockRelation, error) {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, bson.M{"blocker_id": blockerID})
	if err != nil {
		return nil, &models.PersistenceError{Op: "list blocked", Err: err}
	}
	var relations []models.BlockRelation
	if err := cursor.All(ctx, &relations); err != nil {
		return nil, &models.PersistenceError{Op: "list blocked", Err: err}
	}
	return relations, nil
}

func (r *blockRepo) IsBlockedEither(ctx context.Context, a, b string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	filter := bson.M{
		"$or": bson.A{
			bson.M{"blocker_id": a, "blocked_id": b},
			bson.M{"blocker_id": b, "blocked_id": a},
		},
	}
	err := r.collection.FindOne(ctx, filter).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, &models.PersistenceError{Op: "check block", Err: err}
	}
	return true, nil
}
