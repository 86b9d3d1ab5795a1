package mongodb

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pixelhotel/messenger/internal/models"
	"github.com/pixelhotel/messenger/pkg/clock"
)

// fetchForUserLimit bounds the recent-history window used to build the
// conversation list. Callers assume this is enough for listing.
const fetchForUserLimit = 500

// persistTimeout caps every storage round trip; a timeout surfaces as a
// retryable PersistenceError.
const persistTimeout = 10 * time.Second

// MessageRepository owns the persistence contract for messages.
type MessageRepository interface {
	Insert(ctx context.Context, senderID, receiverID, body string) (*models.Message, error)
	GetByID(ctx context.Context, id models.ObjectID) (*models.Message, error)
	// FetchConversation returns the pair's messages visible to userID in
	// createdAt order and, in the same call, marks every unread message
	// from the counterpart as read.
	FetchConversation(ctx context.Context, userID, otherID string) ([]models.Message, error)
	// FetchForUser returns the user's recent visible rows (newest first)
	// for the conversation aggregator.
	FetchForUser(ctx context.Context, userID string) ([]models.Message, error)
	SoftDelete(ctx context.Context, id models.ObjectID, bySender bool) error
	MarkReported(ctx context.Context, id models.ObjectID) error
	// HardDeleteConversation removes every row for the pair. Privileged;
	// only administrative flows reach it.
	HardDeleteConversation(ctx context.Context, userID, otherID string) (int64, error)
}

type messageRepo struct {
	collection *mongo.Collection
	clock      clock.Clock
}

func NewMessageRepository(db *DB, clk clock.Clock) MessageRepository {
	return &messageRepo{
		collection: db.Database.Collection(models.Message{}.CollectionName()),
		clock:      clk,
	}
}

func pairFilter(userID, otherID string) bson.M {
	return bson.M{
		"$or": bson.A{
			bson.M{"sender_id": userID, "receiver_id": otherID},
			bson.M{"sender_id": otherID, "receiver_id": userID},
		},
	}
}

func (r *messageRepo) Insert(ctx context.Context, senderID, receiverID, body string) (*models.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, &models.ValidationError{Field: "body", Reason: "must not be empty"}
	}

	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	msg := &models.Message{
		ID:         models.NewObjectID(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       body,
		CreatedAt:  r.clock.Now(),
	}
	if _, err := r.collection.InsertOne(ctx, msg); err != nil {
		return nil, &models.PersistenceError{Op: "insert message", Err: err}
	}
	return msg, nil
}

func (r *messageRepo) GetByID(ctx context.Context, id models.ObjectID) (*models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	var msg models.Message
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, &models.PersistenceError{Op: "get message", Err: err}
	}
	return &msg, nil
}

func (r *messageRepo) FetchConversation(ctx context.Context, userID, otherID string) ([]models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	// Visibility is from the calling party's perspective.
	filter := bson.M{
		"$or": bson.A{
			bson.M{"sender_id": userID, "receiver_id": otherID, "deleted_by_sender": false},
			bson.M{"sender_id": otherID, "receiver_id": userID, "deleted_by_receiver": false},
		},
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, &models.PersistenceError{Op: "fetch conversation", Err: err}
	}
	var messages []models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, &models.PersistenceError{Op: "fetch conversation", Err: err}
	}

	// Mark-read shares the fetch's request boundary so unread counters
	// and readAt converge in one round trip from the caller's view.
	now := r.clock.Now()
	_, err = r.collection.UpdateMany(ctx,
		bson.M{
			"sender_id":   otherID,
			"receiver_id": userID,
			"read_at":     nil,
		},
		bson.M{"$set": bson.M{"read_at": now}},
	)
	if err != nil {
		return nil, &models.PersistenceError{Op: "mark conversation read", Err: err}
	}

	for i := range messages {
		if messages[i].IsUnreadFor(userID) {
			t := now
			messages[i].ReadAt = &t
		}
	}
	return messages, nil
}

func (r *messageRepo) FetchForUser(ctx context.Context, userID string) ([]models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	filter := bson.M{
		"$or": bson.A{
			bson.M{"sender_id": userID, "deleted_by_sender": false},
			bson.M{"receiver_id": userID, "deleted_by_receiver": false},
		},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(fetchForUserLimit)

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, &models.PersistenceError{Op: "fetch user messages", Err: err}
	}
	var messages []models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, &models.PersistenceError{Op: "fetch user messages", Err: err}
	}
	return messages, nil
}

func (r *messageRepo) SoftDelete(ctx context.Context, id models.ObjectID, bySender bool) error {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	field := "deleted_by_receiver"
	if bySender {
		field = "deleted_by_sender"
	}
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{field: true}},
	)
	if err != nil {
		return &models.PersistenceError{Op: "soft delete message", Err: err}
	}
	if result.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *messageRepo) MarkReported(ctx context.Context, id models.ObjectID) error {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"is_reported": true}},
	)
	if err != nil {
		return &models.PersistenceError{Op: "mark message reported", Err: err}
	}
	if result.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *messageRepo) HardDeleteConversation(ctx context.Context, userID, otherID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	result, err := r.collection.DeleteMany(ctx, pairFilter(userID, otherID))
	if err != nil {
		return 0, &models.PersistenceError{Op: "hard delete conversation", Err: err}
	}
	return result.DeletedCount, nil
}
