package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/pixelhotel/messenger/internal/models"
	"github.com/pixelhotel/messenger/pkg/clock"
)

// ReportRepository is append-only; end users can neither update nor
// delete reports.
type ReportRepository interface {
	Create(ctx context.Context, messageID models.ObjectID, reporterID, reason string) error
}

type reportRepo struct {
	collection *mongo.Collection
	clock      clock.Clock
}

func NewReportRepository(db *DB, clk clock.Clock) ReportRepository {
	return &reportRepo{
		collection: db.Database.Collection(models.Report{}.CollectionName()),
		clock:      clk,
	}
}

func (r *reportRepo) Create(ctx context.Context, messageID models.ObjectID, reporterID, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	report := models.Report{
		ID:         models.NewObjectID(),
		MessageID:  messageID,
		ReporterID: reporterID,
		Reason:     reason,
		CreatedAt:  r.clock.Now(),
	}
	if _, err := r.collection.InsertOne(ctx, report); err != nil {
		return &models.PersistenceError{Op: "create report", Err: err}
	}
	return nil
}
