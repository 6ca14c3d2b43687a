package journal

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/x/mongo/driver/connstring"

	"github.com/paystream/relay/task"
)

type outcomeDoc struct {
	CorrelationID string    `bson:"correlationId"`
	Amount        float64   `bson:"amount"`
	Processor     string    `bson:"processor"`
	Success       bool      `bson:"success"`
	RecordedAt    time.Time `bson:"recordedAt"`
}

// MongoJournal appends one document per terminal outcome to the "outcomes"
// collection.
type MongoJournal struct {
	db *mongo.Database
}

func NewMongoJournal(connString string) (*MongoJournal, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(connString))
	if err != nil {
		return nil, err
	}

	// Database name comes from the connection string when present.
	dbName := "payments"
	if cs, err := connstring.ParseAndValidate(connString); err == nil && cs.Database != "" {
		dbName = cs.Database
	}
	return &MongoJournal{db: client.Database(dbName)}, nil
}

func (j *MongoJournal) Record(ctx context.Context, outcomes []task.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	now := time.Now().UTC()
	docs := make([]interface{}, len(outcomes))
	for i, o := range outcomes {
		docs[i] = outcomeDoc{
			CorrelationID: o.CorrelationID,
			Amount:        o.Amount,
			Processor:     string(o.Processor),
			Success:       o.Success,
			RecordedAt:    now,
		}
	}
	_, err := j.db.Collection("outcomes").InsertMany(ctx, docs)
	return err
}

func (j *MongoJournal) Close(ctx context.Context) error {
	return j.db.Client().Disconnect(ctx)
}
