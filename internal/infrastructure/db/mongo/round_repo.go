package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lastword-games/roundd/internal/core/domain"
	"github.com/lastword-games/roundd/internal/infrastructure/db/record"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	defaultDatabase = "roundd"
	roundCollection = "rounds"
)

type roundDocument struct {
	Id       string `bson:"_id"`
	Status   int    `bson:"status"`
	Revision int64  `bson:"revision"`
	DueAt    int64  `bson:"due_at"`
	Data     []byte `bson:"data"`
}

type roundRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewRoundRepository expects the connection uri and optionally the name of
// the database.
func NewRoundRepository(config ...interface{}) (domain.RoundRepository, error) {
	if len(config) < 1 || len(config) > 2 {
		return nil, fmt.Errorf("invalid config")
	}
	uri, ok := config[0].(string)
	if !ok || uri == "" {
		return nil, fmt.Errorf("cannot open round repository: invalid config, expected uri at 0")
	}
	database := defaultDatabase
	if len(config) == 2 {
		if name, ok := config[1].(string); ok && name != "" {
			database = name
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	collection := client.Database(database).Collection(roundCollection)
	if _, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "due_at", Value: 1}},
	}); err != nil {
		return nil, fmt.Errorf("failed to create due index: %w", err)
	}

	return &roundRepository{client, collection}, nil
}

func (r *roundRepository) AddRound(ctx context.Context, round *domain.Round) error {
	doc, err := toDocument(round, 1)
	if err != nil {
		return err
	}

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrRoundAlreadyExists
		}
		return fmt.Errorf("failed to insert round: %w", err)
	}

	round.Revision = uint64(doc.Revision)
	return nil
}

func (r *roundRepository) GetRound(ctx context.Context, id string) (*domain.Round, error) {
	var doc roundDocument
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrRoundNotFound
		}
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	return record.Decode(doc.Data, uint64(doc.Revision))
}

// UpdateRound replaces the document only if its revision still matches,
// single document writes being atomic in mongo.
func (r *roundRepository) UpdateRound(ctx context.Context, round *domain.Round) error {
	doc, err := toDocument(round, round.Revision+1)
	if err != nil {
		return err
	}

	filter := bson.M{"_id": round.Id, "revision": int64(round.Revision)}
	res, err := r.collection.ReplaceOne(ctx, filter, doc)
	if err != nil {
		return fmt.Errorf("failed to update round: %w", err)
	}
	if res.MatchedCount == 0 {
		if _, err := r.GetRound(ctx, round.Id); err != nil {
			return err
		}
		return domain.ErrStaleRound
	}

	round.Revision = uint64(doc.Revision)
	return nil
}

func (r *roundRepository) GetDueRounds(ctx context.Context, now time.Time) ([]string, error) {
	filter := bson.M{"due_at": bson.M{"$gt": 0, "$lte": now.UnixMilli()}}
	opts := options.Find().
		SetSort(bson.D{{Key: "due_at", Value: 1}}).
		SetProjection(bson.M{"_id": 1})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to select due rounds: %w", err)
	}

	var docs []struct {
		Id string `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.Id)
	}
	return ids, nil
}

func (r *roundRepository) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// nolint
	r.client.Disconnect(ctx)
}

func toDocument(round *domain.Round, revision uint64) (*roundDocument, error) {
	rec, err := record.FromDomain(round, revision)
	if err != nil {
		return nil, err
	}
	return &roundDocument{
		Id:       rec.Id,
		Status:   rec.Status,
		Revision: int64(rec.Revision),
		DueAt:    rec.DueAt,
		Data:     rec.Data,
	}, nil
}
