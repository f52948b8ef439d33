package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/okian/ladder/internal/domain/model"
)

type playerDocument struct {
	PlayerID  string    `bson:"_id"`
	Score     int64     `bson:"score"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func (d playerDocument) toModel() model.Player {
	return model.Player{PlayerID: d.PlayerID, Score: d.Score, UpdatedAt: d.UpdatedAt}
}

// MongoRepository stores one document per player keyed by _id.
type MongoRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
}

var _ Repository = (*MongoRepository)(nil)

// NewMongoRepository connects to uri and ensures the score index exists.
func NewMongoRepository(ctx context.Context, uri string, opts ...MongoOption) (*MongoRepository, error) {
	settings := mongoSettings{database: DefaultMongoDatabase, collection: DefaultMongoCollection}
	for _, opt := range opts {
		opt(&settings)
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetConnectTimeout(defaultConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	collection := client.Database(settings.database).Collection(settings.collection)
	_, err = collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "score", Value: -1}, {Key: "updatedAt", Value: 1}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("create score index: %w", err)
	}

	return &MongoRepository{client: client, collection: collection}, nil
}

// Save implements Repository.Save. The filter only matches documents no newer
// than p; when a newer one exists the upsert collides on _id and the write is
// dropped.
func (m *MongoRepository) Save(ctx context.Context, p model.Player) error {
	at := p.UpdatedAt.UTC()
	filter := bson.M{"_id": p.PlayerID, "updatedAt": bson.M{"$lte": at}}
	update := bson.M{"$set": bson.M{"score": p.Score, "updatedAt": at}}
	_, err := m.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return err
}

// FindByID implements Repository.FindByID.
func (m *MongoRepository) FindByID(ctx context.Context, playerID string) (model.Player, error) {
	var doc playerDocument
	err := m.collection.FindOne(ctx, bson.M{"_id": playerID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.Player{}, ErrNotFound
		}
		return model.Player{}, err
	}
	return doc.toModel(), nil
}

// FindAllOrderedByScore implements Repository.FindAllOrderedByScore.
func (m *MongoRepository) FindAllOrderedByScore(ctx context.Context, limit int) ([]model.Player, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "score", Value: -1},
		{Key: "updatedAt", Value: 1},
		{Key: "_id", Value: 1},
	})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := m.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}

	var docs []playerDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]model.Player, len(docs))
	for i, d := range docs {
		out[i] = d.toModel()
	}
	return out, nil
}

// Count implements Repository.Count.
func (m *MongoRepository) Count(ctx context.Context) (int64, error) {
	return m.collection.CountDocuments(ctx, bson.M{})
}

// Close disconnects the client.
func (m *MongoRepository) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
