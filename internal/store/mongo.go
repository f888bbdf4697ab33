package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/i474232898/umbrella-rain-service/internal/reading"
)

// MongoConfig selects the collection that holds the event log.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// eventDoc is the stored document. Field names match data written by
// earlier deployments, except device_id which replaced umbrella_id.
type eventDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	DeviceID    string             `bson:"device_id"`
	Temperature float64            `bson:"temperature"`
	Humidity    float64            `bson:"humidity"`
	Prediction  int                `bson:"prediction"`
	Probability float64            `bson:"probability"`
	Seq         int64              `bson:"seq"`
	Timestamp   time.Time          `bson:"timestamp"`
}

// MongoStore keeps events in a MongoDB collection.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore connects, verifies the server is reachable and ensures the
// device/timestamp index exists.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.Timeout > 0 {
		opts.SetConnectTimeout(cfg.Timeout).SetServerSelectionTimeout(cfg.Timeout)
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	s := &MongoStore{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
	}
	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "device_id", Value: 1},
			{Key: "timestamp", Value: -1},
			{Key: "seq", Value: -1},
		},
	})
	if err != nil {
		return fmt.Errorf("mongo create index: %w", err)
	}
	return nil
}

// Insert writes ev as a single document and records the generated ID.
func (s *MongoStore) Insert(ctx context.Context, ev *reading.Event) error {
	res, err := s.coll.InsertOne(ctx, toDoc(*ev))
	if err != nil {
		return fmt.Errorf("mongo insert: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		ev.ID = oid.Hex()
	}
	return nil
}

// FindByDevice returns up to limit events newest first.
func (s *MongoStore) FindByDevice(ctx context.Context, deviceID string, limit int) ([]reading.Event, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "timestamp", Value: -1},
		{Key: "seq", Value: -1},
		{Key: "_id", Value: -1},
	})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := s.coll.Find(ctx, bson.D{{Key: "device_id", Value: deviceID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo find: %w", err)
	}
	defer cur.Close(ctx)

	var docs []eventDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo decode: %w", err)
	}

	events := make([]reading.Event, 0, len(docs))
	for _, d := range docs {
		events = append(events, fromDoc(d))
	}
	return events, nil
}

// DeleteAll removes every document in the collection.
func (s *MongoStore) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("mongo delete: %w", err)
	}
	return res.DeletedCount, nil
}

// Ping checks that the primary is reachable.
func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongo ping: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func toDoc(ev reading.Event) eventDoc {
	d := eventDoc{
		DeviceID:    ev.DeviceID,
		Temperature: ev.Temperature,
		Humidity:    ev.Humidity,
		Prediction:  ev.Prediction,
		Probability: ev.Probability,
		Seq:         ev.Seq,
		Timestamp:   ev.Timestamp,
	}
	if oid, err := primitive.ObjectIDFromHex(ev.ID); err == nil {
		d.ID = oid
	}
	return d
}

// fromDoc restores an event. BSON datetimes decode as UTC instants.
func fromDoc(d eventDoc) reading.Event {
	return reading.Event{
		ID:          d.ID.Hex(),
		DeviceID:    d.DeviceID,
		Temperature: d.Temperature,
		Humidity:    d.Humidity,
		Prediction:  d.Prediction,
		Probability: d.Probability,
		Seq:         d.Seq,
		Timestamp:   d.Timestamp,
	}
}
