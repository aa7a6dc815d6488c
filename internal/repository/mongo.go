package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/xiaot623/gogo/assistant/internal/domain"
)

const mongoCloseTimeout = 5 * time.Second

type checkpointDoc struct {
	SessionID          string    `bson:"_id"`
	Mode               string    `bson:"mode"`
	State              string    `bson:"state"`
	PendingInterruptID string    `bson:"pending_interrupt_id,omitempty"`
	Version            int64     `bson:"version"`
	UpdatedAt          time.Time `bson:"updated_at"`
}

// MongoStore implements CheckpointStore on a MongoDB collection keyed by session id.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database == "" {
		return nil, errors.New("mongo database name is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, "failed to ping mongo")
	}
	coll := client.Database(database).Collection("checkpoints")
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "pending_interrupt_id", Value: 1}},
		Options: options.Index().SetName("idx_pending_interrupt").SetSparse(true),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, "failed to create index")
	}
	return &MongoStore{client: client, collection: coll}, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Save(ctx context.Context, cp *domain.Checkpoint) error {
	state, err := encodeState(cp)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	set := bson.M{
		"mode":       string(cp.Mode),
		"state":      string(state),
		"updated_at": now,
	}
	update := bson.M{"$set": set, "$inc": bson.M{"version": int64(1)}}
	if id := pendingID(cp); id != "" {
		set["pending_interrupt_id"] = id
	} else {
		update["$unset"] = bson.M{"pending_interrupt_id": ""}
	}

	var doc checkpointDoc
	err = s.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": cp.SessionID},
		update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return errors.Wrap(err, "failed to save checkpoint")
	}
	cp.Version = doc.Version
	cp.PendingInterruptID = doc.PendingInterruptID
	cp.UpdatedAt = doc.UpdatedAt
	return nil
}

func (s *MongoStore) Load(ctx context.Context, sessionID string) (*domain.Checkpoint, error) {
	var doc checkpointDoc
	err := s.collection.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load checkpoint")
	}
	cp := &domain.Checkpoint{
		SessionID:          doc.SessionID,
		Mode:               domain.AgentMode(doc.Mode),
		PendingInterruptID: doc.PendingInterruptID,
		Version:            doc.Version,
		UpdatedAt:          doc.UpdatedAt,
	}
	if err := decodeState([]byte(doc.State), cp); err != nil {
		return nil, err
	}
	return cp, nil
}

func (s *MongoStore) ClaimInterrupt(ctx context.Context, sessionID, interruptID string) (bool, error) {
	res, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": sessionID, "pending_interrupt_id": interruptID},
		bson.M{"$unset": bson.M{"pending_interrupt_id": ""}},
	)
	if err != nil {
		return false, errors.Wrap(err, "failed to claim interrupt")
	}
	return res.ModifiedCount == 1, nil
}

func (s *MongoStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": sessionID}); err != nil {
		return errors.Wrap(err, "failed to delete checkpoint")
	}
	return nil
}
