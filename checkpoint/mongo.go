package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/BaSui01/overseer/types"
)

type mongoDocument struct {
	ID        string    `bson:"_id"`
	ThreadID  string    `bson:"thread_id"`
	Sequence  int64     `bson:"sequence"`
	State     []byte    `bson:"state"`
	CreatedAt time.Time `bson:"created_at"`
}

// MongoStore persists checkpoints in a MongoDB collection with a unique
// descending (thread_id, sequence) index so Latest is a single indexed read.
type MongoStore struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

// NewMongoStore creates the store and ensures its indexes.
func NewMongoStore(ctx context.Context, db *mongo.Database, logger *zap.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	coll := db.Collection("checkpoints")
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "thread_id", Value: 1}, {Key: "sequence", Value: -1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, types.NewCheckpointIOError("index", err)
	}
	return &MongoStore{
		coll:   coll,
		logger: logger.With(zap.String("store", "mongo_checkpoint")),
	}, nil
}

// Put reads the thread's current maximum sequence and inserts the next one.
// A concurrent writer that claims the same sequence trips the unique index,
// which is surfaced as a retryable error.
func (s *MongoStore) Put(ctx context.Context, threadID string, state json.RawMessage) (*Checkpoint, error) {
	if threadID == "" {
		return nil, types.NewCheckpointIOError("put", fmt.Errorf("empty thread id"))
	}

	var last mongoDocument
	err := s.coll.FindOne(ctx,
		bson.M{"thread_id": threadID},
		options.FindOne().SetSort(bson.D{{Key: "sequence", Value: -1}}),
	).Decode(&last)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, types.NewCheckpointIOError("put", err)
	}

	cp := newCheckpoint(threadID, last.Sequence+1, state)
	doc := mongoDocument{
		ID:        cp.ID,
		ThreadID:  cp.ThreadID,
		Sequence:  cp.Sequence,
		State:     []byte(cp.State),
		CreatedAt: cp.CreatedAt,
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return nil, types.NewCheckpointIOError("put", err)
	}

	s.logger.Debug("checkpoint saved",
		zap.String("thread_id", threadID),
		zap.Int64("sequence", cp.Sequence),
	)
	return cp, nil
}

// Latest returns the highest-sequence checkpoint of the thread.
func (s *MongoStore) Latest(ctx context.Context, threadID string) (*Checkpoint, error) {
	var doc mongoDocument
	err := s.coll.FindOne(ctx,
		bson.M{"thread_id": threadID},
		options.FindOne().SetSort(bson.D{{Key: "sequence", Value: -1}}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, types.NewError(types.ErrCheckpointNotFound,
			fmt.Sprintf("no checkpoints for thread %q", threadID))
	}
	if err != nil {
		return nil, types.NewCheckpointIOError("latest", err)
	}
	return documentToCheckpoint(&doc), nil
}

// List returns up to limit checkpoints, newest first.
func (s *MongoStore) List(ctx context.Context, threadID string, limit int) ([]*Checkpoint, error) {
	opts := options.Find().SetSort(bson.D{{Key: "sequence", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	cur, err := s.coll.Find(ctx, bson.M{"thread_id": threadID}, opts)
	if err != nil {
		return nil, types.NewCheckpointIOError("list", err)
	}
	defer cur.Close(ctx)

	var out []*Checkpoint
	for cur.Next(ctx) {
		var doc mongoDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, types.NewCheckpointIOError("list", err)
		}
		out = append(out, documentToCheckpoint(&doc))
	}
	if err := cur.Err(); err != nil {
		return nil, types.NewCheckpointIOError("list", err)
	}
	return out, nil
}

// DeleteThread removes all checkpoints of the thread.
func (s *MongoStore) DeleteThread(ctx context.Context, threadID string) error {
	if _, err := s.coll.DeleteMany(ctx, bson.M{"thread_id": threadID}); err != nil {
		return types.NewCheckpointIOError("delete", err)
	}
	return nil
}

func documentToCheckpoint(doc *mongoDocument) *Checkpoint {
	state := make(json.RawMessage, len(doc.State))
	copy(state, doc.State)
	return &Checkpoint{
		ID:        doc.ID,
		ThreadID:  doc.ThreadID,
		Sequence:  doc.Sequence,
		State:     state,
		CreatedAt: doc.CreatedAt,
	}
}
