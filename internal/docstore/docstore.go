// Package docstore keeps chat message bodies and per-thread unread counters
// in MongoDB.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"jobboard/matching-service/internal/apperr"
	"jobboard/matching-service/internal/model"
)

const (
	messagesCollection = "messages"
	countersCollection = "unread_counters"
)

// Counter is the unread count of one user in one thread.
type Counter struct {
	UserID    int64     `bson:"user_id" json:"user_id"`
	ThreadID  int64     `bson:"thread_id" json:"thread_id"`
	Count     int64     `bson:"count" json:"count"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Store wraps the two collections.
type Store struct {
	messages *mongo.Collection
	counters *mongo.Collection
}

// New returns a Store on db.
func New(db *mongo.Database) *Store {
	return &Store{
		messages: db.Collection(messagesCollection),
		counters: db.Collection(countersCollection),
	}
}

// EnsureIndexes creates the indexes the queries rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "thread_id", Value: 1}, {Key: "seq", Value: -1}}},
		{Keys: bson.D{{Key: "message_id", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("docstore messages indexes: %w", err)
	}
	_, err = s.counters.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "thread_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("docstore counters indexes: %w", err)
	}
	return nil
}

// ─── Messages ────────────────────────────────────────────────────────────────

// SaveMessage stores m once. Saving the same message id again is a no-op.
func (s *Store) SaveMessage(ctx context.Context, m model.Message) error {
	_, err := s.messages.UpdateOne(ctx,
		bson.D{{Key: "message_id", Value: m.ID}},
		bson.D{{Key: "$setOnInsert", Value: m}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("docstore save message %s: %w", m.ID, err)
	}
	return nil
}

// Messages returns a page of the thread counted from the newest message,
// ordered oldest first. seq is the only ordering key; message ids and
// timestamps are not guaranteed to agree with it across senders.
func (s *Store) Messages(ctx context.Context, threadID int64, page model.Page) ([]model.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "seq", Value: -1}}).
		SetSkip(int64(page.Offset)).
		SetLimit(int64(page.Limit))

	cur, err := s.messages.Find(ctx, bson.D{{Key: "thread_id", Value: threadID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("docstore find messages: %w", err)
	}
	out := []model.Message{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("docstore decode messages: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// DeleteMessage removes a message. Only its sender may delete it.
func (s *Store) DeleteMessage(ctx context.Context, threadID int64, messageID string, senderID int64) error {
	filter := bson.D{{Key: "thread_id", Value: threadID}, {Key: "message_id", Value: messageID}}

	var m model.Message
	err := s.messages.FindOne(ctx, filter).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperr.Missing("message", messageID)
	}
	if err != nil {
		return fmt.Errorf("docstore find message: %w", err)
	}
	if m.SenderID != senderID {
		return apperr.Forbidden("only the sender can delete a message")
	}
	if _, err := s.messages.DeleteOne(ctx, filter); err != nil {
		return fmt.Errorf("docstore delete message: %w", err)
	}
	return nil
}

// ─── Unread counters ─────────────────────────────────────────────────────────

// IncrementUnread adds one to the counter of every user in a single bulk write.
func (s *Store) IncrementUnread(ctx context.Context, threadID int64, userIDs []int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	writes := make([]mongo.WriteModel, 0, len(userIDs))
	for _, uid := range userIDs {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.D{{Key: "user_id", Value: uid}, {Key: "thread_id", Value: threadID}}).
			SetUpdate(bson.D{
				{Key: "$inc", Value: bson.D{{Key: "count", Value: 1}}},
				{Key: "$set", Value: bson.D{{Key: "updated_at", Value: now}}},
			}).
			SetUpsert(true))
	}
	if _, err := s.counters.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("docstore increment unread: %w", err)
	}
	return nil
}

// ResetUnread sets the user's counter for the thread to zero.
func (s *Store) ResetUnread(ctx context.Context, threadID, userID int64) error {
	_, err := s.counters.UpdateOne(ctx,
		bson.D{{Key: "user_id", Value: userID}, {Key: "thread_id", Value: threadID}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "count", Value: 0}, {Key: "updated_at", Value: time.Now().UTC()}}}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("docstore reset unread: %w", err)
	}
	return nil
}

// Unread returns the user's non-zero counters.
func (s *Store) Unread(ctx context.Context, userID int64) ([]Counter, error) {
	cur, err := s.counters.Find(ctx,
		bson.D{{Key: "user_id", Value: userID}, {Key: "count", Value: bson.D{{Key: "$gt", Value: 0}}}},
		options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("docstore find unread: %w", err)
	}
	out := []Counter{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("docstore decode unread: %w", err)
	}
	return out, nil
}
