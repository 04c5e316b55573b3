package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"appealbot/internal/models"
)

const (
	configCollectionName  = "config"
	membersCollectionName = "members"
	usageCollectionName   = "usage"
	chatsCollectionName   = "active_chats"
)

type configDoc struct {
	Key   string `bson:"_id"`
	Value string `bson:"value"`
}

type memberDoc struct {
	Set      string `bson:"set"`
	MemberID int64  `bson:"member_id"`
}

type usageDoc struct {
	UserID    int64     `bson:"user_id"`
	Timestamp time.Time `bson:"ts"`
}

type chatDoc struct {
	ChatID    int64     `bson:"_id"`
	Type      string    `bson:"chat_type"`
	Title     string    `bson:"title"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoDB implements storage.Storage on four collections
type MongoDB struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoDB connects to uri and selects the named database
func NewMongoDB(ctx context.Context, uri, database string) (*MongoDB, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Send a ping to confirm a successful connection
	var result bson.M
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Decode(&result); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &MongoDB{client: client, db: client.Database(database)}, nil
}

// Initialize creates indexes and seeds default configuration
func (m *MongoDB) Initialize(ctx context.Context) error {
	_, err := m.db.Collection(membersCollectionName).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "set", Value: 1}, {Key: "member_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create members index: %w", err)
	}

	_, err = m.db.Collection(usageCollectionName).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "ts", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create usage index: %w", err)
	}

	defaults := map[models.ConfigKey]string{
		models.KeyGroupMode: models.GroupModeDefault,
		models.KeyOwnerID:   "",
	}
	for key, value := range defaults {
		_, err := m.db.Collection(configCollectionName).UpdateOne(ctx,
			bson.M{"_id": string(key)},
			bson.M{"$setOnInsert": bson.M{"value": value}},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return fmt.Errorf("failed to seed config %s: %w", key, err)
		}
	}
	return nil
}

// GetConfig returns the value stored under key
func (m *MongoDB) GetConfig(ctx context.Context, key models.ConfigKey) (string, bool, error) {
	var doc configDoc
	err := m.db.Collection(configCollectionName).FindOne(ctx, bson.M{"_id": string(key)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get config %s: %w", key, err)
	}
	return doc.Value, true, nil
}

// SetConfig upserts a configuration value
func (m *MongoDB) SetConfig(ctx context.Context, key models.ConfigKey, value string) error {
	_, err := m.db.Collection(configCollectionName).UpdateOne(ctx,
		bson.M{"_id": string(key)},
		bson.M{"$set": bson.M{"value": value}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to set config %s: %w", key, err)
	}
	return nil
}

// AddMember inserts id into the set, ignoring duplicates
func (m *MongoDB) AddMember(ctx context.Context, set models.MemberSet, id int64) error {
	filter := bson.M{"set": string(set), "member_id": id}
	_, err := m.db.Collection(membersCollectionName).UpdateOne(ctx,
		filter,
		bson.M{"$setOnInsert": filter},
		options.Update().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to add %d to %s: %w", id, set, err)
	}
	return nil
}

// IsMember reports whether id belongs to the set
func (m *MongoDB) IsMember(ctx context.Context, set models.MemberSet, id int64) (bool, error) {
	count, err := m.db.Collection(membersCollectionName).CountDocuments(ctx,
		bson.M{"set": string(set), "member_id": id},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, fmt.Errorf("failed to check membership in %s: %w", set, err)
	}
	return count > 0, nil
}

// ListMembers returns the members of a set in ascending order
func (m *MongoDB) ListMembers(ctx context.Context, set models.MemberSet) ([]int64, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "member_id", Value: 1}})
	cursor, err := m.db.Collection(membersCollectionName).Find(ctx, bson.M{"set": string(set)}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", set, err)
	}
	defer cursor.Close(ctx)

	var docs []memberDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", set, err)
	}

	ids := make([]int64, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.MemberID)
	}
	return ids, nil
}

// CountMembers returns the size of a set
func (m *MongoDB) CountMembers(ctx context.Context, set models.MemberSet) (int, error) {
	count, err := m.db.Collection(membersCollectionName).CountDocuments(ctx, bson.M{"set": string(set)})
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", set, err)
	}
	return int(count), nil
}

// AppendUsage records one usage entry
func (m *MongoDB) AppendUsage(ctx context.Context, userID int64, ts time.Time) error {
	_, err := m.db.Collection(usageCollectionName).InsertOne(ctx, usageDoc{UserID: userID, Timestamp: ts.UTC()})
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// CountUsageSince counts entries of userID strictly after cutoff
func (m *MongoDB) CountUsageSince(ctx context.Context, userID int64, cutoff time.Time) (int, error) {
	count, err := m.db.Collection(usageCollectionName).CountDocuments(ctx, bson.M{
		"user_id": userID,
		"ts":      bson.M{"$gt": cutoff.UTC()},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count usage: %w", err)
	}
	return int(count), nil
}

// RecentUsage returns up to limit timestamps of userID, most recent first
func (m *MongoDB) RecentUsage(ctx context.Context, userID int64, limit int) ([]time.Time, error) {
	findOptions := options.Find().
		SetSort(bson.D{{Key: "ts", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := m.db.Collection(usageCollectionName).Find(ctx, bson.M{"user_id": userID}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent usage: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []usageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode usage: %w", err)
	}

	stamps := make([]time.Time, 0, len(docs))
	for _, doc := range docs {
		stamps = append(stamps, doc.Timestamp)
	}
	return stamps, nil
}

// CountUsage returns the total number of usage entries
func (m *MongoDB) CountUsage(ctx context.Context) (int, error) {
	count, err := m.db.Collection(usageCollectionName).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count usage: %w", err)
	}
	return int(count), nil
}

// ListUsage returns the usage log ordered by timestamp
func (m *MongoDB) ListUsage(ctx context.Context) ([]models.UsageEntry, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "ts", Value: 1}})
	cursor, err := m.db.Collection(usageCollectionName).Find(ctx, bson.M{}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []usageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode usage: %w", err)
	}

	entries := make([]models.UsageEntry, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, models.UsageEntry{UserID: doc.UserID, Timestamp: doc.Timestamp})
	}
	return entries, nil
}

// PruneUsage deletes entries older than before
func (m *MongoDB) PruneUsage(ctx context.Context, before time.Time) (int64, error) {
	result, err := m.db.Collection(usageCollectionName).DeleteMany(ctx, bson.M{
		"ts": bson.M{"$lt": before.UTC()},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune usage: %w", err)
	}
	return result.DeletedCount, nil
}

// UpsertChat inserts or replaces a chat directory entry
func (m *MongoDB) UpsertChat(ctx context.Context, chat models.Chat) error {
	_, err := m.db.Collection(chatsCollectionName).UpdateOne(ctx,
		bson.M{"_id": chat.ID},
		bson.M{"$set": bson.M{
			"chat_type":  chat.Type,
			"title":      chat.Title,
			"updated_at": time.Now().UTC(),
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save chat %d: %w", chat.ID, err)
	}
	return nil
}

// ListChats returns the chat directory ordered by id
func (m *MongoDB) ListChats(ctx context.Context) ([]models.Chat, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := m.db.Collection(chatsCollectionName).Find(ctx, bson.M{}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []chatDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode chats: %w", err)
	}

	chats := make([]models.Chat, 0, len(docs))
	for _, doc := range docs {
		chats = append(chats, models.Chat{ID: doc.ChatID, Type: doc.Type, Title: doc.Title})
	}
	return chats, nil
}

// Close disconnects the client
func (m *MongoDB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
