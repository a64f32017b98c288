// Package mongo implements the room store on MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/manpreetbhatti/codetogether/internal/db"
)

const colRooms = "rooms"

type roomDocument struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Language     string    `bson:"language"`
	PasswordHash string    `bson:"password_hash"`
	Content      string    `bson:"content"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func (r *roomDocument) toRoom() *db.Room {
	return &db.Room{
		ID:           r.ID,
		Name:         r.Name,
		Language:     r.Language,
		PasswordHash: r.PasswordHash,
		Content:      r.Content,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// Client is a MongoDB-backed db.Database.
type Client struct {
	client *mongo.Client
	rooms  *mongo.Collection
}

// Dial connects to the MongoDB at uri and ensures the room indexes.
func Dial(ctx context.Context, uri, database string) (*Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	rooms := client.Database(database).Collection(colRooms)
	_, err = rooms.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("create indexes: %w", err)
	}

	return &Client{client: client, rooms: rooms}, nil
}

// Close disconnects from MongoDB.
func (c *Client) Close() error {
	if err := c.client.Disconnect(context.Background()); err != nil {
		return fmt.Errorf("close mongo client: %w", err)
	}
	return nil
}

// CreateRoom stores a new room.
func (c *Client) CreateRoom(ctx context.Context, room *db.Room) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	if room.Language == "" {
		room.Language = db.DefaultLanguage
	}

	_, err := c.rooms.InsertOne(ctx, roomDocument{
		ID:           room.ID,
		Name:         room.Name,
		Language:     room.Language,
		PasswordHash: room.PasswordHash,
		Content:      room.Content,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w", room.ID, db.ErrRoomAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("insert room %s: %w", room.ID, err)
	}

	room.CreatedAt = now
	room.UpdatedAt = now
	return nil
}

// FindRoom returns the room with the given id.
func (c *Client) FindRoom(ctx context.Context, id string) (*db.Room, error) {
	var doc roomDocument
	err := c.rooms.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s: %w", id, db.ErrRoomNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find room %s: %w", id, err)
	}
	return doc.toRoom(), nil
}

// ListRooms returns rooms newest first.
func (c *Client) ListRooms(ctx context.Context, limit, offset int) ([]*db.Room, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := c.rooms.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	var docs []roomDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("fetch rooms: %w", err)
	}

	rooms := make([]*db.Room, 0, len(docs))
	for i := range docs {
		rooms = append(rooms, docs[i].toRoom())
	}
	return rooms, nil
}

// CountRooms returns the number of rooms.
func (c *Client) CountRooms(ctx context.Context) (int, error) {
	n, err := c.rooms.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count rooms: %w", err)
	}
	return int(n), nil
}

// SaveContent overwrites the document text of a room.
func (c *Client) SaveContent(ctx context.Context, id, content string) error {
	res, err := c.rooms.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"content":    content,
			"updated_at": time.Now().UTC(),
		},
	})
	if err != nil {
		return fmt.Errorf("save content of %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", id, db.ErrRoomNotFound)
	}
	return nil
}
