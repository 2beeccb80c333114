package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoCollection = "documents"

type mongoDocument struct {
	ID        string    `bson:"_id"`
	Record    string    `bson:"record"`
	Version   int64     `bson:"version"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Mongo keeps one document per collection in the documents collection.
// Records are stored as JSON text so field order and number formats survive.
type Mongo struct {
	coll *mongo.Collection
}

// ConnectMongo dials uri and pings the server.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// NewMongo creates a mongo backend in database.
func NewMongo(client *mongo.Client, database string) *Mongo {
	return &Mongo{coll: client.Database(database).Collection(mongoCollection)}
}

func (m *Mongo) Fetch(ctx context.Context, collectionID string) (Document, error) {
	var doc mongoDocument
	err := m.coll.FindOne(ctx, bson.M{"_id": collectionID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Document{Revision: AbsentRevision}, nil
	}
	if err != nil {
		return Document{}, fmt.Errorf("mongo fetch %s: %w", collectionID, err)
	}
	return Document{Record: json.RawMessage(doc.Record), Revision: strconv.FormatInt(doc.Version, 10)}, nil
}

func (m *Mongo) Put(ctx context.Context, collectionID string, record json.RawMessage, ifMatch string) (Document, error) {
	now := time.Now().UTC()

	if ifMatch == AbsentRevision {
		_, err := m.coll.InsertOne(ctx, mongoDocument{ID: collectionID, Record: string(record), Version: 1, UpdatedAt: now})
		if mongo.IsDuplicateKeyError(err) {
			return Document{}, ErrConflict
		}
		if err != nil {
			return Document{}, fmt.Errorf("mongo put %s: %w", collectionID, err)
		}
		return Document{Record: record, Revision: "1"}, nil
	}

	filter := bson.M{"_id": collectionID}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if ifMatch == AnyRevision {
		opts.SetUpsert(true)
	} else {
		expected, err := strconv.ParseInt(ifMatch, 10, 64)
		if err != nil {
			return Document{}, fmt.Errorf("mongo put %s: bad revision %q", collectionID, ifMatch)
		}
		filter["version"] = expected
	}
	update := bson.M{
		"$set": bson.M{"record": string(record), "updated_at": now},
		"$inc": bson.M{"version": int64(1)},
	}

	var saved mongoDocument
	err := m.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&saved)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Document{}, ErrConflict
	}
	if err != nil {
		return Document{}, fmt.Errorf("mongo put %s: %w", collectionID, err)
	}
	return Document{Record: record, Revision: strconv.FormatInt(saved.Version, 10)}, nil
}
