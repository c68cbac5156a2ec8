// Package mongo wires memory.DocumentStore to a MongoDB collection, an
// optional alternative to the filesystem-backed Store for deployments that
// want DomainMemory off local disk.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/kairoslabs/delegate/memory"
)

const (
	defaultCollection = "domain_memory"
	defaultTimeout     = 5 * time.Second
)

// Options configures Store.
type Options struct {
	Client     *mongo.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// Store implements memory.DocumentStore by upserting the whole Document as
// one BSON document per (domain, session_id) pair.
type Store struct {
	coll    *mongo.Collection
	timeout time.Duration
}

type docRecord struct {
	Domain    string          `bson:"domain"`
	SessionID string          `bson:"session_id"`
	Document  memory.Document `bson:"document"`
}

// New returns a Store backed by the given Mongo client.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongo: database name is required")
	}
	collection := opts.Collection
	if collection == "" {
		collection = defaultCollection
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	coll := opts.Client.Database(opts.Database).Collection(collection)
	return &Store{coll: coll, timeout: timeout}, nil
}

// Load fetches the Document for (domain, sessionID), or nil with no error if
// none exists yet.
func (s *Store) Load(ctx context.Context, domain, sessionID string) (*memory.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rec docRecord
	err := s.coll.FindOne(ctx, bson.M{"domain": domain, "session_id": sessionID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.Document.Reindex()
	return &rec.Document, nil
}

// Save upserts the Document for (domain, sessionID).
func (s *Store) Save(ctx context.Context, domain, sessionID string, doc *memory.Document) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	filter := bson.M{"domain": domain, "session_id": sessionID}
	update := bson.M{"$set": docRecord{Domain: domain, SessionID: sessionID, Document: *doc}}
	_, err := s.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}
