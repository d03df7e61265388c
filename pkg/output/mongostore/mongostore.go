// Package mongostore persists readings to a MongoDB collection, one
// document per sensor reading.
package mongostore

import (
	"context"
	"time"

	"github.com/itohio/tempgraph/pkg/config"
	"github.com/itohio/tempgraph/pkg/output"
	"github.com/itohio/tempgraph/pkg/session"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	connectTimeout = 10 * time.Second
	insertTimeout  = 30 * time.Second
)

// collection is the part of *mongo.Collection the store uses.
type collection interface {
	InsertMany(ctx context.Context, documents []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error)
}

type Store struct {
	client *mongo.Client
	coll   collection
	log    *logrus.Entry
	run    string
}

var _ session.Recorder = (*Store)(nil)

// Connect dials the server and pings it before returning.
func Connect(ctx context.Context, cfg config.MongoConfig, log *logrus.Entry) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to MongoDB")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "failed to ping MongoDB")
	}

	log.WithFields(logrus.Fields{"database": cfg.Database, "collection": cfg.Collection}).Info("Connected to MongoDB")
	s := newStore(client.Database(cfg.Database).Collection(cfg.Collection), log)
	s.client = client
	return s, nil
}

func newStore(coll collection, log *logrus.Entry) *Store {
	return &Store{coll: coll, log: log}
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func (s *Store) Begin(_ context.Context, run session.Run) error {
	s.run = output.RunName(run)
	return nil
}

// Record inserts the readings of a successful cycle. Failed cycles carry no
// readings and insert nothing.
func (s *Store) Record(ctx context.Context, m session.Measurement) error {
	readings := output.Readings(s.run, m)
	if len(readings) == 0 {
		return nil
	}

	docs := make([]interface{}, len(readings))
	for i, r := range readings {
		docs[i] = r
	}

	ctx, cancel := context.WithTimeout(ctx, insertTimeout)
	defer cancel()

	res, err := s.coll.InsertMany(ctx, docs)
	if err != nil {
		return errors.Wrapf(err, "failed to insert %d readings", len(docs))
	}
	s.log.WithField("seq", m.Seq).Debugf("Inserted %d readings", len(res.InsertedIDs))
	return nil
}

func (s *Store) End(context.Context, session.Summary) error {
	return nil
}
