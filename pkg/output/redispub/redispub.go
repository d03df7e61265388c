// Package redispub publishes run events on a Redis channel and keeps a
// capped list of recent readings per sensor.
package redispub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/itohio/tempgraph/pkg/config"
	"github.com/itohio/tempgraph/pkg/output"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// client is the part of *redis.Client the publisher uses.
type client interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
}

type Publisher struct {
	client  client
	closer  func() error
	channel string
	keep    int64
	log     *logrus.Entry
}

var _ output.Publisher = (*Publisher)(nil)

// Connect creates a client and checks the server answers.
func Connect(ctx context.Context, cfg config.RedisConfig, log *logrus.Entry) (*Publisher, error) {
	c := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}
	log.WithField("addr", cfg.Addr).Info("Connected to Redis")

	p := newPublisher(c, cfg, log)
	p.closer = c.Close
	return p, nil
}

func newPublisher(c client, cfg config.RedisConfig, log *logrus.Entry) *Publisher {
	return &Publisher{client: c, channel: cfg.Channel, keep: cfg.Keep, log: log}
}

// ListKey is the list holding recent readings of a sensor.
func ListKey(deviceID int) string {
	return fmt.Sprintf("tempgraph:%d:readings", deviceID)
}

// Publish sends e on the channel and pushes its readings onto the per sensor
// lists. List failures are logged only.
func (p *Publisher) Publish(ctx context.Context, e output.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return errors.Wrap(err, "failed to publish event")
	}

	for _, r := range e.Readings {
		reading, err := json.Marshal(r)
		if err != nil {
			return errors.Wrap(err, "failed to marshal reading")
		}
		key := ListKey(r.DeviceID)
		if err := p.client.LPush(ctx, key, reading).Err(); err != nil {
			p.log.WithError(err).WithField("key", key).Warn("Failed to save reading")
			continue
		}
		if p.keep > 0 {
			p.client.LTrim(ctx, key, 0, p.keep-1)
		}
	}
	return nil
}

// Close closes the client.
func (p *Publisher) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}
