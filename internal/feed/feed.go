// Package feed fans out newly appended channel messages via Redis
// Streams. It is the change-feed capability the delegation broker
// subscribes to; persistence itself lives in the store.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/crewdesk/crewdesk/internal/delegation"
)

const streamPrefix = "crewdesk:channel:"

// Feed is a Redis Streams backed change feed, one stream per channel.
type Feed struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// New connects to Redis and returns a ready Feed.
func New(redisURL string, logger *zap.Logger) (*Feed, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Feed{rdb: rdb, logger: logger}, nil
}

// Publish appends a message event to its channel's stream.
func (f *Feed) Publish(ctx context.Context, msg *delegation.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	stream := streamPrefix + msg.ChannelID
	_, err = f.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", stream, err)
	}

	f.logger.Debug("message published",
		zap.String("channel", msg.ChannelID),
		zap.String("kind", string(msg.Kind)),
		zap.String("request_id", msg.RequestID))
	return nil
}

// Subscribe listens for new messages on one channel's stream, starting
// from now. Delivery is in append order within the channel. Cancel the
// context to unsubscribe; the returned channel is closed on exit.
func (f *Feed) Subscribe(ctx context.Context, channelID string) <-chan *delegation.Message {
	ch := make(chan *delegation.Message, 16)
	stream := streamPrefix + channelID

	go func() {
		defer close(ch)
		lastID := "$"

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			results, err := f.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{stream, lastID},
				Count:   10,
				Block:   time.Second * 2,
			}).Result()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				// redis.Nil means the block window elapsed without data.
				if err != redis.Nil {
					f.logger.Warn("feed read failed", zap.String("stream", stream), zap.Error(err))
				}
				continue
			}

			for _, r := range results {
				for _, entry := range r.Messages {
					lastID = entry.ID
					data, ok := entry.Values["data"].(string)
					if !ok {
						continue
					}
					var msg delegation.Message
					if json.Unmarshal([]byte(data), &msg) != nil {
						continue
					}
					select {
					case ch <- &msg:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch
}

// Close shuts down the Redis connection.
func (f *Feed) Close() error {
	return f.rdb.Close()
}
