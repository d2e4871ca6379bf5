// Package broadcast fans verification outcomes out over Redis pub/sub so
// other processes can follow them live.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/jmcleod/chiralgate/session"
)

const (
	DefaultChannel = "chiralgate:outcomes"

	// recentLimit bounds the list of recent outcomes kept beside the channel.
	recentLimit = 100
	dialTimeout = 3 * time.Second
)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	// Channel defaults to DefaultChannel.
	Channel string
	Logger  *slog.Logger
}

// Client publishes and subscribes to outcomes.
type Client struct {
	inner   *redis.Client
	channel string
	recent  string
	logger  *slog.Logger
}

// Dial connects to Redis and verifies the connection with a ping.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis address required")
	}
	if opts.Channel == "" {
		opts.Channel = DefaultChannel
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	inner := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := inner.Ping(pingCtx).Err(); err != nil {
		inner.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return &Client{
		inner:   inner,
		channel: opts.Channel,
		recent:  opts.Channel + ":recent",
		logger:  opts.Logger.With("component", "broadcast"),
	}, nil
}

// Record publishes o and keeps it in the recent list. Failures are logged.
func (c *Client) Record(ctx context.Context, o session.Outcome) {
	if err := c.Publish(ctx, o); err != nil {
		c.logger.WarnContext(ctx, "outcome publish failed", "outcome_id", o.ID, "error", err)
	}
}

// Publish sends o to subscribers and prepends it to the recent list.
func (c *Client) Publish(ctx context.Context, o session.Outcome) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return err
	}
	_, err = c.inner.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, c.channel, payload)
		pipe.LPush(ctx, c.recent, payload)
		pipe.LTrim(ctx, c.recent, 0, recentLimit-1)
		return nil
	})
	return err
}

// Recent returns up to n of the latest outcomes, newest first.
func (c *Client) Recent(ctx context.Context, n int) ([]session.Outcome, error) {
	if n <= 0 || n > recentLimit {
		n = recentLimit
	}
	raw, err := c.inner.LRange(ctx, c.recent, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]session.Outcome, 0, len(raw))
	for _, item := range raw {
		o, err := decode(item)
		if err != nil {
			c.logger.Warn("skipping undecodable outcome", "error", err)
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// Subscribe calls fn for every published outcome until ctx is cancelled.
func (c *Client) Subscribe(ctx context.Context, fn func(session.Outcome)) error {
	sub := c.inner.Subscribe(ctx, c.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", c.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			o, err := decode(msg.Payload)
			if err != nil {
				c.logger.Warn("skipping undecodable outcome", "error", err)
				continue
			}
			fn(o)
		}
	}
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.inner.Close()
}

func decode(payload string) (session.Outcome, error) {
	var o session.Outcome
	if err := json.Unmarshal([]byte(payload), &o); err != nil {
		return session.Outcome{}, fmt.Errorf("decode outcome: %w", err)
	}
	return o, nil
}
