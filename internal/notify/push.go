package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// LogPush simulates push delivery by logging the message.
type LogPush struct {
	log *slog.Logger
}

func NewLogPush(log *slog.Logger) *LogPush {
	if log == nil {
		log = slog.Default()
	}
	return &LogPush{log: log}
}

func (p *LogPush) Send(ctx context.Context, message string) {
	p.log.InfoContext(ctx, "push notification sent", "message", message)
}

// RedisPush publishes push notifications on a Redis channel for a push gateway to consume.
// Publish failures are logged, never returned.
type RedisPush struct {
	client  *redis.Client
	channel string
	log     *slog.Logger
}

func NewRedisPush(client *redis.Client, channel string, log *slog.Logger) *RedisPush {
	if log == nil {
		log = slog.Default()
	}
	return &RedisPush{client: client, channel: channel, log: log}
}

type pushEnvelope struct {
	Message string    `json:"message"`
	SentAt  time.Time `json:"sent_at"`
}

func (p *RedisPush) Send(ctx context.Context, message string) {
	body, err := json.Marshal(pushEnvelope{Message: message, SentAt: time.Now().UTC()})
	if err != nil {
		p.log.ErrorContext(ctx, "push encode failed", "err", err)
		return
	}
	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		p.log.WarnContext(ctx, "push publish failed", "channel", p.channel, "err", err)
		return
	}
	p.log.InfoContext(ctx, "push notification published", "channel", p.channel)
}

var ErrRedisNotReady = errors.New("redis is not ready")

// ConnectRedis parses url and pings the server, retrying up to attempts times.
func ConnectRedis(ctx context.Context, url string, attempts int, interval time.Duration) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		client := redis.NewClient(opts)
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisNotReady, ctx.Err())
		case <-time.After(interval):
		}
	}
	return nil, errors.Join(ErrRedisNotReady, lastErr)
}
