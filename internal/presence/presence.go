// Package presence tracks which devices currently hold a live session, as
// Redis keys with a TTL. It is advisory metadata: nothing in the sync path
// depends on it, and without a Redis URL the relay runs with the no-op
// tracker.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTL is how long a presence key survives without a heartbeat. Connected
// sessions refresh on every ping round.
const TTL = 60 * time.Second

const keyPrefix = "clipd:presence:"

// Record is the stored presence value for one device session.
type Record struct {
	UserID   string    `json:"userId"`
	DeviceID string    `json:"deviceId"`
	LastSeen time.Time `json:"lastSeen"`
}

// Tracker records session liveness.
type Tracker interface {
	// Touch marks the device online and refreshes its TTL.
	Touch(ctx context.Context, userID, deviceID string) error
	// Drop removes the device's presence on disconnect.
	Drop(ctx context.Context, userID, deviceID string) error
}

// Redis is the go-redis backed Tracker.
type Redis struct {
	client *redis.Client
}

// NewRedis connects a client to redisURL and verifies it.
func NewRedis(ctx context.Context, redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{client: client}, nil
}

// Close releases the client.
func (r *Redis) Close() error { return r.client.Close() }

// Touch implements Tracker.
func (r *Redis) Touch(ctx context.Context, userID, deviceID string) error {
	rec := Record{UserID: userID, DeviceID: deviceID, LastSeen: time.Now()}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal presence: %w", err)
	}
	if err := r.client.Set(ctx, key(userID, deviceID), data, TTL).Err(); err != nil {
		return fmt.Errorf("set presence: %w", err)
	}
	return nil
}

// Drop implements Tracker.
func (r *Redis) Drop(ctx context.Context, userID, deviceID string) error {
	if err := r.client.Del(ctx, key(userID, deviceID)).Err(); err != nil {
		return fmt.Errorf("delete presence: %w", err)
	}
	return nil
}

func key(userID, deviceID string) string {
	return keyPrefix + userID + ":" + deviceID
}

// Noop is the Tracker used when no Redis is configured.
type Noop struct{}

func (Noop) Touch(context.Context, string, string) error { return nil }
func (Noop) Drop(context.Context, string, string) error  { return nil }
