package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Idempotency stores the serialized outcome of a completed mutating request
// under the caller's Idempotency-Key, so a retried seat purchase replays the
// stored response instead of binding seats a second time.
type Idempotency struct {
	client *redis.Client
}

func NewIdempotency(client *redis.Client) *Idempotency {
	return &Idempotency{client: client}
}

// IdempResponse is the replayable part of a response: the HTTP status and
// the exact body bytes that were sent.
type IdempResponse struct {
	Status int
	Result []byte
}

func idempKey(key string) string {
	return "cinebook:idemp:" + key
}

// Get returns the stored response for the key, or nil if the key was never
// completed (or its record expired).
func (i *Idempotency) Get(ctx context.Context, key string) (*IdempResponse, error) {
	val, err := i.client.Get(ctx, idempKey(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var resp IdempResponse
	err = json.Unmarshal(val, &resp)
	return &resp, err
}

func (i *Idempotency) Set(ctx context.Context, key string, resp IdempResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return i.client.Set(ctx, idempKey(key), data, ttl).Err()
}
