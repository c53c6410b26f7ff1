package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

func seatClaimKey(showID, seatID int64) string {
	return "claim:" + strconv.FormatInt(showID, 10) + ":" + strconv.FormatInt(seatID, 10)
}

// ClaimSeat takes a short-lived advisory claim on a seat before the
// transactional bind. It is a fast-path filter for contending agents; the
// database bind remains the arbiter of who gets the seat. The stored value
// is the claim time, for inspection only.
func (c *Cache) ClaimSeat(ctx context.Context, showID, seatID int64, ttl time.Duration) (bool, error) {
	res := c.client.SetNX(ctx, seatClaimKey(showID, seatID), time.Now().Unix(), ttl)
	return res.Val(), res.Err()
}

// ReleaseClaim drops a seat claim. Safe to call for claims that never
// existed or already expired.
func (c *Cache) ReleaseClaim(ctx context.Context, showID, seatID int64) error {
	return c.client.Del(ctx, seatClaimKey(showID, seatID)).Err()
}
