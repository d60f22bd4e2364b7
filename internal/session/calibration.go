package session

import (
	"context"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

const calibrationKey = "apex:lean:calibration"

// Calibration persists the single roll offset treated as upright. It defaults
// to 0, changes only on an explicit calibrate action, and is read once at
// startup.
type Calibration struct {
	mu    sync.Mutex
	value float64
	redis *redis.Client
}

func NewCalibration(redisClient *redis.Client) *Calibration {
	return &Calibration{redis: redisClient}
}

// Load reads the persisted offset; a missing key or unreachable Redis keeps
// the default of 0.
func (c *Calibration) Load(ctx context.Context) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.redis != nil {
		if raw, err := c.redis.Get(ctx, calibrationKey).Result(); err == nil {
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				c.value = v
			}
		}
	}
	return c.value
}

// Save persists a new offset.
func (c *Calibration) Save(ctx context.Context, offset float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = offset
	if c.redis == nil {
		return nil
	}
	return c.redis.Set(ctx, calibrationKey, strconv.FormatFloat(offset, 'f', -1, 64), 0).Err()
}

// Value returns the last loaded or saved offset without touching Redis.
func (c *Calibration) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}
