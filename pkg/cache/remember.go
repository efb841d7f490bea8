package cache

import "time"

// Remember returns the cached value under key, or computes, stores and
// returns it. Concurrent misses may both compute; the last one stored wins.
// Errors are returned uncached.
func Remember[T any](c *Cache, key string, ttl time.Duration, compute func() (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	v, err := compute()
	if err != nil {
		return v, err
	}
	c.SetWithTTL(key, v, ttl)
	return v, nil
}
