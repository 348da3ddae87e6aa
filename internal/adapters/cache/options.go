package cache

// Option applies a configuration option to the cache.
type Option func(*lruCache)

// WithSize sets the maximum number of cached predictions.
// If size <= 0 the cache is disabled.
func WithSize(size int) Option {
	return func(c *lruCache) {
		c.size = size
	}
}
