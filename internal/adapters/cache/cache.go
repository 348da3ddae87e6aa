// Package cache remembers recent predictions keyed by model and input.
package cache

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/okian/exodetect/internal/domain/model"
	"github.com/okian/exodetect/pkg/metrics"
)

// Cache stores predictions for identical inputs. Implementations are safe
// for concurrent use and never hand out shared maps.
type Cache interface {
	Get(ctx context.Context, kind model.Kind, values []float64) (model.Prediction, bool)
	Add(ctx context.Context, kind model.Kind, values []float64, p model.Prediction)
	Len() int
}

const defaultSize = 1024

type entry struct {
	kind       model.Kind
	values     []float64
	prediction model.Prediction
}

// lruCache keys entries by an xxhash of the kind and the raw value bits.
// The stored input is compared on lookup so a hash collision is a miss.
type lruCache struct {
	size  int
	items *lru.Cache[uint64, entry]
}

// New returns an LRU-backed cache, or a cache that stores nothing when the
// configured size is zero or negative.
func New(opts ...Option) Cache {
	c := &lruCache{size: defaultSize}
	for _, opt := range opts {
		opt(c)
	}
	if c.size <= 0 {
		return noop{}
	}
	items, err := lru.New[uint64, entry](c.size)
	if err != nil {
		return noop{}
	}
	c.items = items
	return c
}

func (c *lruCache) Get(_ context.Context, kind model.Kind, values []float64) (model.Prediction, bool) {
	e, ok := c.items.Get(key(kind, values))
	if !ok || e.kind != kind || !sameBits(e.values, values) {
		metrics.RecordCacheMiss()
		return model.Prediction{}, false
	}
	metrics.RecordCacheHit()
	return e.prediction.Clone(), true
}

func (c *lruCache) Add(_ context.Context, kind model.Kind, values []float64, p model.Prediction) {
	c.items.Add(key(kind, values), entry{
		kind:       kind,
		values:     append([]float64(nil), values...),
		prediction: p.Clone(),
	})
}

func (c *lruCache) Len() int { return c.items.Len() }

func key(kind model.Kind, values []float64) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(string(kind))
	var buf [8]byte
	for _, v := range values {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}

func sameBits(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Float64bits(a[i]) != math.Float64bits(b[i]) {
			return false
		}
	}
	return true
}

type noop struct{}

func (noop) Get(context.Context, model.Kind, []float64) (model.Prediction, bool) {
	return model.Prediction{}, false
}
func (noop) Add(context.Context, model.Kind, []float64, model.Prediction) {}
func (noop) Len() int                                                     { return 0 }
