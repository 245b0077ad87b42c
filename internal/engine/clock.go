package engine

import (
	"hash/fnv"
	"time"
)

type (
	// Clock provides the current time for steps and checkpoints
	Clock func() time.Time

	// NumberSource yields a number in [lo, hi] for a key. Implementations
	// must return the same number for the same key so that a replayed step
	// produces the same output
	NumberSource interface {
		Number(key string, lo, hi int) int
	}

	// NumberFunc adapts a function into a NumberSource
	NumberFunc func(key string, lo, hi int) int

	hashNumbers struct{}
)

// HashNumbers derives numbers from an FNV-1a hash of the key
var HashNumbers NumberSource = hashNumbers{}

func (hashNumbers) Number(key string, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	span := uint64(hi - lo + 1)
	return lo + int(h.Sum64()%span)
}

func (f NumberFunc) Number(key string, lo, hi int) int {
	return f(key, lo, hi)
}
