package coordinator

import (
	"math/rand/v2"
	"sync"
)

// Flipper draws the admission coin.
type Flipper interface {
	// Flip returns true for heads.
	Flip() bool
}

// FlipperFunc adapts a function to Flipper.
type FlipperFunc func() bool

func (f FlipperFunc) Flip() bool { return f() }

// FairCoin is a uniform coin with its own generator.
type FairCoin struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewFairCoin returns a coin seeded from the runtime's random source.
func NewFairCoin() *FairCoin {
	return NewSeededCoin(rand.Uint64(), rand.Uint64())
}

// NewSeededCoin returns a reproducible coin.
func NewSeededCoin(seed1, seed2 uint64) *FairCoin {
	return &FairCoin{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

func (c *FairCoin) Flip() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.IntN(2) == 1
}
