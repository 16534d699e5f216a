package domain

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
)

// MaxRandomID is the inclusive upper bound of RandomIDs.
const MaxRandomID = 10000

const (
	IDStrategySequential = "sequential"
	IDStrategyRandom     = "random"
)

// IDGenerator produces identifiers for new columns and tasks.
type IDGenerator interface {
	NextID() ID
}

// SequentialIDs hands out increasing identifiers.
type SequentialIDs struct {
	next atomic.Int64
}

// NewSequentialIDs returns a generator whose first id is start.
func NewSequentialIDs(start ID) *SequentialIDs {
	g := &SequentialIDs{}
	g.next.Store(int64(start))
	return g
}

func (g *SequentialIDs) NextID() ID {
	return ID(g.next.Add(1) - 1)
}

// RandomIDs draws identifiers uniformly from [0, MaxRandomID] without any
// collision check of its own.
type RandomIDs struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandomIDs creates a random generator. A nil source uses a randomly seeded PCG.
func NewRandomIDs(src rand.Source) *RandomIDs {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &RandomIDs{rnd: rand.New(src)}
}

func (g *RandomIDs) NextID() ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ID(g.rnd.IntN(MaxRandomID + 1))
}

// NewIDGenerator builds the generator named by strategy. Sequential ids start at start.
func NewIDGenerator(strategy string, start ID) (IDGenerator, error) {
	switch strings.ToLower(strings.TrimSpace(strategy)) {
	case "", IDStrategySequential:
		return NewSequentialIDs(start), nil
	case IDStrategyRandom:
		return NewRandomIDs(nil), nil
	default:
		return nil, fmt.Errorf("unknown id strategy %q", strategy)
	}
}
