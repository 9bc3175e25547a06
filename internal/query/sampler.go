// Package query serves random samples of transferred messages.
package query

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/alfredjeanlab/microblog/internal/model"
	"github.com/alfredjeanlab/microblog/internal/store"
)

// Sample size bounds, inclusive.
const (
	MinSample = 10
	MaxSample = 50
)

// Sampler picks random messages. It is safe for concurrent use.
type Sampler struct {
	store store.Store

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSampler returns a Sampler reading from s. A zero seed seeds from the
// current time; any other seed makes the sequence of samples repeatable.
func NewSampler(s store.Store, seed uint64) *Sampler {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Sampler{
		store: s,
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Sample returns between MinSample and MaxSample distinct messages, fewer
// when fewer exist. An empty store yields an empty, non-nil slice.
func (s *Sampler) Sample(ctx context.Context) ([]*model.MessageView, error) {
	ids, err := s.store.ListMessageIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("sample: %w", err)
	}
	if len(ids) == 0 {
		return []*model.MessageView{}, nil
	}

	picked := s.pick(ids)
	views, err := s.store.GetMessageViews(ctx, picked)
	if err != nil {
		return nil, fmt.Errorf("sample: %w", err)
	}
	return views, nil
}

// pick draws the sample size and moves that many random ids to the front
// of ids with a partial Fisher-Yates shuffle.
func (s *Sampler) pick(ids []int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := min(MinSample+s.rng.IntN(MaxSample-MinSample+1), len(ids))
	for i := range n {
		j := i + s.rng.IntN(len(ids)-i)
		ids[i], ids[j] = ids[j], ids[i]
	}
	return ids[:n]
}
