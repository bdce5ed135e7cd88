/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package balancer

import (
	"math/rand"
	"sync"
)

// RoundRobinStrategy keeps a per-cluster cursor, skipping ineligible backends and
// never revisiting one that became ineligible mid-cycle until it is eligible again.
type RoundRobinStrategy struct {
	mu     sync.Mutex
	cursor int
}

func NewRoundRobin() *RoundRobinStrategy {
	return &RoundRobinStrategy{}
}

func (r *RoundRobinStrategy) Name() string { return "round_robin" }

func (r *RoundRobinStrategy) Select(candidates []Candidate, _ string) (Candidate, bool) {
	pool := sortedByID(eligible(candidates))
	if len(pool) == 0 {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cursor >= len(pool) {
		r.cursor = 0
	}

	chosen := pool[r.cursor]
	r.cursor = (r.cursor + 1) % len(pool)

	return chosen, true
}

// RandomStrategy picks uniformly among eligible candidates.
type RandomStrategy struct {
	mu   sync.Mutex
	rand *rand.Rand
}

func NewRandom(seed int64) *RandomStrategy {
	return &RandomStrategy{rand: rand.New(rand.NewSource(seed))}
}

func (r *RandomStrategy) Name() string { return "random" }

func (r *RandomStrategy) Select(candidates []Candidate, _ string) (Candidate, bool) {
	pool := eligible(candidates)
	if len(pool) == 0 {
		return nil, false
	}

	r.mu.Lock()
	idx := r.rand.Intn(len(pool))
	r.mu.Unlock()

	return pool[idx], true
}

// LeastLoadedStrategy picks the eligible candidate with the lowest Peak-EWMA cost,
// breaking ties lexicographically by backend id.
type LeastLoadedStrategy struct{}

func NewLeastLoaded() *LeastLoadedStrategy {
	return &LeastLoadedStrategy{}
}

func (l *LeastLoadedStrategy) Name() string { return "least_loaded" }

func (l *LeastLoadedStrategy) Select(candidates []Candidate, _ string) (Candidate, bool) {
	pool := sortedByID(eligible(candidates))
	if len(pool) == 0 {
		return nil, false
	}

	best := pool[0]
	bestCost := best.Cost()

	for _, c := range pool[1:] {
		if c.Cost() < bestCost {
			best = c
			bestCost = c.Cost()
		}
	}

	return best, true
}

// StickyStrategy dispatches to the backend whose StickyID matches the hint while it is
// eligible, falling back to a delegate strategy otherwise.
type StickyStrategy struct {
	fallback Strategy
}

func NewSticky(fallback Strategy) *StickyStrategy {
	return &StickyStrategy{fallback: fallback}
}

func (s *StickyStrategy) Name() string { return "sticky" }

func (s *StickyStrategy) Select(candidates []Candidate, stickyHint string) (Candidate, bool) {
	if stickyHint != "" {
		for _, c := range candidates {
			if c.StickyID() == stickyHint && c.Eligible() {
				return c, true
			}
		}
	}

	return s.fallback.Select(candidates, stickyHint)
}
