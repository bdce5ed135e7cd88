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

// Package ewma implements a peak-sensitive exponentially weighted moving average of
// round-trip time. Latency bursts raise the estimate immediately; between bursts the
// estimate decays toward fresh observations. The shape follows Finagle's PeakEwma
// load metric.
package ewma

import (
	"math"
	"sync"
	"time"
)

const (
	// DefaultDecay keeps the estimate sensitive over roughly one second of traffic.
	DefaultDecay = float64(time.Second)

	// DefaultRTT seeds new backends high enough that they do not absorb all the
	// traffic before a single real observation lands.
	DefaultRTT = float64(50 * time.Millisecond)
)

// PeakEWMA tracks an RTT estimate in nanoseconds. All methods are safe for use from
// the single worker goroutine plus the admin plane's read-only introspection.
type PeakEWMA struct {
	mu        sync.Mutex
	decay     float64
	rtt       float64
	lastEvent time.Time

	now func() time.Time
}

func New() *PeakEWMA {
	return NewWithClock(time.Now)
}

// NewWithClock is the test constructor; the clock drives the decay weight.
func NewWithClock(now func() time.Time) *PeakEWMA {
	return &PeakEWMA{
		decay:     DefaultDecay,
		rtt:       DefaultRTT,
		lastEvent: now(),
		now:       now,
	}
}

// Observe folds one RTT sample (nanoseconds) into the estimate. A sample above the
// current estimate replaces it outright; otherwise the estimate decays toward the
// sample with weight exp(-elapsed/decay). With zero elapsed time the estimate is
// unchanged by a zero sample.
func (p *PeakEWMA) Observe(rtt float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.observe(rtt)
}

func (p *PeakEWMA) observe(rtt float64) {
	now := p.now()
	elapsed := now.Sub(p.lastEvent)

	if rtt > p.rtt {
		p.rtt = rtt
	} else {
		weight := math.Exp(-1.0 * float64(elapsed) / p.decay)
		p.rtt = p.rtt*weight + rtt*(1.0-weight)
	}

	p.lastEvent = now
}

// Cost returns the selection cost (active_requests + 1) * rtt, after folding in a
// zero observation so stale estimates age toward zero instead of pinning a backend
// at its worst historical latency.
func (p *PeakEWMA) Cost(activeRequests int) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.observe(0.0)

	return float64(activeRequests+1) * p.rtt
}

// RTT returns the current estimate without decaying it.
func (p *PeakEWMA) RTT() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.rtt
}
