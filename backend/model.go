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

// Package backend implements the per-cluster backend registry: add/remove,
// selection scoped by strategy, and the health/retry bookkeeping that feeds the load
// balancer's LeastLoaded and Sticky strategies.
package backend

import (
	"sync"

	"github.com/nabbar/proxycore/backend/ewma"
	"github.com/nabbar/proxycore/backend/retry"
)

// Status is a backend's lifecycle state. Transitions obey Normal -> Closing -> Closed
// and never reverse.
type Status uint8

const (
	Normal Status = iota
	Closing
	Closed
)

func (s Status) String() string {
	switch s {
	case Normal:
		return "Normal"
	case Closing:
		return "Closing"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Backend is identified by (cluster_id, backend_id). The registry exclusively owns
// each instance; sessions hold only its
// (ClusterID, BackendID) pair or an *Backend handle obtained through Select.
type Backend struct {
	mu sync.Mutex

	ClusterID string
	BackendID string
	Address   string
	Sticky    string
	Backup    bool
	Weight    int

	status            Status
	activeConnections int
	activeRequests    int

	Retry *retry.Policy
	Load  *ewma.PeakEWMA

	removedEventFired bool
}

// ID satisfies balancer.Candidate with the backend's (cluster_id, backend_id) pair
// rendered as "cluster_id/backend_id".
func (b *Backend) ID() string {
	return b.ClusterID + "/" + b.BackendID
}

// IsBackup satisfies balancer.Candidate.
func (b *Backend) IsBackup() bool {
	return b.Backup
}

// StickyID satisfies balancer.Candidate.
func (b *Backend) StickyID() string {
	return b.Sticky
}

// GetStatus returns the backend's current lifecycle state.
func (b *Backend) GetStatus() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.status
}

// Eligible reports whether the backend may currently be selected: Normal status and a
// retry policy reporting Okay.
func (b *Backend) Eligible() bool {
	b.mu.Lock()
	status := b.status
	b.mu.Unlock()

	if status != Normal {
		return false
	}

	return b.Retry.CanTry() == retry.Okay
}

// ActiveConnections returns the live connection count.
func (b *Backend) ActiveConnections() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.activeConnections
}

// ActiveRequests returns the live in-flight request count, used by LeastLoaded's cost
// function.
func (b *Backend) ActiveRequests() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.activeRequests
}

// Failures returns the consecutive-failure count since the last success.
func (b *Backend) Failures() int {
	return b.Retry.Failures()
}

// Cost is the load-balancer selection cost, Peak-EWMA scaled by in-flight requests.
func (b *Backend) Cost() float64 {
	return b.Load.Cost(b.ActiveRequests())
}

// acquire records a new connection/request pair on successful dispatch.
func (b *Backend) acquire() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.activeConnections++
	b.activeRequests++
}

// release drops one connection/request pair, returning true exactly once when this
// release causes a Closing backend to become Closed.
func (b *Backend) release() (becameClosed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.activeConnections > 0 {
		b.activeConnections--
	}
	if b.activeRequests > 0 {
		b.activeRequests--
	}

	if b.status == Closing && b.activeConnections == 0 && !b.removedEventFired {
		b.status = Closed
		b.removedEventFired = true
		return true
	}

	return false
}

// markRemove transitions Normal -> Closing, or immediately to Closed when there are no
// active connections to drain.
func (b *Backend) markRemove() (becameClosedNow bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status != Normal {
		return false
	}

	if b.activeConnections == 0 {
		b.status = Closed
		b.removedEventFired = true
		return true
	}

	b.status = Closing
	return false
}
