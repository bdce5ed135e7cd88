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

package backend

import (
	"sync"
	"time"

	"github.com/nabbar/proxycore/backend/ewma"
	"github.com/nabbar/proxycore/backend/retry"
	"github.com/nabbar/proxycore/balancer"
	"github.com/nabbar/proxycore/errors"
)

// ClusterOptions are the per-cluster routing knobs.
type ClusterOptions struct {
	StickySession  bool
	HTTPSRedirect  bool
	LoadBalancing  string
	Unavailable503 []byte
}

// Cluster groups a load-balancing policy with its ordered backend list.
type Cluster struct {
	ID       string
	Options  ClusterOptions
	strategy balancer.Strategy
	backends []*Backend
}

// Unavailable returns the body served when no backend is eligible.
func (c *Cluster) Unavailable() []byte {
	if len(c.Options.Unavailable503) > 0 {
		return c.Options.Unavailable503
	}

	return []byte("service unavailable")
}

// Backends returns the ordered backend list. The slice is owned by the registry;
// callers must not mutate it.
func (c *Cluster) Backends() []*Backend {
	return c.backends
}

// New builds a backend with a fresh retry policy and latency estimator.
func New(clusterID, backendID, address string) *Backend {
	return &Backend{
		ClusterID: clusterID,
		BackendID: backendID,
		Address:   address,
		status:    Normal,
		Retry:     retry.NewPolicy(),
		Load:      ewma.New(),
	}
}

// Registry owns every cluster and backend. Sessions hold (cluster_id, backend_id)
// pairs or a *Backend handle obtained through Select; all mutation goes through the
// registry so retry and health state survive reconfiguration.
type Registry struct {
	mu sync.Mutex

	clusters map[string]*Cluster
	onEvent  FuncEvent
	metrics  *metrics
}

func NewRegistry(onEvent FuncEvent) *Registry {
	if onEvent == nil {
		onEvent = func(Event) {}
	}

	return &Registry{
		clusters: make(map[string]*Cluster),
		onEvent:  onEvent,
		metrics:  newMetrics(),
	}
}

// AddCluster registers an empty cluster with the given options.
func (r *Registry) AddCluster(id string, opts ClusterOptions) errors.Error {
	strategy, err := balancer.NewStrategy(opts.LoadBalancing)
	if err != nil {
		return err
	}

	if opts.StickySession {
		strategy = balancer.NewSticky(strategy)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clusters[id]; ok {
		return ErrorClusterExists.Error(nil)
	}

	r.clusters[id] = &Cluster{
		ID:       id,
		Options:  opts,
		strategy: strategy,
	}

	r.onEvent(Event{Kind: EventClusterAdded, ClusterID: id})

	return nil
}

// RemoveCluster drops a cluster and marks every backend it held for removal. Backends
// with live connections drain through Closing as usual.
func (r *Registry) RemoveCluster(id string) errors.Error {
	r.mu.Lock()

	c, ok := r.clusters[id]
	if !ok {
		r.mu.Unlock()
		return ErrorClusterUnknown.Error(nil)
	}

	backends := c.backends
	delete(r.clusters, id)
	r.mu.Unlock()

	for _, b := range backends {
		if b.markRemove() {
			r.onEvent(Event{Kind: EventRemovedBackendHasNoConnections, ClusterID: id, BackendID: b.BackendID})
		}
		r.metrics.drop(b)
	}

	r.onEvent(Event{Kind: EventClusterRemoved, ClusterID: id})

	return nil
}

// Cluster looks up a cluster by id.
func (r *Registry) Cluster(id string) (*Cluster, errors.Error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clusters[id]
	if !ok {
		return nil, ErrorClusterUnknown.Error(nil)
	}

	return c, nil
}

// Add appends a backend to its cluster's ordered list.
func (r *Registry) Add(b *Backend) errors.Error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clusters[b.ClusterID]
	if !ok {
		return ErrorClusterUnknown.Error(nil)
	}

	for _, o := range c.backends {
		if o.BackendID == b.BackendID {
			return ErrorBackendExists.Error(nil)
		}
	}

	c.backends = append(c.backends, b)
	r.metrics.track(b)

	return nil
}

// Remove transitions a backend to Closing, or straight to Closed when it has no
// connection to drain, emitting the removal event in the latter case.
func (r *Registry) Remove(clusterID, backendID string) errors.Error {
	r.mu.Lock()

	c, ok := r.clusters[clusterID]
	if !ok {
		r.mu.Unlock()
		return ErrorClusterUnknown.Error(nil)
	}

	var target *Backend
	for i, b := range c.backends {
		if b.BackendID == backendID {
			target = b
			c.backends = append(c.backends[:i], c.backends[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	if target == nil {
		return ErrorBackendUnknown.Error(nil)
	}

	if target.markRemove() {
		r.onEvent(Event{Kind: EventRemovedBackendHasNoConnections, ClusterID: clusterID, BackendID: backendID})
		r.metrics.drop(target)
	}

	return nil
}

// Select picks one eligible backend from the cluster via its strategy, incrementing
// its connection and request counters. Release must be called once per successful
// Select.
func (r *Registry) Select(clusterID, stickyHint string) (*Backend, errors.Error) {
	r.mu.Lock()

	c, ok := r.clusters[clusterID]
	if !ok {
		r.mu.Unlock()
		return nil, ErrorClusterUnknown.Error(nil)
	}

	candidates := make([]balancer.Candidate, len(c.backends))
	for i, b := range c.backends {
		candidates[i] = b
	}
	strategy := c.strategy
	r.mu.Unlock()

	chosen, found := strategy.Select(candidates, stickyHint)
	if !found {
		r.onEvent(Event{Kind: EventNoAvailableBackends, ClusterID: clusterID})
		return nil, ErrorNoBackendAvailable.Error(nil)
	}

	b := chosen.(*Backend)
	b.acquire()
	r.metrics.acquired(b)

	return b, nil
}

// Release undoes one Select. When the release closes a Closing backend the removal
// event fires exactly once.
func (r *Registry) Release(b *Backend) {
	if b == nil {
		return
	}

	if b.release() {
		r.onEvent(Event{Kind: EventRemovedBackendHasNoConnections, ClusterID: b.ClusterID, BackendID: b.BackendID})
		r.metrics.drop(b)
		return
	}

	r.metrics.released(b)
}

// MarkFailure records one failed connect attempt, driving the retry policy; the first
// failure that makes the backend ineligible emits backend-down.
func (r *Registry) MarkFailure(b *Backend) {
	if b == nil {
		return
	}

	wasEligible := b.Eligible()

	b.Retry.OnFailure()
	r.metrics.failure(b)

	if wasEligible && !b.Eligible() {
		r.onEvent(Event{Kind: EventBackendDown, ClusterID: b.ClusterID, BackendID: b.BackendID})
	}
}

// MarkSuccess records a fully successful request with its connect round-trip time,
// resetting the retry policy; a recovery emits backend-up.
func (r *Registry) MarkSuccess(b *Backend, rtt time.Duration) {
	if b == nil {
		return
	}

	wasEligible := b.Eligible()

	b.Retry.OnSuccess()
	b.Load.Observe(float64(rtt))
	r.metrics.success(b)

	if !wasEligible && b.Eligible() {
		r.onEvent(Event{Kind: EventBackendUp, ClusterID: b.ClusterID, BackendID: b.BackendID})
	}
}

// MarkProbe records a successful out-of-band health probe: the backoff gate opens but
// the failure count stands until a real request completes.
func (r *Registry) MarkProbe(b *Backend) {
	if b == nil {
		return
	}

	wasEligible := b.Eligible()
	b.Retry.Probe()

	if !wasEligible && b.Eligible() {
		r.onEvent(Event{Kind: EventBackendUp, ClusterID: b.ClusterID, BackendID: b.BackendID})
	}
}

// Find resolves a (cluster_id, backend_id) pair to its live backend, if any.
func (r *Registry) Find(clusterID, backendID string) (*Backend, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clusters[clusterID]
	if !ok {
		return nil, false
	}

	for _, b := range c.backends {
		if b.BackendID == backendID {
			return b, true
		}
	}

	return nil, false
}

// Walk visits every cluster in the registry. The callback runs under the registry
// lock and must not call back into the registry.
func (r *Registry) Walk(fct func(c *Cluster)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.clusters {
		fct(c)
	}
}
