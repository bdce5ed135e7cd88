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
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics instruments the registry with per-backend gauges and counters. Aggregation
// and scraping live outside the worker; this only feeds the process registry.
type metrics struct {
	activeConnections *prometheus.GaugeVec
	activeRequests    *prometheus.GaugeVec
	failures          *prometheus.CounterVec
	successes         *prometheus.CounterVec
	rttSeconds        *prometheus.GaugeVec
}

var backendLabels = []string{"cluster_id", "backend_id"}

func newMetrics() *metrics {
	m := &metrics{
		activeConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "backend_active_connections",
			Help: "Live connections held against a backend.",
		}, backendLabels),
		activeRequests: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "backend_active_requests",
			Help: "In-flight requests against a backend.",
		}, backendLabels),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backend_connect_failures_total",
			Help: "Failed connect attempts per backend.",
		}, backendLabels),
		successes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backend_requests_success_total",
			Help: "Fully completed requests per backend.",
		}, backendLabels),
		rttSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "backend_rtt_seconds",
			Help: "Peak-EWMA round-trip estimate per backend.",
		}, backendLabels),
	}

	for _, c := range []prometheus.Collector{
		m.activeConnections, m.activeRequests, m.failures, m.successes, m.rttSeconds,
	} {
		// duplicate registration happens when a worker is rebuilt in tests; the
		// already-registered collector keeps collecting either way
		_ = prometheus.Register(c)
	}

	return m
}

func (m *metrics) labels(b *Backend) prometheus.Labels {
	return prometheus.Labels{"cluster_id": b.ClusterID, "backend_id": b.BackendID}
}

func (m *metrics) track(b *Backend) {
	m.activeConnections.With(m.labels(b)).Set(0)
	m.activeRequests.With(m.labels(b)).Set(0)
}

func (m *metrics) drop(b *Backend) {
	m.activeConnections.Delete(m.labels(b))
	m.activeRequests.Delete(m.labels(b))
	m.rttSeconds.Delete(m.labels(b))
}

func (m *metrics) acquired(b *Backend) {
	m.activeConnections.With(m.labels(b)).Inc()
	m.activeRequests.With(m.labels(b)).Inc()
}

func (m *metrics) released(b *Backend) {
	m.activeConnections.With(m.labels(b)).Dec()
	m.activeRequests.With(m.labels(b)).Dec()
}

func (m *metrics) failure(b *Backend) {
	m.failures.With(m.labels(b)).Inc()
}

func (m *metrics) success(b *Backend) {
	m.successes.With(m.labels(b)).Inc()
	m.rttSeconds.With(m.labels(b)).Set(b.Load.RTT() / float64(time.Second))
}
