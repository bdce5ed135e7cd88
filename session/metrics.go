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

package session

import "time"

// Metrics accumulates one session's timings and byte counters. Instants are recorded
// as they happen; the derived accessors compute the exposed durations.
type Metrics struct {
	Start time.Time

	// WaitStart marks when the session last went idle waiting for readiness.
	WaitStart time.Time

	// ServiceTime accumulates time actually spent driving the session.
	ServiceTime time.Duration

	// WaitTime accumulates time spent waiting for readiness.
	WaitTime time.Duration

	BytesIn     uint64
	BytesOut    uint64
	BackBytesIn uint64
	BackBytesOut uint64

	BackendConnectStart time.Time
	BackendConnected    time.Time
	BackendStop         time.Time
}

func NewMetrics(now time.Time) Metrics {
	return Metrics{Start: now, WaitStart: now}
}

// BeginService closes the current wait period and opens a service period.
func (m *Metrics) BeginService(now time.Time) {
	if !m.WaitStart.IsZero() {
		m.WaitTime += now.Sub(m.WaitStart)
		m.WaitStart = time.Time{}
	}
}

// EndService closes the current service period and reopens the wait clock.
func (m *Metrics) EndService(begin, now time.Time) {
	m.ServiceTime += now.Sub(begin)
	m.WaitStart = now
}

// BackendConnectionTime is the time the last backend connect took, zero while still
// connecting.
func (m *Metrics) BackendConnectionTime() time.Duration {
	if m.BackendConnectStart.IsZero() || m.BackendConnected.IsZero() {
		return 0
	}

	return m.BackendConnected.Sub(m.BackendConnectStart)
}

// ResponseTime is the total wall-clock life of the session so far.
func (m *Metrics) ResponseTime(now time.Time) time.Duration {
	if m.Start.IsZero() {
		return 0
	}

	return now.Sub(m.Start)
}
