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

package backend_test

import (
	"testing"
	"time"

	"github.com/nabbar/proxycore/backend"
)

type eventLog struct {
	events []backend.Event
}

func (e *eventLog) record(ev backend.Event) {
	e.events = append(e.events, ev)
}

func (e *eventLog) count(kind backend.EventKind) int {
	n := 0
	for _, ev := range e.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func newTestRegistry(t *testing.T, log *eventLog) *backend.Registry {
	t.Helper()

	reg := backend.NewRegistry(log.record)
	if err := reg.AddCluster("c1", backend.ClusterOptions{}); err != nil {
		t.Fatalf("AddCluster: %v", err)
	}

	return reg
}

func TestSelectAndRelease(t *testing.T) {
	log := &eventLog{}
	reg := newTestRegistry(t, log)

	if err := reg.Add(backend.New("c1", "b1", "127.0.0.1:9000")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	b, err := reg.Select("c1", "")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if b.ActiveConnections() != 1 || b.ActiveRequests() != 1 {
		t.Fatalf("counters after select: conns=%d reqs=%d", b.ActiveConnections(), b.ActiveRequests())
	}

	reg.Release(b)
	if b.ActiveConnections() != 0 {
		t.Fatalf("counters after release: conns=%d", b.ActiveConnections())
	}
}

func TestNoBackendEmitsEvent(t *testing.T) {
	log := &eventLog{}
	reg := newTestRegistry(t, log)

	if _, err := reg.Select("c1", ""); err == nil {
		t.Fatal("Select on empty cluster must fail")
	}
	if log.count(backend.EventNoAvailableBackends) != 1 {
		t.Fatalf("expected one no-available-backends event, got %d", log.count(backend.EventNoAvailableBackends))
	}
}

func TestRemovalWithInFlightConnection(t *testing.T) {
	log := &eventLog{}
	reg := newTestRegistry(t, log)

	b := backend.New("c1", "b1", "127.0.0.1:9000")
	if err := reg.Add(b); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// in-flight request holds a connection while the backend is removed
	held, err := reg.Select("c1", "")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	if err := reg.Remove("c1", "b1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if held.GetStatus() != backend.Closing {
		t.Fatalf("status = %v want Closing", held.GetStatus())
	}
	if log.count(backend.EventRemovedBackendHasNoConnections) != 0 {
		t.Fatal("removal event must wait for the last connection")
	}

	// subsequent requests see no backend
	if _, err := reg.Select("c1", ""); err == nil {
		t.Fatal("Select must fail after removal")
	}

	// last release closes it and fires the removal event exactly once
	reg.Release(held)
	if held.GetStatus() != backend.Closed {
		t.Fatalf("status = %v want Closed", held.GetStatus())
	}
	if n := log.count(backend.EventRemovedBackendHasNoConnections); n != 1 {
		t.Fatalf("removal event fired %d times, want 1", n)
	}

	// another release cannot fire it again
	reg.Release(held)
	if n := log.count(backend.EventRemovedBackendHasNoConnections); n != 1 {
		t.Fatalf("removal event fired %d times after double release, want 1", n)
	}
}

func TestRemoveIdleBackendClosesImmediately(t *testing.T) {
	log := &eventLog{}
	reg := newTestRegistry(t, log)

	b := backend.New("c1", "b1", "127.0.0.1:9000")
	if err := reg.Add(b); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := reg.Remove("c1", "b1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if b.GetStatus() != backend.Closed {
		t.Fatalf("status = %v want Closed", b.GetStatus())
	}
	if n := log.count(backend.EventRemovedBackendHasNoConnections); n != 1 {
		t.Fatalf("removal event fired %d times, want 1", n)
	}
}

func TestFailureAndRecoveryEvents(t *testing.T) {
	log := &eventLog{}
	reg := newTestRegistry(t, log)

	b := backend.New("c1", "b1", "127.0.0.1:9000")
	if err := reg.Add(b); err != nil {
		t.Fatalf("Add: %v", err)
	}

	reg.MarkFailure(b)
	if log.count(backend.EventBackendDown) != 1 {
		t.Fatalf("backend-down events: %d want 1", log.count(backend.EventBackendDown))
	}
	if b.Failures() != 1 {
		t.Fatalf("failures = %d want 1", b.Failures())
	}

	// further failures do not repeat the event
	reg.MarkFailure(b)
	if log.count(backend.EventBackendDown) != 1 {
		t.Fatalf("backend-down repeated: %d", log.count(backend.EventBackendDown))
	}

	reg.MarkSuccess(b, 10*time.Millisecond)
	if log.count(backend.EventBackendUp) != 1 {
		t.Fatalf("backend-up events: %d want 1", log.count(backend.EventBackendUp))
	}
	if b.Failures() != 0 {
		t.Fatalf("failures after success = %d want 0", b.Failures())
	}
}

func TestClosedBackendNeverSelected(t *testing.T) {
	log := &eventLog{}
	reg := newTestRegistry(t, log)

	b1 := backend.New("c1", "b1", "127.0.0.1:9000")
	b2 := backend.New("c1", "b2", "127.0.0.1:9001")
	for _, b := range []*backend.Backend{b1, b2} {
		if err := reg.Add(b); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	if err := reg.Remove("c1", "b1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	for i := 0; i < 10; i++ {
		got, err := reg.Select("c1", "")
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		if got.BackendID == "b1" {
			t.Fatal("closed backend was selected")
		}
		reg.Release(got)
	}
}
