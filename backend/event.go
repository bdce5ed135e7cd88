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

// EventKind enumerates the registry's health and lifecycle notifications surfaced to
// the admin plane.
type EventKind uint8

const (
	EventBackendDown EventKind = iota
	EventBackendUp
	EventNoAvailableBackends
	EventRemovedBackendHasNoConnections
	EventClusterAdded
	EventClusterRemoved
)

func (k EventKind) String() string {
	switch k {
	case EventBackendDown:
		return "backend-down"
	case EventBackendUp:
		return "backend-up"
	case EventNoAvailableBackends:
		return "no-available-backends"
	case EventRemovedBackendHasNoConnections:
		return "removed-backend-has-no-connections"
	case EventClusterAdded:
		return "cluster-added"
	case EventClusterRemoved:
		return "cluster-removed"
	default:
		return "unknown"
	}
}

// Event is one registry notification. BackendID is empty for cluster-scoped kinds.
type Event struct {
	Kind      EventKind
	ClusterID string
	BackendID string
}

// FuncEvent receives registry events. The callback runs on the worker goroutine and
// must not block; the admin plane buffers and fans out from there.
type FuncEvent func(e Event)
