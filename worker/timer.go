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

package worker

import (
	"container/heap"
	"time"

	"github.com/nabbar/proxycore/token"
)

// timerKind distinguishes the two timers every session owns.
type timerKind uint8

const (
	timerFront timerKind = iota
	timerConnect
)

type timerEntry struct {
	at        time.Time
	sessionID uint64
	tok       token.Token
	kind      timerKind
	dead      bool
	index     int
}

// timerHeap schedules session timers; cancellation marks entries dead instead of
// re-heapifying, expiry skips the corpses.
type timerHeap struct {
	entries []*timerEntry
	bySess  map[uint64][]*timerEntry
}

func newTimerHeap() *timerHeap {
	return &timerHeap{bySess: make(map[uint64][]*timerEntry)}
}

func (h *timerHeap) Len() int { return len(h.entries) }

func (h *timerHeap) Less(i, j int) bool { return h.entries[i].at.Before(h.entries[j].at) }

func (h *timerHeap) Swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
	h.entries[i].index = i
	h.entries[j].index = j
}

func (h *timerHeap) Push(x interface{}) {
	e := x.(*timerEntry)
	e.index = len(h.entries)
	h.entries = append(h.entries, e)
}

func (h *timerHeap) Pop() interface{} {
	old := h.entries
	n := len(old)
	e := old[n-1]
	h.entries = old[:n-1]

	return e
}

// Arm schedules a timer, replacing any live timer of the same kind on the session.
func (h *timerHeap) Arm(sessionID uint64, tok token.Token, kind timerKind, at time.Time) {
	for _, e := range h.bySess[sessionID] {
		if e.kind == kind && !e.dead {
			e.dead = true
		}
	}

	e := &timerEntry{at: at, sessionID: sessionID, tok: tok, kind: kind}
	heap.Push(h, e)
	h.bySess[sessionID] = append(h.bySess[sessionID], e)
}

// CancelSession kills every timer of a session.
func (h *timerHeap) CancelSession(sessionID uint64) {
	for _, e := range h.bySess[sessionID] {
		e.dead = true
	}

	delete(h.bySess, sessionID)
}

// Next returns the duration until the nearest live timer, capped to max.
func (h *timerHeap) Next(now time.Time, max time.Duration) time.Duration {
	h.gc()

	if len(h.entries) == 0 {
		return max
	}

	d := h.entries[0].at.Sub(now)
	if d < 0 {
		return 0
	}
	if d > max {
		return max
	}

	return d
}

// Expire pops every live timer due at or before now.
func (h *timerHeap) Expire(now time.Time) []*timerEntry {
	var fired []*timerEntry

	for len(h.entries) > 0 {
		e := h.entries[0]

		if e.dead {
			heap.Pop(h)
			continue
		}

		if e.at.After(now) {
			break
		}

		heap.Pop(h)
		e.dead = true
		fired = append(fired, e)
	}

	return fired
}

// gc drops dead heads so Next sees a live deadline.
func (h *timerHeap) gc() {
	for len(h.entries) > 0 && h.entries[0].dead {
		heap.Pop(h)
	}
}
