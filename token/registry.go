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

package token

import (
	"github.com/nabbar/proxycore/atomic"
)

// maxTokensPerSession bounds the frontend/backend/timer tokens a session may own, per
// the data model's "at most frontend, backend, timer" description.
const maxTokensPerSession = 3

type slot struct {
	used      bool
	handle    SessionHandle
	readiness Readiness
}

// Registry is a dense, index-based slab: insert issues a token bound to a session
// handle, plus the owned-token bookkeeping that lets RemoveSession free every token
// a session holds.
type Registry struct {
	slab []slot
	free []Token

	owned map[uint64][]Token

	snapshot *atomic.MapTyped[uint64, Token]
}

func NewRegistry(capacity int) *Registry {
	return &Registry{
		slab:     make([]slot, 0, capacity),
		free:     make([]Token, 0, capacity),
		owned:    make(map[uint64][]Token),
		snapshot: atomic.NewMapTyped[uint64, Token](),
	}
}

// Insert issues a new token bound to the given session handle and returns it. The
// returned token is 1-based; 0 is never a valid token.
func (r *Registry) Insert(h SessionHandle) Token {
	var idx int

	if n := len(r.free); n > 0 {
		t := r.free[n-1]
		r.free = r.free[:n-1]
		idx = int(t) - 1
		r.slab[idx] = slot{used: true, handle: h, readiness: NewReadiness()}
	} else {
		idx = len(r.slab)
		r.slab = append(r.slab, slot{used: true, handle: h, readiness: NewReadiness()})
	}

	tok := Token(idx + 1)

	sid := h.SessionID()
	if owned := r.owned[sid]; len(owned) < maxTokensPerSession {
		r.owned[sid] = append(owned, tok)
	}

	r.snapshot.Store(sid, tok)

	return tok
}

// Get resolves a token to its session handle. ok is false for an unknown or freed token.
func (r *Registry) Get(t Token) (h SessionHandle, ok bool) {
	idx := int(t) - 1
	if idx < 0 || idx >= len(r.slab) || !r.slab[idx].used {
		return nil, false
	}

	return r.slab[idx].handle, true
}

// Readiness returns a pointer to the token's readiness pair for in-place mutation by
// the event loop.
func (r *Registry) Readiness(t Token) (*Readiness, bool) {
	idx := int(t) - 1
	if idx < 0 || idx >= len(r.slab) || !r.slab[idx].used {
		return nil, false
	}

	return &r.slab[idx].readiness, true
}

// Remove frees a single token. It does not touch any other token the same session owns;
// callers closing a whole session should use RemoveSession.
func (r *Registry) Remove(t Token) bool {
	idx := int(t) - 1
	if idx < 0 || idx >= len(r.slab) || !r.slab[idx].used {
		return false
	}

	sid := r.slab[idx].handle.SessionID()
	r.slab[idx] = slot{}
	r.free = append(r.free, t)
	r.dropOwned(sid, t)

	return true
}

// RemoveSession frees every token owned by the given session id, satisfying the
// invariant that no token remains registered after its session closes.
func (r *Registry) RemoveSession(sessionID uint64) int {
	owned, ok := r.owned[sessionID]
	if !ok {
		return 0
	}

	n := 0
	for _, t := range owned {
		idx := int(t) - 1
		if idx >= 0 && idx < len(r.slab) && r.slab[idx].used {
			r.slab[idx] = slot{}
			r.free = append(r.free, t)
			n++
		}
	}

	delete(r.owned, sessionID)
	r.snapshot.Delete(sessionID)

	return n
}

func (r *Registry) dropOwned(sessionID uint64, t Token) {
	owned := r.owned[sessionID]
	for i, o := range owned {
		if o == t {
			r.owned[sessionID] = append(owned[:i], owned[i+1:]...)
			break
		}
	}

	if len(r.owned[sessionID]) == 0 {
		delete(r.owned, sessionID)
	}
}

// Len returns the number of live tokens, for pool-exhaustion accounting alongside the
// buffer pool and session slab.
func (r *Registry) Len() int {
	return len(r.slab) - len(r.free)
}
