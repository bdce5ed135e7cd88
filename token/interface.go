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

// Package token maps opaque, monotonically issued tokens to session handles and mirrors
// the current/desired I/O interest of each token's socket via a readiness bitset pair.
//
// The hot path (insert/remove/get from the worker's event-loop goroutine) is lock-free:
// the worker is strictly single-threaded, so Registry needs no internal mutex there.
// Insert also records each session's latest token in a typed atomic map, which
// RemoveSession clears; the package exposes no reader for that map.
package token

import "github.com/bits-and-blooms/bitset"

// Token is an opaque handle into the Registry slab. Zero is never issued.
type Token uint64

// SessionHandle is whatever the owner (package session) registers per token: the
// registry does not interpret it beyond carrying it and deregistering it on removal.
type SessionHandle interface {
	// SessionID identifies the owning session so RemoveSession can find every token
	// a session owns, regardless of which token triggered the removal.
	SessionID() uint64
}

// Readiness holds the "what the kernel reported" and "what we want" bitset pair for
// one token. Actionable readiness is the intersection of the two.
type Readiness struct {
	event    *bitset.BitSet
	interest *bitset.BitSet
}

// Event bit positions. A small fixed set covers the readiness concerns the session
// state machine cares about; the bitset itself is not bounded to this size.
const (
	EventReadable uint = iota
	EventWritable
	EventError
	EventHangup
)

func NewReadiness() Readiness {
	return Readiness{
		event:    bitset.New(4),
		interest: bitset.New(4),
	}
}

func (r *Readiness) SetEvent(bit uint, v bool) {
	if v {
		r.event.Set(bit)
	} else {
		r.event.Clear(bit)
	}
}

func (r *Readiness) SetInterest(bit uint, v bool) {
	if v {
		r.interest.Set(bit)
	} else {
		r.interest.Clear(bit)
	}
}

func (r *Readiness) Interest(bit uint) bool {
	return r.interest.Test(bit)
}

// Actionable returns event ∧ interest: the bits the owner should act on this tick.
func (r *Readiness) Actionable() *bitset.BitSet {
	return r.event.Intersection(r.interest)
}

// HasActionable reports whether Actionable() is non-empty.
func (r *Readiness) HasActionable() bool {
	return r.event.IntersectionCardinality(r.interest) > 0
}

// Reset clears both bitsets, as required on socket replacement.
func (r *Readiness) Reset() {
	r.event.ClearAll()
	r.interest.ClearAll()
}
