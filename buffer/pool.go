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

// Package buffer implements a fixed-capacity pool of reusable byte buffers with a
// strict checkout/return discipline, so the session and worker packages never
// allocate on the data-plane hot path once the pool has warmed up.
package buffer

import (
	"sync"

	"github.com/nabbar/proxycore/errors"
)

// Buffer is a checked-out byte slice. Release must be called exactly once, by the
// owner that checked it out, before the underlying slot can be reused.
type Buffer struct {
	b    []byte
	pool *Pool
	slot int
}

// Bytes returns the writable/readable backing slice, reset to zero length on checkout.
func (buf *Buffer) Bytes() []byte {
	return buf.b
}

// SetLen adjusts the visible length of the buffer without reallocating, up to its
// fixed capacity.
func (buf *Buffer) SetLen(n int) {
	if n < 0 {
		n = 0
	} else if n > cap(buf.b) {
		n = cap(buf.b)
	}

	buf.b = buf.b[:n]
}

// Cap returns the buffer's fixed capacity (BufferSize).
func (buf *Buffer) Cap() int {
	return cap(buf.b)
}

// Pool is a fixed-capacity free-list: Checkout fails with ErrorCapacityReached when
// exhausted, never growing past MaxBuffers.
type Pool struct {
	mu sync.Mutex

	bufferSize int
	maxBuffers int

	free  []int
	slots [][]byte
	inUse int
}

func NewPool(bufferSize, maxBuffers int) *Pool {
	return &Pool{
		bufferSize: bufferSize,
		maxBuffers: maxBuffers,
		free:       make([]int, 0, maxBuffers),
		slots:      make([][]byte, 0, maxBuffers),
	}
}

// Checkout returns a buffer reset to zero length but not zeroed.
func (p *Pool) Checkout() (*Buffer, errors.Error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var slot int

	if n := len(p.free); n > 0 {
		slot = p.free[n-1]
		p.free = p.free[:n-1]
	} else if len(p.slots) < p.maxBuffers {
		slot = len(p.slots)
		p.slots = append(p.slots, make([]byte, 0, p.bufferSize))
	} else {
		return nil, ErrorCapacityReached.Error(nil)
	}

	p.inUse++

	return &Buffer{
		b:    p.slots[slot][:0],
		pool: p,
		slot: slot,
	}, nil
}

// Release returns a buffer to the free-list. Calling Release on a buffer from another
// pool, or twice on the same buffer, is reported rather than silently ignored.
func (p *Pool) Release(buf *Buffer) errors.Error {
	if buf == nil || buf.pool != p {
		return ErrorNotOwned.Error(nil)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.slots[buf.slot] = buf.b[:0]
	p.free = append(p.free, buf.slot)
	p.inUse--
	buf.pool = nil

	return nil
}

// InUse returns the number of currently checked-out buffers, for the accept loop's
// near-exhaustion check alongside the session slab.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.inUse
}

// Capacity returns max_buffers.
func (p *Pool) Capacity() int {
	return p.maxBuffers
}

// NearExhaustion reports whether fewer than the given number of buffers remain free.
func (p *Pool) NearExhaustion(headroom int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.maxBuffers-p.inUse < headroom
}
