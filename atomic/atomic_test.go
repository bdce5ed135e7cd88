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

package atomic_test

import (
	"sync"
	"testing"

	"github.com/nabbar/proxycore/atomic"
)

func TestValueZeroAndSwap(t *testing.T) {
	v := atomic.NewValue[int]()

	if got := v.Load(); got != 0 {
		t.Fatalf("zero load = %d", got)
	}

	v.Store(7)
	if old := v.Swap(9); old != 7 {
		t.Fatalf("swap returned %d", old)
	}
	if got := v.Load(); got != 9 {
		t.Fatalf("load after swap = %d", got)
	}
}

func TestMapTypedBasics(t *testing.T) {
	m := atomic.NewMapTyped[uint64, string]()

	if _, ok := m.Load(1); ok {
		t.Fatal("empty map must miss")
	}

	m.Store(1, "front")
	m.Store(2, "back")

	if v, ok := m.Load(2); !ok || v != "back" {
		t.Fatalf("load = %q ok=%v", v, ok)
	}
	if m.Len() != 2 {
		t.Fatalf("len = %d", m.Len())
	}

	m.Delete(1)
	if _, ok := m.Load(1); ok {
		t.Fatal("deleted key still present")
	}

	seen := 0
	m.Walk(func(k uint64, v string) bool {
		seen++
		return true
	})
	if seen != 1 {
		t.Fatalf("walk visited %d", seen)
	}
}

func TestMapTypedConcurrent(t *testing.T) {
	m := atomic.NewMapTyped[int, int]()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				m.Store(base*100+i, i)
			}
		}(g)
	}
	wg.Wait()

	if m.Len() != 800 {
		t.Fatalf("len = %d want 800", m.Len())
	}
}
