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

// Package atomic wraps sync/atomic and sync.Map behind typed generics, so the data
// the worker goroutine publishes for the admin plane (token snapshots, live
// figures) crosses goroutines without a lock appearing in business logic.
package atomic

import (
	"sync"
	"sync/atomic"
)

// Value is a typed atomic single value. The zero Value loads the type's zero value.
type Value[T any] struct {
	v atomic.Value
}

func NewValue[T any]() *Value[T] {
	return &Value[T]{}
}

// Load returns the stored value, or the zero value when nothing was stored yet.
func (v *Value[T]) Load() T {
	if x, ok := v.v.Load().(T); ok {
		return x
	}

	var zero T
	return zero
}

// Store replaces the value.
func (v *Value[T]) Store(x T) {
	v.v.Store(x)
}

// Swap stores x and returns the previous value.
func (v *Value[T]) Swap(x T) T {
	if old, ok := v.v.Swap(x).(T); ok {
		return old
	}

	var zero T
	return zero
}

// MapTyped is a typed concurrent map over sync.Map.
type MapTyped[K comparable, V any] struct {
	m sync.Map
}

func NewMapTyped[K comparable, V any]() *MapTyped[K, V] {
	return &MapTyped[K, V]{}
}

// Load returns the value for a key; ok is false when absent.
func (m *MapTyped[K, V]) Load(key K) (value V, ok bool) {
	x, ok := m.m.Load(key)
	if !ok {
		var zero V
		return zero, false
	}

	return x.(V), true
}

// Store sets the value for a key.
func (m *MapTyped[K, V]) Store(key K, value V) {
	m.m.Store(key, value)
}

// Delete removes a key.
func (m *MapTyped[K, V]) Delete(key K) {
	m.m.Delete(key)
}

// Walk visits every entry until the callback returns false.
func (m *MapTyped[K, V]) Walk(fct func(key K, value V) bool) {
	m.m.Range(func(k, v any) bool {
		return fct(k.(K), v.(V))
	})
}

// Len counts the entries; a full walk, meant for introspection, not hot paths.
func (m *MapTyped[K, V]) Len() int {
	n := 0

	m.m.Range(func(any, any) bool {
		n++
		return true
	})

	return n
}
