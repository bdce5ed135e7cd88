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

//go:build !windows

// Package fileDescriptor reads and raises the process's open-file limit. A proxy
// worker's session capacity is bounded by descriptors (two per proxied session,
// plus listeners and timers), so the worker raises the soft limit toward the hard
// limit before sizing its slab and buffer pool.
package fileDescriptor

import (
	"golang.org/x/sys/unix"
)

// SystemFileDescriptor returns the current soft and hard descriptor limits, after
// raising the soft limit to newValue when that is higher. The hard limit is never
// exceeded and limits are never lowered; newValue <= 0 only queries.
func SystemFileDescriptor(newValue int) (current int, max int, err error) {
	var lim unix.Rlimit

	if err = unix.Getrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		return 0, 0, err
	}

	current, max = int(lim.Cur), int(lim.Max)

	if newValue <= current {
		return current, max, nil
	}

	want := uint64(newValue)
	if want > lim.Max {
		want = lim.Max
	}

	lim.Cur = want

	if err = unix.Setrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		// raising can need privileges; report the unchanged limits with the cause
		return current, max, err
	}

	if err = unix.Getrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		return 0, 0, err
	}

	return int(lim.Cur), int(lim.Max), nil
}
