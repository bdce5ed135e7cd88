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

package fileDescriptor_test

import (
	"testing"

	fdlimit "github.com/nabbar/proxycore/ioutils/fileDescriptor"
)

func TestQueryDoesNotModify(t *testing.T) {
	cur, max, err := fdlimit.SystemFileDescriptor(0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if cur <= 0 || max < cur {
		t.Fatalf("implausible limits: cur=%d max=%d", cur, max)
	}

	again, _, err := fdlimit.SystemFileDescriptor(0)
	if err != nil {
		t.Fatalf("second query: %v", err)
	}
	if again != cur {
		t.Fatalf("query changed the limit: %d -> %d", cur, again)
	}
}

func TestNeverLowersAndCapsAtHard(t *testing.T) {
	cur, max, err := fdlimit.SystemFileDescriptor(0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	// asking for less than current must be a no-op
	got, _, err := fdlimit.SystemFileDescriptor(cur - 1)
	if err != nil {
		t.Fatalf("lower request: %v", err)
	}
	if got != cur {
		t.Fatalf("limit lowered: %d -> %d", cur, got)
	}

	// asking beyond the hard limit clamps to it (raising may need privileges, so
	// only the clamp is asserted when the call succeeds)
	got, newMax, err := fdlimit.SystemFileDescriptor(max + 1024)
	if err == nil && got > newMax {
		t.Fatalf("soft %d exceeds hard %d", got, newMax)
	}
}
