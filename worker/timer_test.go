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
	"testing"
	"time"
)

func TestTimerHeapOrderAndExpire(t *testing.T) {
	h := newTimerHeap()
	base := time.Unix(1000, 0)

	h.Arm(1, 10, timerFront, base.Add(300*time.Millisecond))
	h.Arm(2, 20, timerFront, base.Add(100*time.Millisecond))
	h.Arm(3, 30, timerConnect, base.Add(200*time.Millisecond))

	if d := h.Next(base, time.Second); d != 100*time.Millisecond {
		t.Fatalf("Next = %v", d)
	}

	fired := h.Expire(base.Add(250 * time.Millisecond))
	if len(fired) != 2 {
		t.Fatalf("fired %d timers, want 2", len(fired))
	}
	if fired[0].sessionID != 2 || fired[1].sessionID != 3 {
		t.Fatalf("firing order: %v %v", fired[0].sessionID, fired[1].sessionID)
	}

	fired = h.Expire(base.Add(time.Second))
	if len(fired) != 1 || fired[0].sessionID != 1 {
		t.Fatalf("final firing: %+v", fired)
	}
}

func TestTimerRearmReplacesSameKind(t *testing.T) {
	h := newTimerHeap()
	base := time.Unix(1000, 0)

	h.Arm(1, 10, timerFront, base.Add(100*time.Millisecond))
	h.Arm(1, 10, timerFront, base.Add(500*time.Millisecond))

	fired := h.Expire(base.Add(200 * time.Millisecond))
	if len(fired) != 0 {
		t.Fatalf("replaced timer fired: %+v", fired)
	}

	fired = h.Expire(base.Add(600 * time.Millisecond))
	if len(fired) != 1 {
		t.Fatalf("rearmed timer did not fire: %+v", fired)
	}
}

func TestTimerCancelSession(t *testing.T) {
	h := newTimerHeap()
	base := time.Unix(1000, 0)

	h.Arm(1, 10, timerFront, base.Add(100*time.Millisecond))
	h.Arm(1, 11, timerConnect, base.Add(150*time.Millisecond))
	h.Arm(2, 20, timerFront, base.Add(120*time.Millisecond))

	h.CancelSession(1)

	fired := h.Expire(base.Add(time.Second))
	if len(fired) != 1 || fired[0].sessionID != 2 {
		t.Fatalf("cancelled timers fired: %+v", fired)
	}

	// cancelled heads do not stall the next-deadline computation
	if d := h.Next(base, time.Second); d != time.Second {
		t.Fatalf("Next after drain = %v", d)
	}
}
