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

package retry_test

import (
	"testing"
	"time"

	"github.com/nabbar/proxycore/backend/retry"
)

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time     { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestPolicy(clk *fakeClock) *retry.Policy {
	return retry.NewPolicyWithClock(6, 100*time.Millisecond, 10*time.Second, clk.now)
}

func TestFreshPolicyIsOkay(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	p := newTestPolicy(clk)

	if got := p.CanTry(); got != retry.Okay {
		t.Fatalf("fresh policy: got %v want Okay", got)
	}
	if p.Failures() != 0 {
		t.Fatalf("fresh policy: failures = %d", p.Failures())
	}
}

func TestThreeFailuresWaitThenProbe(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	p := newTestPolicy(clk)

	for i := 0; i < 3; i++ {
		p.OnFailure()
	}

	if p.Failures() != 3 {
		t.Fatalf("failures = %d want 3", p.Failures())
	}
	if got := p.CanTry(); got != retry.Wait {
		t.Fatalf("after 3 failures: got %v want Wait", got)
	}

	// the third failure backs off base<<2 = 400ms
	clk.advance(400 * time.Millisecond)
	if got := p.CanTry(); got != retry.Okay {
		t.Fatalf("after wait elapsed: got %v want Okay", got)
	}

	// a successful probe opens the gate but does not reset the failure count; only
	// a fully successful request does
	p.OnFailure()
	p.Probe()
	if got := p.CanTry(); got != retry.Okay {
		t.Fatalf("after probe: got %v want Okay", got)
	}
	if p.Failures() == 0 {
		t.Fatal("probe must not reset the failure count")
	}

	p.OnSuccess()
	if p.Failures() != 0 {
		t.Fatalf("success must reset failures, got %d", p.Failures())
	}
}

func TestGiveUpAfterMaxTries(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	p := newTestPolicy(clk)

	for i := 0; i < 6; i++ {
		p.OnFailure()
	}

	if got := p.CanTry(); got != retry.GiveUp {
		t.Fatalf("after max tries: got %v want GiveUp", got)
	}

	// time passing does not undo GiveUp
	clk.advance(time.Hour)
	if got := p.CanTry(); got != retry.GiveUp {
		t.Fatalf("GiveUp must persist: got %v", got)
	}

	// a probe pulls it back to one-below-max so a single attempt is allowed
	p.Probe()
	if got := p.CanTry(); got != retry.Okay {
		t.Fatalf("after probe from GiveUp: got %v want Okay", got)
	}
}

func TestBackoffDoublesAndSaturates(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	p := retry.NewPolicyWithClock(20, 100*time.Millisecond, time.Second, clk.now)

	var prev time.Duration
	for i := 0; i < 8; i++ {
		p.OnFailure()

		wait := p.WaitRemaining()
		if wait > time.Second {
			t.Fatalf("wait %v exceeds saturation cap", wait)
		}
		if wait < prev {
			t.Fatalf("wait shrank before the cap: %v after %v", wait, prev)
		}
		prev = wait
	}

	if prev != time.Second {
		t.Fatalf("expected saturation at 1s, got %v", prev)
	}
}
