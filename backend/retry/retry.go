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

// Package retry implements per-backend connect retry as an exponential backoff with
// saturation: each consecutive failure doubles the wait before the next attempt, up
// to a cap, and a success resets the policy. Each backend owns one Policy; sessions
// never hold retry state themselves.
package retry

import (
	"sync"
	"time"
)

// Action is the answer to "may we attempt a connect right now".
type Action uint8

const (
	// Okay means attempt immediately.
	Okay Action = iota
	// Wait means back off; Policy.WaitRemaining gives the remaining delay.
	Wait
	// GiveUp means the failure budget is exhausted; attempts reopen after OnSuccess, or
	// after Probe, which the health prober also runs against GiveUp backends.
	GiveUp
)

func (a Action) String() string {
	switch a {
	case Okay:
		return "okay"
	case Wait:
		return "wait"
	case GiveUp:
		return "give up"
	default:
		return "unknown"
	}
}

const (
	// DefaultMaxTries bounds consecutive failed attempts before GiveUp.
	DefaultMaxTries = 6

	// DefaultBaseWait is the backoff after the first failure; it doubles per failure.
	DefaultBaseWait = 100 * time.Millisecond

	// DefaultMaxWait saturates the doubling.
	DefaultMaxWait = 10 * time.Second
)

// Policy is the exponential-backoff state machine. Safe for the worker goroutine plus
// the health prober's ticker goroutine.
type Policy struct {
	mu sync.Mutex

	maxTries int
	baseWait time.Duration
	maxWait  time.Duration

	failures    int
	nextAttempt time.Time

	now func() time.Time
}

func NewPolicy() *Policy {
	return NewPolicyWithClock(DefaultMaxTries, DefaultBaseWait, DefaultMaxWait, time.Now)
}

// NewPolicyWithClock is the test constructor.
func NewPolicyWithClock(maxTries int, baseWait, maxWait time.Duration, now func() time.Time) *Policy {
	if maxTries <= 0 {
		maxTries = DefaultMaxTries
	}
	if baseWait <= 0 {
		baseWait = DefaultBaseWait
	}
	if maxWait < baseWait {
		maxWait = DefaultMaxWait
	}

	return &Policy{
		maxTries: maxTries,
		baseWait: baseWait,
		maxWait:  maxWait,
		now:      now,
	}
}

// CanTry reports whether a connect attempt is allowed now.
func (p *Policy) CanTry() Action {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.failures == 0:
		return Okay
	case p.failures >= p.maxTries:
		return GiveUp
	case p.now().Before(p.nextAttempt):
		return Wait
	default:
		return Okay
	}
}

// WaitRemaining returns how long until the next attempt is allowed; zero when an
// attempt is allowed now.
func (p *Policy) WaitRemaining() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failures == 0 || p.failures >= p.maxTries {
		return 0
	}

	if d := p.nextAttempt.Sub(p.now()); d > 0 {
		return d
	}

	return 0
}

// OnFailure records a failed connect: the wait doubles per consecutive failure,
// saturating at the cap.
func (p *Policy) OnFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failures++

	wait := p.baseWait << uint(p.failures-1)
	if wait > p.maxWait || wait <= 0 {
		wait = p.maxWait
	}

	p.nextAttempt = p.now().Add(wait)
}

// OnSuccess resets the policy after a fully successful request. A mere successful
// probe should not call this; use Probe instead so the failure count survives until
// real traffic completes.
func (p *Policy) OnSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failures = 0
	p.nextAttempt = time.Time{}
}

// Probe clears the wait gate without resetting the failure count, letting the next
// selection attempt a connect right away after a successful health probe.
func (p *Policy) Probe() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failures >= p.maxTries {
		p.failures = p.maxTries - 1
	}

	p.nextAttempt = time.Time{}
}

// Failures returns the consecutive-failure count since the last reset.
func (p *Policy) Failures() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.failures
}
