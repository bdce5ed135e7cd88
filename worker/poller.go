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
	"time"

	"github.com/nabbar/proxycore/errors"
	"github.com/nabbar/proxycore/token"
)

// PollEvent is one kernel readiness notification resolved to its token.
type PollEvent struct {
	Token    token.Token
	Readable bool
	Writable bool
	Error    bool
	Hangup   bool
}

// Poller is the single suspension point of the worker: every iteration blocks here
// and nowhere else. Build tags pick the implementation NewPoller returns: epoll on
// linux, poll(2) on other unix platforms.
type Poller interface {
	// Register subscribes a descriptor under a token.
	Register(fd int, tok token.Token, read, write bool) errors.Error

	// Modify updates the interest of a registered descriptor.
	Modify(fd int, tok token.Token, read, write bool) errors.Error

	// Unregister drops a descriptor.
	Unregister(fd int) errors.Error

	// Wait blocks up to timeout and returns the ready set.
	Wait(timeout time.Duration) ([]PollEvent, errors.Error)

	// Close releases the poller.
	Close() error
}
