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

import "github.com/nabbar/proxycore/errors"

const (
	ErrorIO errors.CodeError = iota + errors.MinPkgWorker
	ErrorTooManySessions
	ErrorWouldBlock
	ErrorRegister
	ErrorWrongSocketAddress
	ErrorBufferCapacityReached
	ErrorPollerCreate
	ErrorListenerBind
	ErrorListenerUnknown
	ErrorConnect
)

// Worker exit codes.
const (
	ExitOK    = 0
	ExitInit  = 1
	ExitPanic = 2
)

var isCodeError = false

func IsCodeError() bool {
	return isCodeError
}

func init() {
	isCodeError = errors.ExistInMapMessage(ErrorIO)
	errors.RegisterIdFctMessage(ErrorIO, getMessage)
}

func getMessage(code errors.CodeError) (message string) {
	switch code {
	case errors.UnknownError:
		return ""
	case ErrorIO:
		return "io error"
	case ErrorTooManySessions:
		return "too many sessions"
	case ErrorWouldBlock:
		return "operation would block"
	case ErrorRegister:
		return "cannot register descriptor"
	case ErrorWrongSocketAddress:
		return "wrong socket address"
	case ErrorBufferCapacityReached:
		return "buffer pool capacity reached"
	case ErrorPollerCreate:
		return "cannot create poller"
	case ErrorListenerBind:
		return "cannot bind listener"
	case ErrorListenerUnknown:
		return "listener is not registered"
	case ErrorConnect:
		return "cannot connect backend socket"
	}

	return ""
}
