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

package admin

import "github.com/nabbar/proxycore/errors"

const (
	ErrorFrameTooLarge errors.CodeError = iota + errors.MinPkgAdmin
	ErrorFrameRead
	ErrorFrameWrite
	ErrorFrameDecode
	ErrorUnknownRequest
	ErrorBadPayload
	ErrorStateSave
	ErrorStateLoad
	ErrorStateBackend
	ErrorListenerUnknown
)

var isCodeError = false

func IsCodeError() bool {
	return isCodeError
}

func init() {
	isCodeError = errors.ExistInMapMessage(ErrorFrameTooLarge)
	errors.RegisterIdFctMessage(ErrorFrameTooLarge, getMessage)
}

func getMessage(code errors.CodeError) (message string) {
	switch code {
	case errors.UnknownError:
		return ""
	case ErrorFrameTooLarge:
		return "admin frame exceeds the maximum size"
	case ErrorFrameRead:
		return "cannot read admin frame"
	case ErrorFrameWrite:
		return "cannot write admin frame"
	case ErrorFrameDecode:
		return "cannot decode admin frame"
	case ErrorUnknownRequest:
		return "unknown admin request type"
	case ErrorBadPayload:
		return "invalid admin request payload"
	case ErrorStateSave:
		return "cannot save runtime state"
	case ErrorStateLoad:
		return "cannot load runtime state"
	case ErrorStateBackend:
		return "unknown state storage backend"
	case ErrorListenerUnknown:
		return "listener is not registered"
	}

	return ""
}
