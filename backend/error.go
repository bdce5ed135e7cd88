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

package backend

import "github.com/nabbar/proxycore/errors"

const (
	ErrorClusterUnknown errors.CodeError = iota + errors.MinPkgBackend
	ErrorClusterExists
	ErrorBackendUnknown
	ErrorBackendExists
	ErrorBackendClosed
	ErrorNoBackendAvailable
)

var isCodeError = false

func IsCodeError() bool {
	return isCodeError
}

func init() {
	isCodeError = errors.ExistInMapMessage(ErrorClusterUnknown)
	errors.RegisterIdFctMessage(ErrorClusterUnknown, getMessage)
}

func getMessage(code errors.CodeError) (message string) {
	switch code {
	case errors.UnknownError:
		return ""
	case ErrorClusterUnknown:
		return "cluster is not registered"
	case ErrorClusterExists:
		return "cluster is already registered"
	case ErrorBackendUnknown:
		return "backend is not registered"
	case ErrorBackendExists:
		return "backend is already registered"
	case ErrorBackendClosed:
		return "backend is closed"
	case ErrorNoBackendAvailable:
		return "no backend available for cluster"
	}

	return ""
}
