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

package session

// StateResult is what a protocol sub-machine hands back to the session shell after
// one readiness or timeout step.
type StateResult uint8

const (
	ResultContinue StateResult = iota
	ResultUpgrade
	ResultConnectBackend
	ResultCloseBackend
	ResultCloseSession
)

func (r StateResult) String() string {
	switch r {
	case ResultContinue:
		return "continue"
	case ResultUpgrade:
		return "upgrade"
	case ResultConnectBackend:
		return "connect-backend"
	case ResultCloseBackend:
		return "close-backend"
	case ResultCloseSession:
		return "close-session"
	default:
		return "unknown"
	}
}

// SessionResult is the session shell's answer to the worker loop: keep the session,
// or tear it down. Upgrades are resolved inside the shell and surface as Continue.
type SessionResult uint8

const (
	SessionContinue SessionResult = iota
	SessionClose
)

func (r SessionResult) String() string {
	switch r {
	case SessionContinue:
		return "continue"
	case SessionClose:
		return "close"
	default:
		return "unknown"
	}
}

// BackendAction qualifies how the next backend socket is obtained.
type BackendAction uint8

const (
	// BackendNew dials a fresh connection.
	BackendNew BackendAction = iota
	// BackendReuse takes a pooled keep-alive connection to the same backend.
	BackendReuse
	// BackendReplace abandons the current backend socket and dials another backend.
	BackendReplace
)

func (a BackendAction) String() string {
	switch a {
	case BackendNew:
		return "new"
	case BackendReuse:
		return "reuse"
	case BackendReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Marker tags each protocol variant; FailedUpgrade keeps the marker of the last
// valid variant for diagnostics.
type Marker uint8

const (
	MarkerExpect Marker = iota
	MarkerTCP
	MarkerHTTPRequest
	MarkerHTTPResponse
	MarkerHTTPKeepAlive
	MarkerWebSocket
	MarkerTLSHandshake
	MarkerHTTPS
	MarkerFailedUpgrade
)

func (m Marker) String() string {
	switch m {
	case MarkerExpect:
		return "expect"
	case MarkerTCP:
		return "tcp"
	case MarkerHTTPRequest:
		return "http-request"
	case MarkerHTTPResponse:
		return "http-response"
	case MarkerHTTPKeepAlive:
		return "http-keepalive"
	case MarkerWebSocket:
		return "websocket"
	case MarkerTLSHandshake:
		return "tls-handshake"
	case MarkerHTTPS:
		return "https"
	case MarkerFailedUpgrade:
		return "failed-upgrade"
	default:
		return "unknown"
	}
}
