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

import (
	"bytes"
	"strings"

	"github.com/nabbar/proxycore/buffer"
	"github.com/nabbar/proxycore/route"
	"github.com/nabbar/proxycore/token"
)

// protoState is one variant of the session's protocol union. Ready drives the
// variant while readiness permits; Timeout reacts to a fired timer. A variant
// replaces itself in place via Session.swap and returns ResultUpgrade.
type protoState interface {
	Marker() Marker
	Ready(s *Session) StateResult
	Timeout(s *Session, tok token.Token) StateResult
	CancelTimeouts(s *Session)
	PrintState() string
}

// backendAware variants get notified once a pending backend connect completes.
type backendAware interface {
	BackendReady(s *Session)
}

// pendingRequest is what the connect path needs from the variant that asked for a
// backend.
type pendingRequest struct {
	clusterID  string
	stickyHint string
}

// requestCarrier exposes the pending request of connect-capable variants.
type requestCarrier interface {
	request() *pendingRequest
}

func currentRequest(st protoState) *pendingRequest {
	if c, ok := st.(requestCarrier); ok {
		return c.request()
	}

	return nil
}

// consume drops the first n bytes of a pooled buffer, shifting the tail down.
func consume(buf *buffer.Buffer, n int) {
	b := buf.Bytes()
	if n <= 0 || n > len(b) {
		if n >= len(b) {
			buf.SetLen(0)
		}
		return
	}

	copy(b, b[n:])
	buf.SetLen(len(b) - n)
}

/* ------------------------------------------------------------------------- */

// stateExpect waits for a PROXY protocol v1 preface, then upgrades to the listener's
// base protocol with the preface stripped.
type stateExpect struct{}

// proxyLineMax is the longest valid PROXY v1 line including CRLF.
const proxyLineMax = 107

func (st *stateExpect) Marker() Marker     { return MarkerExpect }
func (st *stateExpect) PrintState() string { return "Expect(proxy-preface)" }

func (st *stateExpect) Ready(s *Session) StateResult {
	_, hangup := s.readFront()

	data := s.inBuf.Bytes()
	i := bytes.Index(data, []byte("\r\n"))

	if i < 0 {
		if hangup || len(data) > proxyLineMax {
			return s.failUpgrade(ErrorProtocol.Error(nil))
		}

		return ResultContinue
	}

	line := string(data[:i])
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != "PROXY" {
		return s.failUpgrade(ErrorProtocol.Error(nil))
	}

	// "PROXY UNKNOWN" keeps the accepted peer address; TCP4/TCP6 carry the real one
	if len(fields) >= 6 && (fields[1] == "TCP4" || fields[1] == "TCP6") {
		s.clientIP = fields[2]
	}

	consume(s.inBuf, i+2)
	s.swap(s.bootstrapState())

	return ResultUpgrade
}

func (st *stateExpect) Timeout(s *Session, _ token.Token) StateResult {
	return ResultCloseSession
}

func (st *stateExpect) CancelTimeouts(*Session) {}

/* ------------------------------------------------------------------------- */

// stateTLSHandshake drives the front handshake through the external TLS primitive,
// then upgrades to HTTP over the secured socket.
type stateTLSHandshake struct{}

func (st *stateTLSHandshake) Marker() Marker     { return MarkerTLSHandshake }
func (st *stateTLSHandshake) PrintState() string { return "TlsHandshake" }

func (st *stateTLSHandshake) Ready(s *Session) StateResult {
	secured, done, err := s.deps.StartTLS(s, s.front)
	if err != nil {
		return s.failUpgrade(ErrorUpgradeFailed.Error(err))
	}

	if !done {
		return ResultContinue
	}

	// socket replacement resets the readiness pair
	s.front = secured
	s.FrontReadiness.Reset()
	s.FrontReadiness.SetInterest(token.EventReadable, true)

	s.swap(&stateHTTPS{inner: newStateHTTPRequest()})

	return ResultUpgrade
}

func (st *stateTLSHandshake) Timeout(s *Session, _ token.Token) StateResult {
	return ResultCloseSession
}

func (st *stateTLSHandshake) CancelTimeouts(*Session) {}

/* ------------------------------------------------------------------------- */

// stateHTTPS wraps the HTTP variants running over a secured front socket, keeping
// the TLS origin visible in the variant tag.
type stateHTTPS struct {
	inner protoState
}

func (st *stateHTTPS) Marker() Marker     { return MarkerHTTPS }
func (st *stateHTTPS) PrintState() string { return "Https(" + st.inner.PrintState() + ")" }

func (st *stateHTTPS) Ready(s *Session) StateResult {
	return st.inner.Ready(s)
}

func (st *stateHTTPS) Timeout(s *Session, tok token.Token) StateResult {
	return st.inner.Timeout(s, tok)
}

func (st *stateHTTPS) CancelTimeouts(s *Session) {
	st.inner.CancelTimeouts(s)
}

func (st *stateHTTPS) BackendReady(s *Session) {
	if b, ok := st.inner.(backendAware); ok {
		b.BackendReady(s)
	}
}

func (st *stateHTTPS) request() *pendingRequest {
	return currentRequest(st.inner)
}

/* ------------------------------------------------------------------------- */

// httpPhase sequences the request variant.
type httpPhase uint8

const (
	phaseReadHead httpPhase = iota
	phaseConnect
	phaseSend
)

// stateHTTPRequest accumulates and routes one request head, obtains a backend, and
// forwards the rewritten request.
type stateHTTPRequest struct {
	phase   httpPhase
	head    *RequestHead
	pending pendingRequest

	// wantSticky is set when the cluster pins clients; the response side injects
	// the cookie when the request carried none or a stale one.
	wantSticky bool

	toBack  []byte
	tracker *bodyTracker
	action  BackendAction
}

func newStateHTTPRequest() *stateHTTPRequest {
	return &stateHTTPRequest{}
}

func (st *stateHTTPRequest) Marker() Marker     { return MarkerHTTPRequest }
func (st *stateHTTPRequest) PrintState() string { return "HttpRequest" }

func (st *stateHTTPRequest) request() *pendingRequest {
	return &st.pending
}

func (st *stateHTTPRequest) Ready(s *Session) StateResult {
	switch st.phase {
	case phaseReadHead:
		return st.readHead(s)
	case phaseConnect:
		return ResultContinue
	default:
		return st.send(s)
	}
}

func (st *stateHTTPRequest) readHead(s *Session) StateResult {
	_, hangup := s.readFront()

	head, complete, err := ParseRequestHead(s.inBuf.Bytes())
	if err != nil {
		s.writeFrontRaw(simpleResponse(400, []byte("bad request")))
		return ResultCloseSession
	}

	if !complete {
		if hangup {
			return ResultCloseSession
		}
		return ResultContinue
	}

	st.head = head

	target, rerr := s.deps.Route(head.Host, head.URI, head.Method)
	if rerr != nil {
		s.writeFrontRaw(simpleResponse(404, s.deps.NotFound()))
		return ResultCloseSession
	}

	switch target.Kind {
	case route.TargetRedirectHTTPS:
		s.writeFrontRaw(redirectResponse(head))
		return ResultCloseSession
	case route.TargetFixed:
		s.writeFrontRaw(simpleResponse(target.Status, target.Body))
		return ResultCloseSession
	}

	if c, cerr := s.deps.Cluster(target.ClusterID); cerr == nil {
		if c.Options.HTTPSRedirect && s.Scheme() == "http" {
			s.writeFrontRaw(redirectResponse(head))
			return ResultCloseSession
		}
		st.wantSticky = c.Options.StickySession
	}

	st.pending = pendingRequest{clusterID: target.ClusterID, stickyHint: head.StickyID}
	st.phase = phaseConnect

	// pooled keep-alive connection to the same cluster short-circuits the connect
	if s.back != nil && s.backEnd != nil &&
		s.backEnd.ClusterID == target.ClusterID && s.backEnd.Eligible() {
		st.action = BackendReuse
		st.BackendReady(s)
		return st.send(s)
	}

	if s.back != nil {
		// previous pooled backend no longer fits: replace it
		st.action = BackendReplace
		s.closeBackend()
	}

	return ResultConnectBackend
}

// BackendReady runs when the backend socket is usable: rewrite the head and stage
// the bytes already read.
func (st *stateHTTPRequest) BackendReady(s *Session) {
	st.toBack = st.head.WriteRequest(s.clientIP, s.Scheme())
	st.tracker = newRequestTracker(st.head)

	body := s.inBuf.Bytes()[st.head.HeadLen:]
	if len(body) > 0 {
		st.tracker.Feed(body)
		st.toBack = append(st.toBack, body...)
	}

	consume(s.inBuf, len(s.inBuf.Bytes()))
	st.phase = phaseSend
	s.attempts = 0
}

func (st *stateHTTPRequest) send(s *Session) StateResult {
	if s.back == nil {
		return ResultContinue
	}

	rest, hangup := s.writeAll(s.back, st.toBack, &s.metrics.BackBytesOut)
	st.toBack = rest

	if hangup {
		if st.action == BackendReuse {
			// stale pooled connection: replace the backend and retry once
			s.closeBackend()
			st.action = BackendReplace
			st.phase = phaseConnect
			return ResultConnectBackend
		}

		s.writeFrontRaw(simpleResponse(503, []byte("backend write failed")))
		return ResultCloseSession
	}

	if len(st.toBack) > 0 {
		return ResultContinue
	}

	if !st.tracker.done {
		// keep pulling the request body from the front
		n, fhang := s.readFront()
		if n > 0 {
			body := s.inBuf.Bytes()
			st.tracker.Feed(body)
			st.toBack = append(st.toBack, body...)
			consume(s.inBuf, len(body))
			return st.send(s)
		}
		if fhang {
			return ResultCloseSession
		}
		return ResultContinue
	}

	s.swap(&stateHTTPResponse{
		req:        st.head,
		wantSticky: st.wantSticky,
	})

	return ResultUpgrade
}

func (st *stateHTTPRequest) Timeout(s *Session, _ token.Token) StateResult {
	return ResultCloseSession
}

func (st *stateHTTPRequest) CancelTimeouts(*Session) {}

/* ------------------------------------------------------------------------- */

// stateHTTPResponse streams the backend response to the client, injecting the
// sticky cookie when the cluster pins clients, and decides keep-alive vs close.
type stateHTTPResponse struct {
	req        *RequestHead
	wantSticky bool

	head    *ResponseHead
	toFront []byte
	tracker *bodyTracker
}

func (st *stateHTTPResponse) Marker() Marker     { return MarkerHTTPResponse }
func (st *stateHTTPResponse) PrintState() string { return "HttpResponse" }

func (st *stateHTTPResponse) Ready(s *Session) StateResult {
	if s.back == nil {
		return ResultCloseSession
	}

	_, hangup := s.readBack()

	if st.head == nil {
		head, complete, err := ParseResponseHead(s.outBuf.Bytes())
		if err != nil {
			s.writeFrontRaw(simpleResponse(503, []byte("invalid backend response")))
			return ResultCloseSession
		}

		if !complete {
			if hangup {
				s.writeFrontRaw(simpleResponse(503, []byte("backend closed early")))
				return ResultCloseSession
			}
			return ResultContinue
		}

		st.head = head
		st.tracker = newResponseTracker(head)

		sticky := ""
		if st.wantSticky && s.backEnd != nil && s.backEnd.Sticky != "" &&
			st.req.StickyID != s.backEnd.Sticky {
			sticky = s.backEnd.Sticky
		}

		st.toFront = st.head.WriteResponse(sticky, "")
		consume(s.outBuf, head.HeadLen)

		// a 101 switches the session to full-duplex forwarding
		if head.Status == 101 && st.req.UpgradeWebSocket {
			rest, fh := s.writeAll(s.front, st.toFront, &s.metrics.BytesOut)
			if fh {
				return ResultCloseSession
			}

			s.swap(&stateWebSocket{toFront: rest})
			return ResultUpgrade
		}
	}

	// stage freshly arrived body bytes
	if body := s.outBuf.Bytes(); len(body) > 0 {
		st.tracker.Feed(body)
		st.toFront = append(st.toFront, body...)
		consume(s.outBuf, len(body))
	}

	rest, fhang := s.writeAll(s.front, st.toFront, &s.metrics.BytesOut)
	st.toFront = rest
	if fhang {
		return ResultCloseSession
	}

	if len(st.toFront) > 0 {
		return ResultContinue
	}

	done := st.tracker.done
	if st.tracker.mode == bodyUntilClose && hangup {
		done = true
	}

	if !done {
		if hangup {
			// backend died mid-body with known framing
			return ResultCloseSession
		}
		return ResultContinue
	}

	// fully served
	now := s.deps.now()
	s.deps.MarkSuccess(s.backEnd, s.metrics.ResponseTime(now))

	if st.head.KeepAlive && st.req.KeepAlive && !hangup {
		s.swap(&stateHTTPKeepAlive{})
		return ResultUpgrade
	}

	return ResultCloseSession
}

func (st *stateHTTPResponse) Timeout(s *Session, _ token.Token) StateResult {
	return ResultCloseSession
}

func (st *stateHTTPResponse) CancelTimeouts(*Session) {}

/* ------------------------------------------------------------------------- */

// stateHTTPKeepAlive parks an idle session between pipelined requests, holding the
// pooled backend connection for reuse.
type stateHTTPKeepAlive struct{}

func (st *stateHTTPKeepAlive) Marker() Marker     { return MarkerHTTPKeepAlive }
func (st *stateHTTPKeepAlive) PrintState() string { return "HttpKeepAlive" }

func (st *stateHTTPKeepAlive) Ready(s *Session) StateResult {
	n, hangup := s.readFront()
	if hangup && n == 0 && len(s.inBuf.Bytes()) == 0 {
		return ResultCloseSession
	}

	if len(s.inBuf.Bytes()) == 0 {
		// drop a pooled backend the origin closed while we idled
		if s.back != nil {
			if _, bh := s.readBack(); bh {
				return ResultCloseBackend
			}
		}
		return ResultContinue
	}

	s.swap(newStateHTTPRequest())

	return ResultUpgrade
}

func (st *stateHTTPKeepAlive) Timeout(s *Session, _ token.Token) StateResult {
	return ResultCloseSession
}

func (st *stateHTTPKeepAlive) CancelTimeouts(*Session) {}

/* ------------------------------------------------------------------------- */

// stateWebSocket forwards both directions opaquely after a 101.
type stateWebSocket struct {
	toFront []byte
	toBack  []byte
}

func (st *stateWebSocket) Marker() Marker     { return MarkerWebSocket }
func (st *stateWebSocket) PrintState() string { return "WebSocket" }

func (st *stateWebSocket) Ready(s *Session) StateResult {
	return splice(s, &st.toBack, &st.toFront)
}

func (st *stateWebSocket) Timeout(s *Session, _ token.Token) StateResult {
	return ResultCloseSession
}

func (st *stateWebSocket) CancelTimeouts(*Session) {}

/* ------------------------------------------------------------------------- */

// stateTCP forwards an opaque TCP session to its listener's cluster.
type stateTCP struct {
	pending   pendingRequest
	resolved  bool
	connected bool

	toFront []byte
	toBack  []byte
}

func (st *stateTCP) Marker() Marker     { return MarkerTCP }
func (st *stateTCP) PrintState() string { return "Tcp" }

func (st *stateTCP) request() *pendingRequest {
	return &st.pending
}

func (st *stateTCP) Ready(s *Session) StateResult {
	if !st.resolved {
		cluster, err := s.deps.TCPCluster(s.listener)
		if err != nil {
			return ResultCloseSession
		}

		st.pending = pendingRequest{clusterID: cluster}
		st.resolved = true

		return ResultConnectBackend
	}

	if !st.connected {
		return ResultContinue
	}

	return splice(s, &st.toBack, &st.toFront)
}

func (st *stateTCP) BackendReady(s *Session) {
	st.connected = true
	s.attempts = 0
}

func (st *stateTCP) Timeout(s *Session, _ token.Token) StateResult {
	return ResultCloseSession
}

func (st *stateTCP) CancelTimeouts(*Session) {}

/* ------------------------------------------------------------------------- */

// stateFailedUpgrade is terminal; it preserves the marker of the last valid variant.
type stateFailedUpgrade struct {
	last Marker
}

func (st *stateFailedUpgrade) Marker() Marker { return MarkerFailedUpgrade }

func (st *stateFailedUpgrade) PrintState() string {
	return "FailedUpgrade(" + st.last.String() + ")"
}

func (st *stateFailedUpgrade) Ready(*Session) StateResult {
	return ResultCloseSession
}

func (st *stateFailedUpgrade) Timeout(*Session, token.Token) StateResult {
	return ResultCloseSession
}

func (st *stateFailedUpgrade) CancelTimeouts(*Session) {}

/* ------------------------------------------------------------------------- */

// splice moves bytes both ways between the front and backend sockets until one side
// hangs up, then flushes and closes.
func splice(s *Session, toBack, toFront *[]byte) StateResult {
	if s.back == nil {
		return ResultCloseSession
	}

	_, fhang := s.readFront()
	if b := s.inBuf.Bytes(); len(b) > 0 {
		*toBack = append(*toBack, b...)
		consume(s.inBuf, len(b))
	}

	_, bhang := s.readBack()
	if b := s.outBuf.Bytes(); len(b) > 0 {
		*toFront = append(*toFront, b...)
		consume(s.outBuf, len(b))
	}

	rest, bh := s.writeAll(s.back, *toBack, &s.metrics.BackBytesOut)
	*toBack = rest

	restF, fh := s.writeAll(s.front, *toFront, &s.metrics.BytesOut)
	*toFront = restF

	if fhang || bhang || bh || fh {
		if len(*toFront) == 0 && len(*toBack) == 0 {
			return ResultCloseSession
		}
		// flush whatever is left before closing
		if len(*toFront) > 0 && !fh {
			return ResultContinue
		}
		return ResultCloseSession
	}

	return ResultContinue
}

// redirectResponse renders the https redirect for a cluster or rule that demands it.
func redirectResponse(head *RequestHead) []byte {
	var b strings.Builder

	b.WriteString("HTTP/1.1 301 Moved Permanently\r\nLocation: https://")
	b.WriteString(head.Host)
	b.WriteString(head.URI)
	b.WriteString("\r\nContent-Length: 0\r\nConnection: close\r\n\r\n")

	return []byte(b.String())
}
