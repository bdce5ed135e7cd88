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

// Package session drives one accepted front connection through its protocol state
// machine: classification, routing, backend selection with retry, header rewriting,
// in-place protocol upgrades (PROXY preface, TLS, HTTP, websocket, raw TCP splice)
// and teardown. The worker event loop owns the sockets' readiness; the session owns
// everything between the two byte streams.
package session

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/nabbar/proxycore/backend"
	"github.com/nabbar/proxycore/buffer"
	"github.com/nabbar/proxycore/errors"
	"github.com/nabbar/proxycore/logger"
	"github.com/nabbar/proxycore/route"
	"github.com/nabbar/proxycore/token"
)

// connRetries bounds connect attempts per request before the 503 is served.
const connRetries = 3

// Protocol classifies the listener that accepted the session.
type Protocol uint8

const (
	ProtoHTTP Protocol = iota
	ProtoTLS
	ProtoTCP
)

// Deps are the collaborators a session borrows from its worker. Everything here is
// owned by the worker thread; sessions never retain any of it past Close.
type Deps struct {
	// Route resolves (host, uri, method) for HTTP sessions.
	Route func(host, uri, method string) (route.Target, errors.Error)

	// NotFound is the body served on a routing miss.
	NotFound func() []byte

	// TCPCluster maps a TCP listener address to its cluster.
	TCPCluster func(listenerAddr string) (string, errors.Error)

	// Cluster and Select expose the backend registry scoped by the load balancer.
	Cluster func(id string) (*backend.Cluster, errors.Error)
	Select  func(clusterID, stickyHint string) (*backend.Backend, errors.Error)

	Release     func(b *backend.Backend)
	MarkFailure func(b *backend.Backend)
	MarkSuccess func(b *backend.Backend, rtt time.Duration)

	// Connect starts a backend connect. inProgress is true when the socket is still
	// connecting; the worker then registers write interest on it and readiness
	// drives CheckConnect.
	Connect func(s *Session, address string) (sock Sock, inProgress bool, err errors.Error)

	// CheckConnect resolves an in-progress connect once writability arrived.
	CheckConnect func(sock Sock) error

	// RegisterBackend and DeregisterBackend bind the backend socket into the token
	// registry and the poller.
	RegisterBackend   func(s *Session, sock Sock)
	DeregisterBackend func(s *Session)

	// StartTLS runs the TLS handshake over the front socket, returning the secured
	// socket once complete. done is false while the handshake wants more I/O.
	StartTLS func(s *Session, front Sock) (secured Sock, done bool, err error)

	// ArmFrontTimer and ArmConnectTimer (re)arm the session's two timers; Cancel
	// drops both.
	ArmFrontTimer   func(s *Session)
	ArmConnectTimer func(s *Session)
	CancelTimers    func(s *Session)

	Log logger.FuncLog
	Now func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}

	return time.Now()
}

func (d *Deps) logger() logger.Logger {
	if d.Log != nil {
		if l := d.Log(); l != nil {
			return l
		}
	}

	return logger.New()
}

// Session is one accepted front connection and its at-most-one backend connection.
type Session struct {
	id   uint64
	deps *Deps

	front    Sock
	proto    Protocol
	listener string
	clientIP string

	FrontToken     token.Token
	BackToken      token.Token
	FrontReadiness token.Readiness
	BackReadiness  token.Readiness

	pool   *buffer.Pool
	inBuf  *buffer.Buffer
	outBuf *buffer.Buffer

	back         Sock
	backEnd      *backend.Backend
	connecting   bool
	connectStart time.Time
	attempts     int

	state   protoState
	metrics Metrics

	lastEventAt time.Time
	closed      bool
}

// New builds a session for an accepted front socket. Buffers are checked out
// immediately; failure to obtain them refuses the session.
func New(id uint64, front Sock, proto Protocol, listenerAddr string, expectProxy bool, pool *buffer.Pool, deps *Deps) (*Session, errors.Error) {
	in, err := pool.Checkout()
	if err != nil {
		return nil, ErrorBufferCheckout.Error(err)
	}

	out, err := pool.Checkout()
	if err != nil {
		_ = pool.Release(in)
		return nil, ErrorBufferCheckout.Error(err)
	}

	s := &Session{
		id:             id,
		deps:           deps,
		front:          front,
		proto:          proto,
		listener:       listenerAddr,
		FrontReadiness: token.NewReadiness(),
		BackReadiness:  token.NewReadiness(),
		pool:           pool,
		inBuf:          in,
		outBuf:         out,
		metrics:        NewMetrics(deps.now()),
		lastEventAt:    deps.now(),
	}

	if addr := front.RemoteAddr(); addr != nil {
		s.clientIP = hostOnly(addr.String())
	}

	if expectProxy {
		s.state = &stateExpect{}
	} else {
		s.state = s.bootstrapState()
	}

	s.FrontReadiness.SetInterest(token.EventReadable, true)
	deps.ArmFrontTimer(s)

	return s, nil
}

// bootstrapState is the first protocol variant after any PROXY preface.
func (s *Session) bootstrapState() protoState {
	switch s.proto {
	case ProtoTLS:
		return &stateTLSHandshake{}
	case ProtoTCP:
		return &stateTCP{}
	default:
		return newStateHTTPRequest()
	}
}

// SessionID satisfies token.SessionHandle.
func (s *Session) SessionID() uint64 {
	return s.id
}

// Marker exposes the current protocol variant tag.
func (s *Session) Marker() Marker {
	return s.state.Marker()
}

// PrintState renders the current variant for diagnostics, prefixed by the caller's
// context.
func (s *Session) PrintState(ctx string) string {
	if ctx == "" {
		return s.state.PrintState()
	}

	return ctx + ": " + s.state.PrintState()
}

// FrontFd exposes the front socket's descriptor for poller bookkeeping.
func (s *Session) FrontFd() int {
	if s.front == nil {
		return -1
	}

	return s.front.Fd()
}

// Metrics exposes the accumulated session metrics.
func (s *Session) Metrics() *Metrics {
	return &s.metrics
}

// LastEventAt is the instant of the last processed event, used by idle accounting.
func (s *Session) LastEventAt() time.Time {
	return s.lastEventAt
}

// Scheme is the front scheme advertised in X-Forwarded-Proto.
func (s *Session) Scheme() string {
	if s.proto == ProtoTLS {
		return "https"
	}

	return "http"
}

// Ready drives the state machine while progress is possible. The worker calls it
// after copying kernel events into the session's readiness pairs.
func (s *Session) Ready() SessionResult {
	if s.closed {
		return SessionClose
	}

	begin := s.deps.now()
	s.metrics.BeginService(begin)
	s.lastEventAt = begin

	defer func() {
		s.metrics.EndService(begin, s.deps.now())
	}()

	for i := 0; i < 32; i++ {
		// resolve a pending backend connect before the protocol step
		if s.connecting && s.BackReadiness.HasActionable() {
			if res := s.finishConnect(); res == ResultCloseSession {
				s.Close()
				return SessionClose
			}
		}

		switch res := s.state.Ready(s); res {
		case ResultContinue:
			return SessionContinue
		case ResultUpgrade:
			// the state already swapped the variant in place; loop so the new
			// variant sees the buffered bytes without waiting for readiness
			continue
		case ResultConnectBackend:
			switch s.startConnect() {
			case ResultContinue:
				continue
			case ResultCloseSession:
				s.Close()
				return SessionClose
			}
			return SessionContinue
		case ResultCloseBackend:
			s.closeBackend()
			continue
		case ResultCloseSession:
			s.Close()
			return SessionClose
		}
	}

	// progress bound reached; yield to the loop, readiness will bring us back
	return SessionContinue
}

// Timeout dispatches a fired timer into the current state.
func (s *Session) Timeout(tok token.Token) SessionResult {
	if s.closed {
		return SessionClose
	}

	if s.connecting {
		// back-connect timer fired while connecting: treat as connect failure
		s.deps.logger().Warning("session %d: backend connect timeout", nil, s.id)
		if res := s.connectFailed(ErrorBackendConnect.Error(nil)); res == ResultCloseSession {
			s.Close()
			return SessionClose
		}

		return SessionContinue
	}

	if s.state.Timeout(s, tok) == ResultCloseSession {
		s.Close()
		return SessionClose
	}

	return SessionContinue
}

// swap replaces the protocol variant in place. The front socket, readiness pairs,
// buffers and metrics survive untouched. HTTP variants living over a secured front
// keep their Https wrapper so the variant tag stays honest.
func (s *Session) swap(next protoState) {
	s.state.CancelTimeouts(s)

	if _, secured := s.state.(*stateHTTPS); secured {
		switch next.(type) {
		case *stateHTTPRequest, *stateHTTPResponse, *stateHTTPKeepAlive:
			s.state = &stateHTTPS{inner: next}
			return
		}
	}

	s.state = next
}

// failUpgrade parks the session in the terminal FailedUpgrade variant, preserving
// the marker of the last valid state for diagnostics.
func (s *Session) failUpgrade(err error) StateResult {
	last := s.state.Marker()
	s.deps.logger().Error("session %d: upgrade failed from %s", err, s.id, last)
	s.state = &stateFailedUpgrade{last: last}

	return ResultCloseSession
}

// startConnect selects a backend and begins a non-blocking connect, retrying over
// eligible backends up to the retry bound before serving the 503.
func (s *Session) startConnect() StateResult {
	req := currentRequest(s.state)
	if req == nil {
		return ResultCloseSession
	}

	for s.attempts < connRetries {
		b, err := s.deps.Select(req.clusterID, req.stickyHint)
		if err != nil {
			// no eligible backend at all
			return s.serveUnavailable(req.clusterID)
		}

		s.attempts++

		sock, inProgress, cerr := s.deps.Connect(s, b.Address)
		if cerr != nil {
			s.deps.MarkFailure(b)
			s.deps.Release(b)
			continue
		}

		s.backEnd = b
		s.back = sock
		s.connecting = inProgress
		s.connectStart = s.deps.now()
		s.metrics.BackendConnectStart = s.connectStart

		s.BackReadiness.Reset()
		s.BackReadiness.SetInterest(token.EventWritable, true)
		s.deps.RegisterBackend(s, sock)
		s.deps.ArmConnectTimer(s)

		if !inProgress {
			return s.finishConnect()
		}

		return ResultContinue
	}

	return s.serveUnavailable(req.clusterID)
}

// finishConnect resolves an in-progress connect after writability arrived.
func (s *Session) finishConnect() StateResult {
	if s.back == nil {
		return ResultContinue
	}

	if err := s.deps.CheckConnect(s.back); err != nil {
		return s.connectFailed(ErrorBackendConnect.Error(err))
	}

	s.connecting = false
	now := s.deps.now()
	s.metrics.BackendConnected = now

	// connection time feeds the backend's latency estimate
	s.backEnd.Load.Observe(float64(now.Sub(s.connectStart)))

	s.BackReadiness.SetInterest(token.EventReadable, true)
	s.BackReadiness.SetInterest(token.EventWritable, true)

	if hs, ok := s.state.(backendAware); ok {
		hs.BackendReady(s)
	}

	return ResultContinue
}

// connectFailed tears the failed socket down, drives the retry policy, and either
// retries on another backend or serves the 503.
func (s *Session) connectFailed(err errors.Error) StateResult {
	s.deps.logger().LogError(logger.DebugLevel, err)

	if s.backEnd != nil {
		s.deps.MarkFailure(s.backEnd)
		s.deps.Release(s.backEnd)
		s.backEnd = nil
	}

	if s.back != nil {
		s.deps.DeregisterBackend(s)
		_ = s.back.Close()
		s.back = nil
	}

	s.connecting = false
	s.BackReadiness.Reset()

	return s.startConnect()
}

// serveUnavailable writes the cluster's configured 503 and closes.
func (s *Session) serveUnavailable(clusterID string) StateResult {
	body := []byte("service unavailable")

	if c, err := s.deps.Cluster(clusterID); err == nil {
		body = c.Unavailable()
	}

	s.writeFrontRaw(simpleResponse(503, body))

	return ResultCloseSession
}

// closeBackend releases the backend pair without touching the front side, for
// keep-alive replacement and backend-initiated shutdowns.
func (s *Session) closeBackend() {
	if s.backEnd != nil {
		s.deps.Release(s.backEnd)
		s.backEnd = nil
	}

	if s.back != nil {
		s.deps.DeregisterBackend(s)
		_ = s.back.Close()
		s.back = nil
	}

	s.metrics.BackendStop = s.deps.now()
	s.connecting = false
	s.BackReadiness.Reset()
}

// Close tears the whole session down: both sockets, both buffers, all timers. Safe
// to call more than once.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true

	s.state.CancelTimeouts(s)
	s.deps.CancelTimers(s)

	s.closeBackend()

	_ = s.front.Close()

	if s.inBuf != nil {
		_ = s.pool.Release(s.inBuf)
		s.inBuf = nil
	}
	if s.outBuf != nil && s.outBuf != s.inBuf {
		_ = s.pool.Release(s.outBuf)
	}
	s.outBuf = nil
}

// Closed reports whether Close ran.
func (s *Session) Closed() bool {
	return s.closed
}

// readFront pulls available bytes from the front socket into the input buffer.
func (s *Session) readFront() (n int, hangup bool) {
	return s.readInto(s.front, s.inBuf, &s.metrics.BytesIn)
}

// readBack pulls available bytes from the backend socket into the output buffer.
func (s *Session) readBack() (n int, hangup bool) {
	if s.back == nil {
		return 0, false
	}

	return s.readInto(s.back, s.outBuf, &s.metrics.BackBytesIn)
}

func (s *Session) readInto(sock Sock, buf *buffer.Buffer, counter *uint64) (int, bool) {
	total := 0

	for {
		b := buf.Bytes()
		if len(b) >= buf.Cap() {
			return total, false
		}

		chunk := b[len(b):buf.Cap()]
		n, err := sock.Read(chunk)
		if n > 0 {
			buf.SetLen(len(b) + n)
			*counter += uint64(n)
			total += n
		}

		switch {
		case err == nil:
			continue
		case IsWouldBlock(err):
			return total, false
		default:
			return total, true
		}
	}
}

// writeFrontRaw pushes bytes straight to the front socket, best effort: sessions
// about to close use it for terminal responses.
func (s *Session) writeFrontRaw(p []byte) {
	for len(p) > 0 {
		n, err := s.front.Write(p)
		if n > 0 {
			s.metrics.BytesOut += uint64(n)
			p = p[n:]
		}
		if err != nil {
			return
		}
	}
}

// writeAll drains p to sock, returning the unwritten tail on would-block.
func (s *Session) writeAll(sock Sock, p []byte, counter *uint64) (rest []byte, hangup bool) {
	for len(p) > 0 {
		n, err := sock.Write(p)
		if n > 0 {
			*counter += uint64(n)
			p = p[n:]
		}

		switch {
		case err == nil:
			continue
		case IsWouldBlock(err):
			return p, false
		default:
			return p, true
		}
	}

	return nil, false
}

// simpleResponse renders a terminal HTTP response with a plain body.
func simpleResponse(status int, body []byte) []byte {
	var b strings.Builder

	b.WriteString("HTTP/1.1 ")
	b.WriteString(statusLine(status))
	b.WriteString("\r\nContent-Length: ")
	b.WriteString(strconv.Itoa(len(body)))
	b.WriteString("\r\nContent-Type: text/plain\r\nConnection: close\r\n\r\n")
	b.Write(body)

	return []byte(b.String())
}

func statusLine(status int) string {
	return strconv.Itoa(status) + " " + statusText(status)
}

func hostOnly(addr string) string {
	if h, _, err := net.SplitHostPort(addr); err == nil {
		return h
	}

	return addr
}
