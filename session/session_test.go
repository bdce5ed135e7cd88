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

package session_test

import (
	"bytes"
	"io"
	"net"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/nabbar/proxycore/backend"
	"github.com/nabbar/proxycore/buffer"
	"github.com/nabbar/proxycore/errors"
	"github.com/nabbar/proxycore/route"
	"github.com/nabbar/proxycore/session"
)

type fakeAddr string

func (a fakeAddr) Network() string { return "tcp" }
func (a fakeAddr) String() string  { return string(a) }

// fakeSock is an in-memory non-blocking socket: Read drains the scripted input,
// Write accumulates output.
type fakeSock struct {
	in     bytes.Buffer
	out    bytes.Buffer
	eof    bool
	closed bool
	addr   string
}

func (f *fakeSock) Read(p []byte) (int, error) {
	if f.in.Len() == 0 {
		if f.eof {
			return 0, io.EOF
		}
		return 0, syscall.EAGAIN
	}

	return f.in.Read(p)
}

func (f *fakeSock) Write(p []byte) (int, error) {
	if f.closed {
		return 0, syscall.EPIPE
	}

	return f.out.Write(p)
}

func (f *fakeSock) Close() error {
	f.closed = true
	return nil
}

func (f *fakeSock) RemoteAddr() net.Addr { return fakeAddr(f.addr) }
func (f *fakeSock) Fd() int              { return -1 }

// harness wires a session to a real router and backend registry with fake sockets.
type harness struct {
	router *route.Router
	reg    *backend.Registry
	pool   *buffer.Pool
	deps   *session.Deps

	backSock *fakeSock
}

func newHarness(t *testing.T, opts backend.ClusterOptions) *harness {
	t.Helper()

	h := &harness{
		router:   route.NewRouter(),
		reg:      backend.NewRegistry(nil),
		pool:     buffer.NewPool(64*1024, 16),
		backSock: &fakeSock{addr: "127.0.0.1:9000"},
	}

	if err := h.reg.AddCluster("c1", opts); err != nil {
		t.Fatalf("AddCluster: %v", err)
	}

	path, err := route.NewPathRule(route.PathPrefix, "/")
	if err != nil {
		t.Fatalf("NewPathRule: %v", err)
	}

	if err := h.router.AddRule(&route.Rule{
		RuleID:   "r1",
		Hostname: "example.com",
		Path:     path,
		Method:   route.MethodAny,
		Position: route.Tree,
		Target:   route.Target{Kind: route.TargetCluster, ClusterID: "c1"},
	}); err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	h.deps = &session.Deps{
		Route:    h.router.FrontendFromRequest,
		NotFound: h.router.NotFound,
		TCPCluster: func(string) (string, errors.Error) {
			return "c1", nil
		},
		Cluster: h.reg.Cluster,
		Select:  h.reg.Select,
		Release: h.reg.Release,
		MarkFailure: func(b *backend.Backend) {
			h.reg.MarkFailure(b)
		},
		MarkSuccess: h.reg.MarkSuccess,
		Connect: func(_ *session.Session, _ string) (session.Sock, bool, errors.Error) {
			return h.backSock, false, nil
		},
		CheckConnect:      func(session.Sock) error { return nil },
		RegisterBackend:   func(*session.Session, session.Sock) {},
		DeregisterBackend: func(*session.Session) {},
		StartTLS: func(_ *session.Session, front session.Sock) (session.Sock, bool, error) {
			return front, true, nil
		},
		ArmFrontTimer:   func(*session.Session) {},
		ArmConnectTimer: func(*session.Session) {},
		CancelTimers:    func(*session.Session) {},
		Now:             time.Now,
	}

	return h
}

func (h *harness) addBackend(t *testing.T, id, sticky string) *backend.Backend {
	t.Helper()

	b := backend.New("c1", id, "127.0.0.1:9000")
	b.Sticky = sticky
	if err := h.reg.Add(b); err != nil {
		t.Fatalf("Add backend: %v", err)
	}

	return b
}

func (h *harness) newSession(t *testing.T, front *fakeSock, proto session.Protocol, expect bool) *session.Session {
	t.Helper()

	s, err := session.New(1, front, proto, "0.0.0.0:8080", expect, h.pool, h.deps)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}

	return s
}

func TestBasicHTTPRoundTrip(t *testing.T) {
	h := newHarness(t, backend.ClusterOptions{})
	h.addBackend(t, "b1", "")

	front := &fakeSock{addr: "127.0.0.1:55000"}
	front.in.WriteString("GET /api HTTP/1.1\r\nHost: example.com\r\nConnection: keep-alive\r\n\r\n")

	s := h.newSession(t, front, session.ProtoHTTP, false)

	if res := s.Ready(); res != session.SessionContinue {
		t.Fatalf("Ready after request: %v", res)
	}

	sent := h.backSock.out.String()
	if !strings.HasPrefix(sent, "GET /api HTTP/1.1\r\n") {
		t.Fatalf("backend request line wrong:\n%s", sent)
	}
	if !strings.Contains(sent, "X-Forwarded-For: 127.0.0.1\r\n") {
		t.Fatalf("missing X-Forwarded-For:\n%s", sent)
	}
	if !strings.Contains(sent, "X-Forwarded-Proto: http\r\n") {
		t.Fatalf("missing X-Forwarded-Proto:\n%s", sent)
	}
	if strings.Contains(strings.ToLower(sent), "keep-alive\r\n\r\n") && strings.Contains(strings.ToLower(sent), "connection: keep-alive") {
		t.Fatalf("hop-by-hop header forwarded:\n%s", sent)
	}

	// backend answers
	h.backSock.in.WriteString("HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello")

	if res := s.Ready(); res != session.SessionContinue {
		t.Fatalf("Ready after response: %v", res)
	}

	got := front.out.String()
	if !strings.HasPrefix(got, "HTTP/1.1 200") {
		t.Fatalf("client response wrong:\n%s", got)
	}
	if !strings.HasSuffix(got, "hello") {
		t.Fatalf("client body wrong:\n%s", got)
	}

	// served and keep-alive: session parks between requests
	if s.Marker() != session.MarkerHTTPKeepAlive {
		t.Fatalf("marker = %v want keep-alive", s.Marker())
	}
}

func TestNoBackendServes503(t *testing.T) {
	h := newHarness(t, backend.ClusterOptions{Unavailable503: []byte("custom down page")})

	front := &fakeSock{addr: "127.0.0.1:55000"}
	front.in.WriteString("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n")

	s := h.newSession(t, front, session.ProtoHTTP, false)

	if res := s.Ready(); res != session.SessionClose {
		t.Fatalf("Ready: %v want close", res)
	}

	got := front.out.String()
	if !strings.HasPrefix(got, "HTTP/1.1 503") {
		t.Fatalf("expected 503:\n%s", got)
	}
	if !strings.Contains(got, "custom down page") {
		t.Fatalf("expected the cluster's configured body:\n%s", got)
	}
	if !s.Closed() {
		t.Fatal("session must be closed")
	}
}

func TestNoMatchServes404(t *testing.T) {
	h := newHarness(t, backend.ClusterOptions{})
	h.addBackend(t, "b1", "")

	front := &fakeSock{addr: "127.0.0.1:55000"}
	front.in.WriteString("GET / HTTP/1.1\r\nHost: other.net\r\n\r\n")

	s := h.newSession(t, front, session.ProtoHTTP, false)

	if res := s.Ready(); res != session.SessionClose {
		t.Fatalf("Ready: %v want close", res)
	}
	if !strings.HasPrefix(front.out.String(), "HTTP/1.1 404") {
		t.Fatalf("expected 404:\n%s", front.out.String())
	}
}

func TestStickyCookieInjectedAndHonored(t *testing.T) {
	h := newHarness(t, backend.ClusterOptions{StickySession: true})
	h.addBackend(t, "b1", "B1")
	h.addBackend(t, "b2", "B2")

	front := &fakeSock{addr: "127.0.0.1:55000"}
	front.in.WriteString("GET / HTTP/1.1\r\nHost: example.com\r\nCookie: SOZUBALANCEID=B2\r\n\r\n")

	s := h.newSession(t, front, session.ProtoHTTP, false)

	if res := s.Ready(); res != session.SessionContinue {
		t.Fatalf("Ready: %v", res)
	}

	h.backSock.in.WriteString("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok")
	if res := s.Ready(); res != session.SessionContinue {
		t.Fatalf("Ready: %v", res)
	}

	// the carried cookie matches the serving backend, so no new cookie is set
	if strings.Contains(front.out.String(), "Set-Cookie") {
		t.Fatalf("matching sticky id must not be re-set:\n%s", front.out.String())
	}

	// a fresh client without a cookie gets one
	h2 := newHarness(t, backend.ClusterOptions{StickySession: true})
	h2.addBackend(t, "b1", "B1")

	front2 := &fakeSock{addr: "127.0.0.1:55001"}
	front2.in.WriteString("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n")

	s2 := h2.newSession(t, front2, session.ProtoHTTP, false)
	if res := s2.Ready(); res != session.SessionContinue {
		t.Fatalf("Ready: %v", res)
	}

	h2.backSock.in.WriteString("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok")
	if res := s2.Ready(); res != session.SessionContinue {
		t.Fatalf("Ready: %v", res)
	}

	if !strings.Contains(front2.out.String(), "Set-Cookie: SOZUBALANCEID=B1") {
		t.Fatalf("sticky cookie not injected:\n%s", front2.out.String())
	}
}

func TestWebSocketUpgrade(t *testing.T) {
	h := newHarness(t, backend.ClusterOptions{})
	h.addBackend(t, "b1", "")

	front := &fakeSock{addr: "127.0.0.1:55000"}
	front.in.WriteString("GET /ws HTTP/1.1\r\nHost: example.com\r\nConnection: Upgrade\r\nUpgrade: websocket\r\n\r\n")

	s := h.newSession(t, front, session.ProtoHTTP, false)
	if res := s.Ready(); res != session.SessionContinue {
		t.Fatalf("Ready: %v", res)
	}

	if !strings.Contains(h.backSock.out.String(), "Upgrade: websocket") {
		t.Fatalf("upgrade pair not forwarded:\n%s", h.backSock.out.String())
	}

	h.backSock.in.WriteString("HTTP/1.1 101 Switching Protocols\r\nConnection: Upgrade\r\nUpgrade: websocket\r\n\r\n")
	if res := s.Ready(); res != session.SessionContinue {
		t.Fatalf("Ready: %v", res)
	}

	if s.Marker() != session.MarkerWebSocket {
		t.Fatalf("marker = %v want websocket", s.Marker())
	}

	// full duplex from here
	front.in.WriteString("ping-frame")
	h.backSock.in.WriteString("pong-frame")

	if res := s.Ready(); res != session.SessionContinue {
		t.Fatalf("Ready: %v", res)
	}

	if !strings.Contains(h.backSock.out.String(), "ping-frame") {
		t.Fatal("client frame not forwarded to backend")
	}
	if !strings.Contains(front.out.String(), "pong-frame") {
		t.Fatal("backend frame not forwarded to client")
	}
}

func TestProxyProtocolPreface(t *testing.T) {
	h := newHarness(t, backend.ClusterOptions{})
	h.addBackend(t, "b1", "")

	front := &fakeSock{addr: "10.0.0.9:41000"}
	front.in.WriteString("PROXY TCP4 203.0.113.7 10.0.0.1 56324 8080\r\n")
	front.in.WriteString("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n")

	s := h.newSession(t, front, session.ProtoHTTP, true)
	if s.Marker() != session.MarkerExpect {
		t.Fatalf("initial marker = %v want expect", s.Marker())
	}

	if res := s.Ready(); res != session.SessionContinue {
		t.Fatalf("Ready: %v", res)
	}

	if !strings.Contains(h.backSock.out.String(), "X-Forwarded-For: 203.0.113.7") {
		t.Fatalf("proxy preface address not used:\n%s", h.backSock.out.String())
	}
}

func TestTCPSplice(t *testing.T) {
	h := newHarness(t, backend.ClusterOptions{})
	h.addBackend(t, "b1", "")

	front := &fakeSock{addr: "127.0.0.1:55000"}
	front.in.WriteString("raw-client-bytes")

	s := h.newSession(t, front, session.ProtoTCP, false)
	if res := s.Ready(); res != session.SessionContinue {
		t.Fatalf("Ready: %v", res)
	}

	if !strings.Contains(h.backSock.out.String(), "raw-client-bytes") {
		t.Fatalf("client bytes not spliced:\n%s", h.backSock.out.String())
	}

	h.backSock.in.WriteString("raw-server-bytes")
	if res := s.Ready(); res != session.SessionContinue {
		t.Fatalf("Ready: %v", res)
	}

	if !strings.Contains(front.out.String(), "raw-server-bytes") {
		t.Fatal("server bytes not spliced back")
	}
}

func TestPoolBalanceRestoredOnClose(t *testing.T) {
	h := newHarness(t, backend.ClusterOptions{})
	h.addBackend(t, "b1", "")

	before := h.pool.InUse()

	front := &fakeSock{addr: "127.0.0.1:55000"}
	s := h.newSession(t, front, session.ProtoHTTP, false)

	if h.pool.InUse() != before+2 {
		t.Fatalf("expected two buffers checked out, got %d", h.pool.InUse()-before)
	}

	s.Close()

	if h.pool.InUse() != before {
		t.Fatalf("pool balance not restored: %d != %d", h.pool.InUse(), before)
	}

	// double close stays safe
	s.Close()
	if h.pool.InUse() != before {
		t.Fatal("double close disturbed the pool balance")
	}
}

func TestFrontTimeoutClosesSession(t *testing.T) {
	h := newHarness(t, backend.ClusterOptions{})
	h.addBackend(t, "b1", "")

	front := &fakeSock{addr: "127.0.0.1:55000"}
	s := h.newSession(t, front, session.ProtoHTTP, false)

	if res := s.Timeout(s.FrontToken); res != session.SessionClose {
		t.Fatalf("Timeout: %v want close", res)
	}
	if !s.Closed() {
		t.Fatal("session must close on front timeout")
	}
}
