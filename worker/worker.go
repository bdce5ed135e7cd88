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

// Package worker runs one single-threaded cooperative event loop: a poll, a token
// namespace over listeners and sessions, the admin channel drained between
// iterations, session timers, and the soft/hard stop lifecycle including listener
// handoff to a successor.
package worker

import (
	"crypto/tls"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/nabbar/proxycore/admin"
	"github.com/nabbar/proxycore/backend"
	"github.com/nabbar/proxycore/buffer"
	libtls "github.com/nabbar/proxycore/certificates"
	"github.com/nabbar/proxycore/config"
	"github.com/nabbar/proxycore/errors"
	"github.com/nabbar/proxycore/handoff"
	"github.com/nabbar/proxycore/logger"
	"github.com/nabbar/proxycore/route"
	"github.com/nabbar/proxycore/session"
	"github.com/nabbar/proxycore/token"
)

const (
	defaultBufferSize     = 16 * 1024
	defaultMaxBuffers     = 1024
	defaultMaxPerTick     = 64
	defaultFrontTimeout   = 60 * time.Second
	defaultConnectTimeout = 5 * time.Second
	defaultDrainTimeout   = 30 * time.Second

	// maxPollInterval bounds one poll so the admin queue is drained promptly even
	// on an idle worker.
	maxPollInterval = 100 * time.Millisecond

	// acceptHeadroom keeps that many buffers free for the sessions already running;
	// accepts are refused below it.
	acceptHeadroom = 4
)

// listenerHandle occupies a slab slot for a listener token.
type listenerHandle struct {
	id uint64
}

func (h listenerHandle) SessionID() uint64 { return h.id }

// tlsPending tracks one front handshake in progress.
type tlsPending struct {
	conn *tls.Conn
	fd   int
	old  session.Sock
}

// Worker owns every data-plane structure; nothing here is shared across workers.
type Worker struct {
	cfg config.WorkerConfig
	log logger.FuncLog

	pool     *buffer.Pool
	tokens   *token.Registry
	registry *backend.Registry
	router   *route.Router
	plane    *admin.Plane
	channel  *admin.Channel
	injected chan admin.WorkerRequest

	poller Poller
	timers *timerHeap

	frontTimeout   time.Duration
	connectTimeout time.Duration
	drainTimeout   time.Duration
	maxPerTick     int

	nextID uint64

	listeners       map[token.Token]*Listener
	listenersByAddr map[string]*Listener
	inheritedFds    map[string]int

	sessions        map[uint64]*session.Session
	sessionListener map[uint64]*Listener
	backFds         map[uint64]int
	tlsHandshakes   map[uint64]*tlsPending

	// dynamic certificates added at runtime, one SNI store per listener address
	certs map[string]*libtls.Store

	ready []uint64

	softStop   bool
	softStopAt time.Time
	hardStop   bool

	// handoffPath is the successor's unix socket for ReturnListenSockets.
	handoffPath string

	exitCode int
	stopped  bool
}

// New assembles a worker from its bootstrap config. The admin connection is dialed
// by the caller and handed in so tests can use a pipe.
func New(cfg config.WorkerConfig, adminConn net.Conn, handoffPath string, log logger.FuncLog) (*Worker, errors.Error) {
	poller, err := NewPoller()
	if err != nil {
		return nil, err
	}

	bufSize := cfg.BufferSize
	if bufSize <= 0 {
		bufSize = defaultBufferSize
	}

	maxBufs := cfg.MaxBuffers
	if maxBufs <= 0 {
		maxBufs = defaultMaxBuffers
	}

	w := &Worker{
		cfg:             cfg,
		log:             log,
		pool:            buffer.NewPool(bufSize, maxBufs),
		tokens:          token.NewRegistry(maxBufs),
		router:          route.NewRouter(),
		poller:          poller,
		timers:          newTimerHeap(),
		frontTimeout:    parseDuration(cfg.FrontTimeout, defaultFrontTimeout),
		connectTimeout:  parseDuration(cfg.ConnectTimeout, defaultConnectTimeout),
		drainTimeout:    parseDuration(cfg.DrainTimeout, defaultDrainTimeout),
		maxPerTick:      cfg.MaxSessionsPerTick,
		listeners:       make(map[token.Token]*Listener),
		listenersByAddr: make(map[string]*Listener),
		inheritedFds:    make(map[string]int),
		sessions:        make(map[uint64]*session.Session),
		sessionListener: make(map[uint64]*Listener),
		backFds:         make(map[uint64]int),
		tlsHandshakes:   make(map[uint64]*tlsPending),
		certs:           make(map[string]*libtls.Store),
		injected:        make(chan admin.WorkerRequest, 64),
		handoffPath:     handoffPath,
		exitCode:        ExitOK,
	}

	if w.maxPerTick <= 0 {
		w.maxPerTick = defaultMaxPerTick
	}

	w.registry = backend.NewRegistry(w.onEvent)
	w.plane = admin.NewPlane(w.registry, w.router, w.hooks(), log)
	w.channel = admin.NewChannel(adminConn, 64, log)

	return w, nil
}

// Plane exposes the configuration plane, for the admin HTTP surface and tests.
func (w *Worker) Plane() *admin.Plane {
	return w.plane
}

// Registry exposes the backend registry, for the active health prober.
func (w *Worker) Registry() *backend.Registry {
	return w.registry
}

// Inject queues a worker-originated request through the same apply path as
// external admin requests.
func (w *Worker) Inject(req admin.WorkerRequest) {
	select {
	case w.injected <- req:
	default:
		w.logger().Warning("injected request queue full, dropping %s", nil, req.Type)
	}
}

// InheritListeners adopts descriptors received over the handoff channel; activation
// requests replayed afterward bind to them instead of fresh sockets.
func (w *Worker) InheritListeners(p *handoff.Payload, fds []int) {
	i := 0

	for _, g := range p.Groups {
		for _, cfg := range g.Configs {
			if i < len(fds) {
				w.inheritedFds[cfg.Address] = fds[i]
				i++
			}
		}
	}
}

func (w *Worker) onEvent(e backend.Event) {
	w.plane.OnEvent(e)
}

func (w *Worker) logger() logger.Logger {
	if w.log != nil {
		if l := w.log(); l != nil {
			return l
		}
	}

	return logger.New()
}

func (w *Worker) hooks() admin.Hooks {
	return admin.Hooks{
		ActivateListener:    w.activateListener,
		DeactivateListener:  w.deactivateListener,
		AddCertificate:      w.addCertificate,
		RemoveCertificate:   w.removeCertificate,
		SoftStop:            w.engageSoftStop,
		HardStop:            w.engageHardStop,
		ReturnListenSockets: w.returnListenSockets,
		Status:              w.statusData,
	}
}

func (w *Worker) activateListener(cfg config.ListenerConfig) errors.Error {
	if _, ok := w.listenersByAddr[cfg.Address]; ok {
		return nil
	}

	var (
		lst *Listener
		err errors.Error
	)

	if fd, inherited := w.inheritedFds[cfg.Address]; inherited {
		lst, err = ListenerFromFd(fd, cfg)
		delete(w.inheritedFds, cfg.Address)
	} else {
		lst, err = NewListener(cfg)
	}

	if err != nil {
		return err
	}

	w.nextID++
	tok := w.tokens.Insert(listenerHandle{id: w.nextID})

	if perr := w.poller.Register(lst.Fd(), tok, true, false); perr != nil {
		lst.Close()
		w.tokens.Remove(tok)
		return perr
	}

	if cfg.NotFound != "" {
		w.router.SetNotFound([]byte(cfg.NotFound))
	}

	w.listeners[tok] = lst
	w.listenersByAddr[cfg.Address] = lst

	w.logger().Info("listener %s active (%s)", nil, cfg.Address, cfg.Protocol)

	return nil
}

func (w *Worker) deactivateListener(addr string) errors.Error {
	lst, ok := w.listenersByAddr[addr]
	if !ok {
		return ErrorListenerUnknown.Error(nil)
	}

	for tok, l := range w.listeners {
		if l == lst {
			_ = w.poller.Unregister(l.Fd())
			w.tokens.Remove(tok)
			delete(w.listeners, tok)
			break
		}
	}

	delete(w.listenersByAddr, addr)
	lst.Close()

	return nil
}

func (w *Worker) addCertificate(cfg config.CertificateConfig) errors.Error {
	store, ok := w.certs[cfg.Address]
	if !ok {
		store = libtls.NewStore()
		w.certs[cfg.Address] = store
	}

	if err := store.Add(cfg.Hostname, cfg.Key, cfg.Certificate); err != nil {
		return ErrorRegister.Error(err)
	}

	return nil
}

func (w *Worker) removeCertificate(addr, hostname string) errors.Error {
	if store, ok := w.certs[addr]; ok {
		store.Remove(hostname)
	}

	return nil
}

// tlsConfigFor builds the handshake config of one tls listener: its static store
// plus the runtime-added certificates, selected by SNI.
func (w *Worker) tlsConfigFor(lst *Listener) *tls.Config {
	var base *tls.Config

	static := lst.TLS()
	if static != nil {
		base = static.TlsConfig("")
	} else {
		base = &tls.Config{}
	}

	store, ok := w.certs[lst.Config().Address]
	if !ok {
		store = libtls.NewStore()
		w.certs[lst.Config().Address] = store
	}

	base.GetCertificate = store.GetCertificateFunc(static)

	return base
}

// startTLS drives one front handshake through the crypto/tls primitive, bounded
// per step so the loop never parks here.
func (w *Worker) startTLS(s *session.Session, front session.Sock) (session.Sock, bool, error) {
	sid := s.SessionID()

	pending, ok := w.tlsHandshakes[sid]
	if !ok {
		lst := w.sessionListener[sid]
		if lst == nil {
			return nil, false, ErrorListenerUnknown.Error(nil)
		}

		f := os.NewFile(uintptr(front.Fd()), "front")
		nc, err := net.FileConn(f)
		_ = f.Close()
		if err != nil {
			return nil, false, err
		}

		var fd int
		if sc, ok := nc.(syscall.Conn); ok {
			if raw, err := sc.SyscallConn(); err == nil {
				_ = raw.Control(func(f uintptr) { fd = int(f) })
			}
		}

		pending = &tlsPending{
			conn: tls.Server(nc, w.tlsConfigFor(lst)),
			fd:   fd,
			old:  front,
		}
		w.tlsHandshakes[sid] = pending
	}

	_ = pending.conn.SetDeadline(time.Now().Add(5 * time.Millisecond))

	err := pending.conn.Handshake()

	switch {
	case err == nil:
		delete(w.tlsHandshakes, sid)

		// the secured socket rides the duplicated descriptor; move the poller
		// registration over and retire the original
		_ = w.poller.Unregister(pending.old.Fd())
		_ = pending.old.Close()

		if perr := w.poller.Register(pending.fd, s.FrontToken, true, false); perr != nil {
			return nil, false, perr
		}

		return newDeadlineSock(pending.conn, pending.fd), true, nil
	case session.IsWouldBlock(err):
		return nil, false, nil
	default:
		delete(w.tlsHandshakes, sid)
		return nil, false, err
	}
}

func (w *Worker) statusData() map[string]interface{} {
	listeners := map[string]interface{}{}
	for addr, l := range w.listenersByAddr {
		listeners[addr] = map[string]interface{}{
			"protocol":  l.Config().Protocol,
			"accepting": l.Accepting(),
		}
	}

	states := map[string]int{}
	for _, s := range w.sessions {
		states[s.PrintState("")]++
	}

	return map[string]interface{}{
		"sessions":      len(w.sessions),
		"sessionStates": states,
		"listeners":     listeners,
		"buffersInUse":  w.pool.InUse(),
		"softStop":      w.softStop,
		"tokens":        w.tokens.Len(),
	}
}

func (w *Worker) engageSoftStop() {
	if w.softStop {
		return
	}

	w.softStop = true
	w.softStopAt = time.Now()

	for _, l := range w.listeners {
		l.Suspend()
		_ = w.poller.Unregister(l.Fd())
	}

	w.logger().Info("soft stop: %d sessions draining", nil, len(w.sessions))
}

func (w *Worker) engageHardStop() {
	w.hardStop = true
}

// returnListenSockets packages the listening descriptors and the state snapshot and
// ships both to the successor, then suspends accepting. The caller follows with a
// soft stop.
func (w *Worker) returnListenSockets() errors.Error {
	if w.handoffPath == "" {
		return handoff.ErrorChannel.Error(nil)
	}

	raddr, err := net.ResolveUnixAddr("unix", w.handoffPath)
	if err != nil {
		return handoff.ErrorChannel.Error(err)
	}

	conn, err := net.DialUnix("unix", nil, raddr)
	if err != nil {
		return handoff.ErrorChannel.Error(err)
	}

	defer func() {
		_ = conn.Close()
	}()

	snapshot, serr := admin.RenderSnapshot(w.plane.Snapshot(), "toml")
	if serr != nil {
		return serr
	}

	groups := map[string]*handoff.ListenerGroup{
		"http": {Protocol: "http"},
		"tls":  {Protocol: "tls"},
		"tcp":  {Protocol: "tcp"},
	}

	var fds []int

	// suspend before packaging so no accept races the transfer; the bound port
	// stays open the whole time
	for _, l := range w.listeners {
		l.Suspend()
		_ = w.poller.Unregister(l.Fd())
	}

	for _, proto := range []string{"http", "tls", "tcp"} {
		for _, l := range w.listenersByAddr {
			if l.Config().Protocol == proto || (proto == "http" && l.Config().Protocol == "") {
				groups[proto].Configs = append(groups[proto].Configs, l.Config())
				fds = append(fds, l.Fd())
			}
		}
	}

	payload := &handoff.Payload{
		Version:  handoff.ProtocolVersion,
		RunID:    handoff.NewRunID(),
		Snapshot: snapshot,
		Groups: []handoff.ListenerGroup{
			*groups["http"], *groups["tls"], *groups["tcp"],
		},
	}

	if herr := handoff.Send(conn, payload, fds); herr != nil {
		return herr
	}

	w.logger().Info("listen sockets returned to successor (run %s)", nil, payload.RunID)

	return nil
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}

	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}

	return d
}
