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
	"context"
	"time"

	"github.com/nabbar/proxycore/errors"
	"github.com/nabbar/proxycore/logger"
	"github.com/nabbar/proxycore/session"
	"github.com/nabbar/proxycore/token"
	"golang.org/x/sync/errgroup"
)

// Run starts the admin channel reader and the event loop, returning the worker's
// exit code once both end. A panic in the protocol core maps to the dedicated code.
func (w *Worker) Run(ctx context.Context) (code int) {
	defer func() {
		if r := recover(); r != nil {
			w.logger().Error("protocol core panic: %v", nil, r)
			code = ExitPanic
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	grp, ctx := errgroup.WithContext(ctx)

	w.channel.Start(ctx)

	grp.Go(func() error {
		// the loop runs on this goroutine, so its panics are recovered here
		defer func() {
			if r := recover(); r != nil {
				w.logger().Error("protocol core panic: %v", nil, r)
				w.exitCode = ExitPanic
				cancel()
			}
		}()

		w.loop(ctx)
		cancel()
		return nil
	})

	_ = grp.Wait()

	w.channel.Stop()
	_ = w.poller.Close()

	return w.exitCode
}

// loop is the six-step iteration: poll, dispatch readiness, drain the admin queue,
// drive ready sessions, expire timers, and resolve stop conditions.
func (w *Worker) loop(ctx context.Context) {
	for !w.stopped {
		if ctx.Err() != nil {
			w.engageHardStop()
		}

		now := time.Now()
		timeout := w.timers.Next(now, maxPollInterval)

		events, err := w.poller.Wait(timeout)
		if err != nil {
			w.logger().LogError(logger.ErrorLevel, err)
		}

		w.dispatch(events)
		w.drainAdmin()
		w.driveReady()
		w.expireTimers(time.Now())
		w.resolveStops()
	}
}

// dispatch routes kernel events: listener tokens accept, session tokens update the
// owning session's readiness and mark it ready.
func (w *Worker) dispatch(events []PollEvent) {
	for _, ev := range events {
		if lst, ok := w.listeners[ev.Token]; ok {
			if ev.Readable && lst.Accepting() {
				w.acceptLoop(lst)
			}
			continue
		}

		handle, ok := w.tokens.Get(ev.Token)
		if !ok {
			continue
		}

		s, ok := handle.(*session.Session)
		if !ok {
			continue
		}

		r := &s.FrontReadiness
		if ev.Token == s.BackToken {
			r = &s.BackReadiness
		}

		if ev.Readable {
			r.SetEvent(token.EventReadable, true)
		}
		if ev.Writable {
			r.SetEvent(token.EventWritable, true)
		}
		if ev.Error {
			r.SetEvent(token.EventError, true)
		}
		if ev.Hangup {
			r.SetEvent(token.EventHangup, true)
		}

		w.markReady(s.SessionID())
	}
}

func (w *Worker) markReady(sid uint64) {
	for _, id := range w.ready {
		if id == sid {
			return
		}
	}

	w.ready = append(w.ready, sid)
}

// acceptLoop empties a listener's backlog, refusing sessions when the buffer pool
// cannot serve another one.
func (w *Worker) acceptLoop(lst *Listener) {
	for {
		sock, err := lst.Accept()
		if err != nil {
			if err.IsCode(ErrorWouldBlock) {
				return
			}

			w.logger().LogError(logger.WarnLevel, err)
			return
		}

		if w.pool.NearExhaustion(acceptHeadroom) {
			w.logger().Warning("%s", nil, ErrorTooManySessions.Error(nil).Error())
			_ = sock.Close()
			continue
		}

		w.nextID++
		sid := w.nextID

		s, serr := session.New(sid, sock, listenerProto(lst), lst.Config().Address, lst.Config().ExpectProxy, w.pool, w.sessionDeps())
		if serr != nil {
			w.logger().LogError(logger.WarnLevel, serr)
			_ = sock.Close()
			continue
		}

		tok := w.tokens.Insert(s)
		s.FrontToken = tok

		if perr := w.poller.Register(sock.Fd(), tok, true, false); perr != nil {
			w.logger().LogError(logger.WarnLevel, perr)
			s.Close()
			w.tokens.RemoveSession(sid)
			continue
		}

		w.sessions[sid] = s
		w.sessionListener[sid] = lst

		// bytes may already be waiting on a freshly accepted socket
		s.FrontReadiness.SetEvent(token.EventReadable, true)
		w.markReady(sid)
	}
}

func listenerProto(lst *Listener) session.Protocol {
	return lst.proto
}

// drainAdmin applies every queued admin request; mutations land between session
// steps so no session observes a partial update.
func (w *Worker) drainAdmin() {
	for _, req := range w.channel.Drain() {
		for _, rsp := range w.plane.Apply(req) {
			w.channel.Send(rsp)
		}
	}

	for {
		select {
		case req := <-w.injected:
			for _, rsp := range w.plane.Apply(req) {
				w.channel.Send(rsp)
			}
		default:
			return
		}
	}
}

// driveReady walks the ready queue FIFO, bounded per iteration; the remainder keeps
// its order for the next tick.
func (w *Worker) driveReady() {
	n := len(w.ready)
	if n > w.maxPerTick {
		n = w.maxPerTick
	}

	batch := w.ready[:n]
	w.ready = append([]uint64(nil), w.ready[n:]...)

	for _, sid := range batch {
		s, ok := w.sessions[sid]
		if !ok {
			continue
		}

		if s.Ready() == session.SessionClose {
			w.reap(s)
		}
	}
}

// expireTimers fires due timers into their sessions.
func (w *Worker) expireTimers(now time.Time) {
	for _, e := range w.timers.Expire(now) {
		s, ok := w.sessions[e.sessionID]
		if !ok {
			continue
		}

		if s.Timeout(e.tok) == session.SessionClose {
			w.reap(s)
		}
	}
}

// reap removes a closed session everywhere: poller, token slab, timer heap.
func (w *Worker) reap(s *session.Session) {
	sid := s.SessionID()

	if fd := s.FrontFd(); fd >= 0 {
		_ = w.poller.Unregister(fd)
	}

	s.Close()

	if fd, ok := w.backFds[sid]; ok {
		_ = w.poller.Unregister(fd)
		delete(w.backFds, sid)
	}

	if pending, ok := w.tlsHandshakes[sid]; ok {
		_ = pending.conn.Close()
		delete(w.tlsHandshakes, sid)
	}

	w.timers.CancelSession(sid)
	w.tokens.RemoveSession(sid)
	delete(w.sessions, sid)
	delete(w.sessionListener, sid)
}

// resolveStops ends the loop per the stop mode: hard stop closes everything now,
// soft stop waits for the drain (bounded by the drain timeout).
func (w *Worker) resolveStops() {
	if w.hardStop {
		for _, s := range w.sessions {
			w.reap(s)
		}
		for _, l := range w.listeners {
			l.Close()
		}

		w.stopped = true
		return
	}

	if !w.softStop {
		return
	}

	if len(w.sessions) == 0 {
		for _, l := range w.listeners {
			l.Close()
		}

		w.stopped = true
		return
	}

	if time.Since(w.softStopAt) > w.drainTimeout {
		w.logger().Warning("drain timeout, force-closing %d sessions", nil, len(w.sessions))
		w.hardStop = true
	}
}

// sessionDeps wires a session's collaborators to this worker.
func (w *Worker) sessionDeps() *session.Deps {
	return &session.Deps{
		Route:      w.router.FrontendFromRequest,
		NotFound:   w.router.NotFound,
		TCPCluster: w.plane.TCPCluster,
		Cluster:    w.registry.Cluster,
		Select:     w.registry.Select,
		Release:     w.registry.Release,
		MarkFailure: w.registry.MarkFailure,
		MarkSuccess: w.registry.MarkSuccess,
		Connect: func(s *session.Session, address string) (session.Sock, bool, errors.Error) {
			return nonBlockingConnect(address)
		},
		CheckConnect: checkConnect,
		RegisterBackend: func(s *session.Session, sock session.Sock) {
			tok := w.tokens.Insert(s)
			s.BackToken = tok
			w.backFds[s.SessionID()] = sock.Fd()

			if err := w.poller.Register(sock.Fd(), tok, true, true); err != nil {
				w.logger().LogError(logger.WarnLevel, err)
			}
		},
		DeregisterBackend: func(s *session.Session) {
			sid := s.SessionID()
			if fd, ok := w.backFds[sid]; ok {
				_ = w.poller.Unregister(fd)
				delete(w.backFds, sid)
			}
			if s.BackToken != 0 {
				w.tokens.Remove(s.BackToken)
				s.BackToken = 0
			}
		},
		StartTLS: w.startTLS,
		ArmFrontTimer: func(s *session.Session) {
			w.timers.Arm(s.SessionID(), s.FrontToken, timerFront, time.Now().Add(w.frontTimeout))
		},
		ArmConnectTimer: func(s *session.Session) {
			w.timers.Arm(s.SessionID(), s.BackToken, timerConnect, time.Now().Add(w.connectTimeout))
		},
		CancelTimers: func(s *session.Session) {
			w.timers.CancelSession(s.SessionID())
		},
		Log: w.log,
		Now: time.Now,
	}
}
