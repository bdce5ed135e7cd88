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

//go:build !windows

package worker

import (
	"net"

	libtls "github.com/nabbar/proxycore/certificates"
	"github.com/nabbar/proxycore/config"
	"github.com/nabbar/proxycore/errors"
	"github.com/nabbar/proxycore/session"
	"golang.org/x/sys/unix"
)

// Listener is one bound front socket, accepted from by the worker loop.
type Listener struct {
	fd       int
	cfg      config.ListenerConfig
	proto    session.Protocol
	tls      libtls.TLSConfig
	accepting bool
}

// NewListener binds and listens on the configured address.
func NewListener(cfg config.ListenerConfig) (*Listener, errors.Error) {
	tcp, err := net.ResolveTCPAddr("tcp", cfg.Address)
	if err != nil {
		return nil, ErrorWrongSocketAddress.Error(err)
	}

	var (
		domain int
		sa     unix.Sockaddr
	)

	if ip4 := tcp.IP.To4(); ip4 != nil || tcp.IP == nil {
		domain = unix.AF_INET
		sa4 := &unix.SockaddrInet4{Port: tcp.Port}
		if ip4 != nil {
			copy(sa4.Addr[:], ip4)
		}
		sa = sa4
	} else {
		domain = unix.AF_INET6
		sa6 := &unix.SockaddrInet6{Port: tcp.Port}
		copy(sa6.Addr[:], tcp.IP.To16())
		sa = sa6
	}

	fd, serr := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if serr != nil {
		return nil, ErrorListenerBind.Error(serr)
	}

	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)

	if serr = unix.Bind(fd, sa); serr != nil {
		_ = unix.Close(fd)
		return nil, ErrorListenerBind.Error(serr)
	}

	if serr = unix.Listen(fd, unix.SOMAXCONN); serr != nil {
		_ = unix.Close(fd)
		return nil, ErrorListenerBind.Error(serr)
	}

	return newListenerFromFd(fd, cfg)
}

// ListenerFromFd adopts an inherited descriptor, already bound and listening, as
// delivered by the handoff channel.
func ListenerFromFd(fd int, cfg config.ListenerConfig) (*Listener, errors.Error) {
	unix.CloseOnExec(fd)

	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, ErrorListenerBind.Error(err)
	}

	return newListenerFromFd(fd, cfg)
}

func newListenerFromFd(fd int, cfg config.ListenerConfig) (*Listener, errors.Error) {
	l := &Listener{
		fd:        fd,
		cfg:       cfg,
		accepting: true,
	}

	switch cfg.Protocol {
	case "tls":
		l.proto = session.ProtoTLS
		l.tls = cfg.TLS.New()
	case "tcp":
		l.proto = session.ProtoTCP
	default:
		l.proto = session.ProtoHTTP
	}

	return l, nil
}

// Fd is the listening descriptor, for poller registration and handoff packaging.
func (l *Listener) Fd() int {
	return l.fd
}

// Config returns the declarative listener config.
func (l *Listener) Config() config.ListenerConfig {
	return l.cfg
}

// Suspend stops accepting without closing the socket, for soft stop and handoff.
func (l *Listener) Suspend() {
	l.accepting = false
}

// Accepting reports whether new connections are taken.
func (l *Listener) Accepting() bool {
	return l.accepting
}

// TLS returns the listener's certificate store, nil for plain listeners.
func (l *Listener) TLS() libtls.TLSConfig {
	return l.tls
}

// Accept takes one pending connection. The would-block error means the backlog is
// drained; the caller returns to the poll.
func (l *Listener) Accept() (session.Sock, errors.Error) {
	fd, sa, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)

	switch {
	case err == nil:
	case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
		return nil, ErrorWouldBlock.Error(nil)
	case err == unix.EMFILE || err == unix.ENFILE:
		return nil, ErrorTooManySessions.Error(err)
	default:
		return nil, ErrorIO.Error(err)
	}

	return newRawSock(fd, sockaddrToAddr(sa)), nil
}

// Close releases the listening socket.
func (l *Listener) Close() {
	l.accepting = false
	_ = unix.Close(l.fd)
}

func sockaddrToAddr(sa unix.Sockaddr) net.Addr {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(v.Addr[:]), Port: v.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(v.Addr[:]), Port: v.Port}
	default:
		return nil
	}
}
