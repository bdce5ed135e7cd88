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

	"github.com/nabbar/proxycore/errors"
	"github.com/nabbar/proxycore/session"
	"golang.org/x/sys/unix"
)

// nonBlockingConnect starts a TCP connect without blocking. inProgress is true when
// the kernel answered EINPROGRESS; writability then reports the outcome through
// checkConnect.
func nonBlockingConnect(address string) (sock session.Sock, inProgress bool, err errors.Error) {
	tcp, rerr := net.ResolveTCPAddr("tcp", address)
	if rerr != nil {
		return nil, false, ErrorWrongSocketAddress.Error(rerr)
	}

	var (
		domain int
		sa     unix.Sockaddr
	)

	if ip4 := tcp.IP.To4(); ip4 != nil {
		domain = unix.AF_INET
		sa4 := &unix.SockaddrInet4{Port: tcp.Port}
		copy(sa4.Addr[:], ip4)
		sa = sa4
	} else {
		domain = unix.AF_INET6
		sa6 := &unix.SockaddrInet6{Port: tcp.Port}
		copy(sa6.Addr[:], tcp.IP.To16())
		sa = sa6
	}

	fd, serr := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if serr != nil {
		return nil, false, ErrorConnect.Error(serr)
	}

	cerr := unix.Connect(fd, sa)

	switch cerr {
	case nil:
		return newRawSock(fd, tcp), false, nil
	case unix.EINPROGRESS:
		return newRawSock(fd, tcp), true, nil
	default:
		_ = unix.Close(fd)
		return nil, false, ErrorConnect.Error(cerr)
	}
}

// checkConnect reads SO_ERROR once writability arrived on a connecting socket.
func checkConnect(sock session.Sock) error {
	fd := sock.Fd()
	if fd < 0 {
		return nil
	}

	soerr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}

	if soerr != 0 {
		return unix.Errno(soerr)
	}

	return nil
}
