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
	"time"

	"golang.org/x/sys/unix"
)

// rawSock drives a non-blocking kernel descriptor directly: reads and writes return
// EAGAIN instead of parking a goroutine, which is what keeps the worker loop its
// only suspension point.
type rawSock struct {
	fd     int
	remote net.Addr
	closed bool
}

func newRawSock(fd int, remote net.Addr) *rawSock {
	return &rawSock{fd: fd, remote: remote}
}

func (r *rawSock) Read(p []byte) (int, error) {
	n, err := unix.Read(r.fd, p)
	if n < 0 {
		n = 0
	}
	if n == 0 && err == nil {
		// zero-length read on a stream descriptor is the peer's FIN
		return 0, unix.ECONNRESET
	}

	return n, err
}

func (r *rawSock) Write(p []byte) (int, error) {
	n, err := unix.Write(r.fd, p)
	if n < 0 {
		n = 0
	}

	return n, err
}

func (r *rawSock) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	return unix.Close(r.fd)
}

func (r *rawSock) RemoteAddr() net.Addr {
	return r.remote
}

func (r *rawSock) Fd() int {
	return r.fd
}

// deadlineSock adapts a runtime-pollable net.Conn (the TLS primitive's carrier) to
// the non-blocking Sock contract: each operation is bounded by a short deadline and
// the timeout maps to would-block.
type deadlineSock struct {
	conn net.Conn
	fd   int
}

// sockSlice bounds one pseudo non-blocking operation on a deadline-based socket.
const sockSlice = time.Millisecond

func newDeadlineSock(conn net.Conn, fd int) *deadlineSock {
	return &deadlineSock{conn: conn, fd: fd}
}

func (d *deadlineSock) Read(p []byte) (int, error) {
	_ = d.conn.SetReadDeadline(time.Now().Add(sockSlice))
	return d.conn.Read(p)
}

func (d *deadlineSock) Write(p []byte) (int, error) {
	_ = d.conn.SetWriteDeadline(time.Now().Add(sockSlice))
	return d.conn.Write(p)
}

func (d *deadlineSock) Close() error {
	return d.conn.Close()
}

func (d *deadlineSock) RemoteAddr() net.Addr {
	return d.conn.RemoteAddr()
}

func (d *deadlineSock) Fd() int {
	return d.fd
}
