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

//go:build !linux && !windows

package worker

import (
	"time"

	"github.com/nabbar/proxycore/errors"
	"github.com/nabbar/proxycore/token"
	"golang.org/x/sys/unix"
)

// pollPoller is the portable fallback over poll(2) for platforms without epoll.
type pollPoller struct {
	fds map[int]pollReg
}

type pollReg struct {
	tok   token.Token
	read  bool
	write bool
}

// NewPoller creates the platform poller.
func NewPoller() (Poller, errors.Error) {
	return &pollPoller{fds: make(map[int]pollReg)}, nil
}

func (p *pollPoller) Register(fd int, tok token.Token, read, write bool) errors.Error {
	p.fds[fd] = pollReg{tok: tok, read: read, write: write}
	return nil
}

func (p *pollPoller) Modify(fd int, tok token.Token, read, write bool) errors.Error {
	p.fds[fd] = pollReg{tok: tok, read: read, write: write}
	return nil
}

func (p *pollPoller) Unregister(fd int) errors.Error {
	delete(p.fds, fd)
	return nil
}

func (p *pollPoller) Wait(timeout time.Duration) ([]PollEvent, errors.Error) {
	if len(p.fds) == 0 {
		time.Sleep(timeout)
		return nil, nil
	}

	pfds := make([]unix.PollFd, 0, len(p.fds))
	toks := make([]token.Token, 0, len(p.fds))

	for fd, reg := range p.fds {
		var events int16
		if reg.read {
			events |= unix.POLLIN
		}
		if reg.write {
			events |= unix.POLLOUT
		}

		pfds = append(pfds, unix.PollFd{Fd: int32(fd), Events: events})
		toks = append(toks, reg.tok)
	}

	ms := int(timeout / time.Millisecond)
	if timeout > 0 && ms == 0 {
		ms = 1
	}

	n, err := unix.Poll(pfds, ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, ErrorIO.Error(err)
	}

	if n == 0 {
		return nil, nil
	}

	out := make([]PollEvent, 0, n)
	for i, pfd := range pfds {
		if pfd.Revents == 0 {
			continue
		}

		out = append(out, PollEvent{
			Token:    toks[i],
			Readable: pfd.Revents&unix.POLLIN != 0,
			Writable: pfd.Revents&unix.POLLOUT != 0,
			Error:    pfd.Revents&unix.POLLERR != 0,
			Hangup:   pfd.Revents&unix.POLLHUP != 0,
		})
	}

	return out, nil
}

func (p *pollPoller) Close() error {
	return nil
}
