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

//go:build linux

package worker

import (
	"time"

	"github.com/nabbar/proxycore/errors"
	"github.com/nabbar/proxycore/token"
	"golang.org/x/sys/unix"
)

// epollPoller is the linux implementation; events carry the token in the epoll
// user-data field so Wait resolves them without a lookup.
type epollPoller struct {
	epfd int
	fds  map[int]token.Token
}

// NewPoller creates the platform poller.
func NewPoller() (Poller, errors.Error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, ErrorPollerCreate.Error(err)
	}

	return &epollPoller{
		epfd: epfd,
		fds:  make(map[int]token.Token),
	}, nil
}

func epollMask(read, write bool) uint32 {
	var mask uint32 = unix.EPOLLRDHUP

	if read {
		mask |= unix.EPOLLIN
	}
	if write {
		mask |= unix.EPOLLOUT
	}

	return mask
}

func (p *epollPoller) Register(fd int, tok token.Token, read, write bool) errors.Error {
	// the token rides in the event payload's Fd field
	ev := unix.EpollEvent{Events: epollMask(read, write), Fd: int32(tok), Pad: int32(fd)}

	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return ErrorRegister.Error(err)
	}

	p.fds[fd] = tok

	return nil
}

func (p *epollPoller) Modify(fd int, tok token.Token, read, write bool) errors.Error {
	ev := unix.EpollEvent{Events: epollMask(read, write), Fd: int32(tok), Pad: int32(fd)}

	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return ErrorRegister.Error(err)
	}

	p.fds[fd] = tok

	return nil
}

func (p *epollPoller) Unregister(fd int) errors.Error {
	delete(p.fds, fd)

	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return ErrorRegister.Error(err)
	}

	return nil
}

func (p *epollPoller) Wait(timeout time.Duration) ([]PollEvent, errors.Error) {
	ms := int(timeout / time.Millisecond)
	if timeout > 0 && ms == 0 {
		ms = 1
	}

	var events [128]unix.EpollEvent

	n, err := unix.EpollWait(p.epfd, events[:], ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, ErrorIO.Error(err)
	}

	out := make([]PollEvent, 0, n)
	for i := 0; i < n; i++ {
		e := events[i]
		out = append(out, PollEvent{
			Token:    token.Token(uint32(e.Fd)),
			Readable: e.Events&unix.EPOLLIN != 0,
			Writable: e.Events&unix.EPOLLOUT != 0,
			Error:    e.Events&unix.EPOLLERR != 0,
			Hangup:   e.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0,
		})
	}

	return out, nil
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}
