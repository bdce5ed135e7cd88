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

package handoff

import (
	"encoding/binary"
	"net"

	"github.com/nabbar/proxycore/errors"
	"golang.org/x/sys/unix"
)

// Send writes the payload and passes the listening descriptors over the unix
// connection. The fds travel in one SCM_RIGHTS control message, ordered exactly as
// the payload's groups describe them.
func Send(conn *net.UnixConn, p *Payload, fds []int) errors.Error {
	doc, err := EncodePayload(p)
	if err != nil {
		return err
	}

	var head [4]byte
	binary.BigEndian.PutUint32(head[:], uint32(len(doc)))

	if _, werr := conn.Write(head[:]); werr != nil {
		return ErrorChannel.Error(werr)
	}
	if _, werr := conn.Write(doc); werr != nil {
		return ErrorChannel.Error(werr)
	}

	rights := unix.UnixRights(fds...)

	// one marker byte carries the control message
	if _, _, werr := conn.WriteMsgUnix([]byte{0x1}, rights, nil); werr != nil {
		return ErrorSendRights.Error(werr)
	}

	return nil
}

// Recv reads the payload and collects the passed descriptors. The returned fds are
// in payload group order and already inherit the bound ports, no rebind happens.
func Recv(conn *net.UnixConn) (*Payload, []int, errors.Error) {
	var head [4]byte

	if _, err := readFull(conn, head[:]); err != nil {
		return nil, nil, ErrorChannel.Error(err)
	}

	size := binary.BigEndian.Uint32(head[:])
	doc := make([]byte, size)

	if _, err := readFull(conn, doc); err != nil {
		return nil, nil, ErrorChannel.Error(err)
	}

	p, derr := DecodePayload(doc)
	if derr != nil {
		return nil, nil, derr
	}

	if err := CheckVersion(p.Version); err != nil {
		return nil, nil, err
	}

	buf := make([]byte, 1)
	oob := make([]byte, unix.CmsgSpace(4*64))

	_, oobn, _, _, err := conn.ReadMsgUnix(buf, oob)
	if err != nil {
		return nil, nil, ErrorRecvRights.Error(err)
	}

	msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return nil, nil, ErrorRecvRights.Error(err)
	}

	var fds []int

	for _, m := range msgs {
		got, err := unix.ParseUnixRights(&m)
		if err != nil {
			return nil, nil, ErrorRecvRights.Error(err)
		}
		fds = append(fds, got...)
	}

	return p, fds, nil
}

func readFull(conn *net.UnixConn, p []byte) (int, error) {
	total := 0

	for total < len(p) {
		n, err := conn.Read(p[total:])
		total += n

		if err != nil {
			return total, err
		}
	}

	return total, nil
}
