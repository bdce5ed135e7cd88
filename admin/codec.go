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

package admin

import (
	"encoding/binary"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/nabbar/proxycore/errors"
)

// maxFrame bounds one admin frame; certificates are the largest legitimate payload.
const maxFrame = 1 << 20

// frame layout: 4-byte big-endian payload length, then a CBOR document.

// WriteFrame encodes v as one length-prefixed CBOR frame.
func WriteFrame(w io.Writer, v interface{}) errors.Error {
	body, err := cbor.Marshal(v)
	if err != nil {
		return ErrorFrameWrite.Error(err)
	}

	if len(body) > maxFrame {
		return ErrorFrameTooLarge.Error(nil)
	}

	var head [4]byte
	binary.BigEndian.PutUint32(head[:], uint32(len(body)))

	if _, err = w.Write(head[:]); err != nil {
		return ErrorFrameWrite.Error(err)
	}
	if _, err = w.Write(body); err != nil {
		return ErrorFrameWrite.Error(err)
	}

	return nil
}

// ReadFrame decodes one length-prefixed CBOR frame into v.
func ReadFrame(r io.Reader, v interface{}) errors.Error {
	var head [4]byte

	if _, err := io.ReadFull(r, head[:]); err != nil {
		return ErrorFrameRead.Error(err)
	}

	size := binary.BigEndian.Uint32(head[:])
	if size > maxFrame {
		return ErrorFrameTooLarge.Error(nil)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return ErrorFrameRead.Error(err)
	}

	if err := cbor.Unmarshal(body, v); err != nil {
		return ErrorFrameDecode.Error(err)
	}

	return nil
}
