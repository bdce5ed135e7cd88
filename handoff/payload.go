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

// Package handoff transfers listening sockets and a state snapshot to a successor
// worker over a unix socket pair, so an upgrade never closes a bound port.
package handoff

import (
	"bytes"
	"io"

	hcuuid "github.com/hashicorp/go-uuid"
	hcvers "github.com/hashicorp/go-version"
	"github.com/nabbar/proxycore/config"
	"github.com/nabbar/proxycore/errors"
	"github.com/pierrec/lz4/v4"
	"github.com/ugorji/go/codec"
)

// ProtocolVersion is this worker's handoff protocol version. A successor accepts a
// predecessor within the same major version.
const ProtocolVersion = "1.0.0"

// ListenerGroup carries the descriptors of one wire protocol; indexes into the fd
// list passed out of band.
type ListenerGroup struct {
	Protocol string                  `codec:"protocol"`
	Configs  []config.ListenerConfig `codec:"configs"`
}

// Payload is the in-band part of a handoff: version negotiation material, a run id
// for tracing the swap across both processes, the fd grouping, and the compressed
// state snapshot to replay.
type Payload struct {
	Version string `codec:"version"`
	RunID   string `codec:"runId"`

	// Groups describe the passed descriptors, in the exact order the fds travel in
	// the control message.
	Groups []ListenerGroup `codec:"groups"`

	// Snapshot is the plane snapshot document the successor replays.
	Snapshot []byte `codec:"snapshot"`
}

// NewRunID issues the id stamped on both sides of one handoff.
func NewRunID() string {
	id, err := hcuuid.GenerateUUID()
	if err != nil {
		return "run-unknown"
	}

	return id
}

// CheckVersion accepts a peer within the same major version.
func CheckVersion(peer string) errors.Error {
	mine, err := hcvers.NewVersion(ProtocolVersion)
	if err != nil {
		return ErrorVersionMismatch.Error(err)
	}

	theirs, err := hcvers.NewVersion(peer)
	if err != nil {
		return ErrorVersionMismatch.Error(err)
	}

	if mine.Segments()[0] != theirs.Segments()[0] {
		return ErrorVersionMismatch.Error(nil)
	}

	return nil
}

var msgpackHandle = &codec.MsgpackHandle{}

// EncodePayload renders the payload as lz4-compressed msgpack.
func EncodePayload(p *Payload) ([]byte, errors.Error) {
	var raw bytes.Buffer

	enc := codec.NewEncoder(&raw, msgpackHandle)
	if err := enc.Encode(p); err != nil {
		return nil, ErrorEncodePayload.Error(err)
	}

	var out bytes.Buffer

	w := lz4.NewWriter(&out)
	if _, err := w.Write(raw.Bytes()); err != nil {
		return nil, ErrorEncodePayload.Error(err)
	}
	if err := w.Close(); err != nil {
		return nil, ErrorEncodePayload.Error(err)
	}

	return out.Bytes(), nil
}

// DecodePayload parses an lz4-compressed msgpack payload.
func DecodePayload(doc []byte) (*Payload, errors.Error) {
	r := lz4.NewReader(bytes.NewReader(doc))

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, ErrorDecodePayload.Error(err)
	}

	p := &Payload{}

	dec := codec.NewDecoder(bytes.NewReader(raw), msgpackHandle)
	if err := dec.Decode(p); err != nil {
		return nil, ErrorDecodePayload.Error(err)
	}

	return p, nil
}
