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

package session

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/nabbar/proxycore/errors"
)

// StickyCookieName is the cookie carrying the sticky backend id.
const StickyCookieName = "SOZUBALANCEID"

var crlfcrlf = []byte("\r\n\r\n")

// header is one wire header line, name kept in its original casing.
type header struct {
	name  string
	value string
}

// RequestHead is a parsed HTTP/1 request head.
type RequestHead struct {
	Method  string
	URI     string
	Version string
	Host    string

	headers []header

	// HeadLen is the byte length of the head including the blank line.
	HeadLen int

	// ContentLength is 0 when the request carries no Content-Length header.
	ContentLength int64
	Chunked       bool
	KeepAlive     bool

	// UpgradeWebSocket is set when the request asks for a websocket upgrade.
	UpgradeWebSocket bool

	// StickyID is the sticky cookie value, empty when absent.
	StickyID string
}

// ResponseHead is a parsed HTTP/1 response head.
type ResponseHead struct {
	Version string
	Status  int

	headers []header

	HeadLen       int
	ContentLength int64
	Chunked       bool
	KeepAlive     bool
}

// ParseRequestHead parses the head of an HTTP/1 request from buf. complete is false
// while the blank line has not arrived yet; the caller keeps accumulating.
func ParseRequestHead(buf []byte) (h *RequestHead, complete bool, err errors.Error) {
	end := bytes.Index(buf, crlfcrlf)
	if end < 0 {
		return nil, false, nil
	}

	headLen := end + len(crlfcrlf)
	lines := strings.Split(string(buf[:end]), "\r\n")
	if len(lines) == 0 {
		return nil, true, ErrorProtocol.Error(nil)
	}

	parts := strings.SplitN(lines[0], " ", 3)
	if len(parts) != 3 || !strings.HasPrefix(parts[2], "HTTP/") {
		return nil, true, ErrorProtocol.Error(nil)
	}

	h = &RequestHead{
		Method:        parts[0],
		URI:           parts[1],
		Version:       parts[2],
		HeadLen:       headLen,
		ContentLength: 0,
		KeepAlive:     parts[2] != "HTTP/1.0",
	}

	var upgradeAsked, connectionUpgrade bool

	for _, line := range lines[1:] {
		i := strings.IndexByte(line, ':')
		if i <= 0 {
			return nil, true, ErrorProtocol.Error(nil)
		}

		name := line[:i]
		value := strings.TrimSpace(line[i+1:])
		h.headers = append(h.headers, header{name: name, value: value})

		switch strings.ToLower(name) {
		case "host":
			h.Host = value
		case "content-length":
			n, e := strconv.ParseInt(value, 10, 64)
			if e != nil || n < 0 {
				return nil, true, ErrorProtocol.Error(e)
			}
			h.ContentLength = n
		case "transfer-encoding":
			if strings.Contains(strings.ToLower(value), "chunked") {
				h.Chunked = true
			}
		case "connection":
			lv := strings.ToLower(value)
			if strings.Contains(lv, "close") {
				h.KeepAlive = false
			}
			if strings.Contains(lv, "upgrade") {
				connectionUpgrade = true
			}
			if strings.Contains(lv, "keep-alive") {
				h.KeepAlive = true
			}
		case "upgrade":
			if strings.Contains(strings.ToLower(value), "websocket") {
				upgradeAsked = true
			}
		case "cookie":
			if id := cookieValue(value, StickyCookieName); id != "" {
				h.StickyID = id
			}
		}
	}

	h.UpgradeWebSocket = upgradeAsked && connectionUpgrade

	if h.Host == "" && h.Version != "HTTP/1.0" {
		return nil, true, ErrorProtocol.Error(nil)
	}

	return h, true, nil
}

// ParseResponseHead parses the head of an HTTP/1 response from buf.
func ParseResponseHead(buf []byte) (h *ResponseHead, complete bool, err errors.Error) {
	end := bytes.Index(buf, crlfcrlf)
	if end < 0 {
		return nil, false, nil
	}

	headLen := end + len(crlfcrlf)
	lines := strings.Split(string(buf[:end]), "\r\n")

	parts := strings.SplitN(lines[0], " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/") {
		return nil, true, ErrorProtocol.Error(nil)
	}

	status, e := strconv.Atoi(parts[1])
	if e != nil {
		return nil, true, ErrorProtocol.Error(e)
	}

	h = &ResponseHead{
		Version:       parts[0],
		Status:        status,
		HeadLen:       headLen,
		ContentLength: -1,
		KeepAlive:     parts[0] != "HTTP/1.0",
	}

	for _, line := range lines[1:] {
		i := strings.IndexByte(line, ':')
		if i <= 0 {
			continue
		}

		name := line[:i]
		value := strings.TrimSpace(line[i+1:])
		h.headers = append(h.headers, header{name: name, value: value})

		switch strings.ToLower(name) {
		case "content-length":
			if n, e := strconv.ParseInt(value, 10, 64); e == nil && n >= 0 {
				h.ContentLength = n
			}
		case "transfer-encoding":
			if strings.Contains(strings.ToLower(value), "chunked") {
				h.Chunked = true
			}
		case "connection":
			if strings.Contains(strings.ToLower(value), "close") {
				h.KeepAlive = false
			}
		}
	}

	// 204, 304 and 1xx responses never carry a body
	if h.Status == 204 || h.Status == 304 || h.Status/100 == 1 {
		h.ContentLength = 0
	}

	return h, true, nil
}

// Header returns the first header value matching name, case-insensitively.
func (h *RequestHead) Header(name string) string {
	for _, hd := range h.headers {
		if strings.EqualFold(hd.name, name) {
			return hd.value
		}
	}

	return ""
}

// Header returns the first header value matching name, case-insensitively.
func (h *ResponseHead) Header(name string) string {
	for _, hd := range h.headers {
		if strings.EqualFold(hd.name, name) {
			return hd.value
		}
	}

	return ""
}

// hop-by-hop headers never forwarded as-is; Connection and Upgrade survive only for
// a websocket upgrade, rebuilt explicitly by the rewriter.
func hopByHop(name string) bool {
	switch strings.ToLower(name) {
	case "connection", "keep-alive", "proxy-connection",
		"proxy-authenticate", "proxy-authorization", "te", "trailer", "upgrade":
		return true
	default:
		return false
	}
}

// WriteRequest rebuilds the request head for the backend: hop-by-hop headers are
// stripped, X-Forwarded-For is appended with the client address, X-Forwarded-Proto
// carries the front scheme, and the websocket upgrade pair is re-emitted when asked.
func (h *RequestHead) WriteRequest(clientIP, proto string) []byte {
	var b bytes.Buffer

	b.WriteString(h.Method)
	b.WriteByte(' ')
	b.WriteString(h.URI)
	b.WriteByte(' ')
	b.WriteString(h.Version)
	b.WriteString("\r\n")

	var forwardedFor string

	for _, hd := range h.headers {
		if hopByHop(hd.name) {
			continue
		}

		if strings.EqualFold(hd.name, "x-forwarded-for") {
			forwardedFor = hd.value
			continue
		}
		if strings.EqualFold(hd.name, "x-forwarded-proto") {
			continue
		}

		b.WriteString(hd.name)
		b.WriteString(": ")
		b.WriteString(hd.value)
		b.WriteString("\r\n")
	}

	if forwardedFor != "" {
		forwardedFor = forwardedFor + ", " + clientIP
	} else {
		forwardedFor = clientIP
	}

	b.WriteString("X-Forwarded-For: ")
	b.WriteString(forwardedFor)
	b.WriteString("\r\n")
	b.WriteString("X-Forwarded-Proto: ")
	b.WriteString(proto)
	b.WriteString("\r\n")

	if h.UpgradeWebSocket {
		b.WriteString("Connection: Upgrade\r\nUpgrade: websocket\r\n")
	} else if !h.KeepAlive {
		b.WriteString("Connection: close\r\n")
	}

	b.WriteString("\r\n")

	return b.Bytes()
}

// WriteResponse rebuilds the response head for the client, optionally injecting the
// sticky cookie so the next request pins to the same backend.
func (h *ResponseHead) WriteResponse(stickyID string, statusLine string) []byte {
	var b bytes.Buffer

	if statusLine != "" {
		b.WriteString(statusLine)
	} else {
		b.WriteString(h.Version)
		b.WriteByte(' ')
		b.WriteString(strconv.Itoa(h.Status))
		b.WriteString(" ")
		b.WriteString(statusText(h.Status))
	}
	b.WriteString("\r\n")

	upgrade := h.Status == 101

	for _, hd := range h.headers {
		if hopByHop(hd.name) && !upgrade {
			continue
		}

		b.WriteString(hd.name)
		b.WriteString(": ")
		b.WriteString(hd.value)
		b.WriteString("\r\n")
	}

	if stickyID != "" {
		b.WriteString("Set-Cookie: ")
		b.WriteString(StickyCookieName)
		b.WriteString("=")
		b.WriteString(stickyID)
		b.WriteString("; Path=/\r\n")
	}

	b.WriteString("\r\n")

	return b.Bytes()
}

func cookieValue(cookies, name string) string {
	for _, part := range strings.Split(cookies, ";") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, name+"=") {
			return part[len(name)+1:]
		}
	}

	return ""
}

func statusText(status int) string {
	switch status {
	case 101:
		return "Switching Protocols"
	case 200:
		return "OK"
	case 301:
		return "Moved Permanently"
	case 404:
		return "Not Found"
	case 503:
		return "Service Unavailable"
	default:
		return "Status"
	}
}

// bodyMode selects how a message body ends.
type bodyMode uint8

const (
	bodyNone bodyMode = iota
	bodyLength
	bodyChunked
	bodyUntilClose
)

// bodyTracker follows a forwarded body so the session knows when the message is
// complete without buffering it.
type bodyTracker struct {
	mode      bodyMode
	remaining int64

	// chunked sub-state: bytes left in the current chunk, -1 while reading a size line
	chunkLeft int64
	partial   []byte
	done      bool
}

func newRequestTracker(h *RequestHead) *bodyTracker {
	switch {
	case h.Chunked:
		return &bodyTracker{mode: bodyChunked, chunkLeft: -1}
	case h.ContentLength > 0:
		return &bodyTracker{mode: bodyLength, remaining: h.ContentLength}
	default:
		return &bodyTracker{mode: bodyNone, done: true}
	}
}

func newResponseTracker(h *ResponseHead) *bodyTracker {
	switch {
	case h.Chunked:
		return &bodyTracker{mode: bodyChunked, chunkLeft: -1}
	case h.ContentLength == 0:
		return &bodyTracker{mode: bodyNone, done: true}
	case h.ContentLength > 0:
		return &bodyTracker{mode: bodyLength, remaining: h.ContentLength}
	default:
		return &bodyTracker{mode: bodyUntilClose}
	}
}

// Feed consumes forwarded body bytes and reports completion.
func (t *bodyTracker) Feed(p []byte) (complete bool) {
	if t.done {
		return true
	}

	switch t.mode {
	case bodyLength:
		t.remaining -= int64(len(p))
		if t.remaining <= 0 {
			t.done = true
		}
	case bodyChunked:
		t.feedChunked(p)
	case bodyUntilClose:
		// completion arrives as a peer close, not from the byte stream
	}

	return t.done
}

func (t *bodyTracker) feedChunked(p []byte) {
	data := p
	if len(t.partial) > 0 {
		data = append(t.partial, p...)
		t.partial = nil
	}

	for len(data) > 0 && !t.done {
		if t.chunkLeft < 0 {
			// reading a size line
			i := bytes.Index(data, []byte("\r\n"))
			if i < 0 {
				t.partial = append([]byte(nil), data...)
				return
			}

			line := strings.TrimSpace(string(data[:i]))
			if j := strings.IndexByte(line, ';'); j >= 0 {
				line = line[:j]
			}

			size, err := strconv.ParseInt(line, 16, 64)
			if err != nil {
				// malformed framing degrades to until-close
				t.mode = bodyUntilClose
				return
			}

			data = data[i+2:]

			if size == 0 {
				// trailer section then final CRLF; treat arrival of the final
				// blank line as completion
				if k := bytes.Index(data, []byte("\r\n")); k >= 0 {
					t.done = true
					return
				}
				t.partial = append([]byte("0\r\n"), data...)
				t.chunkLeft = -1
				return
			}

			// chunk payload plus its trailing CRLF
			t.chunkLeft = size + 2
		}

		n := int64(len(data))
		if n >= t.chunkLeft {
			data = data[t.chunkLeft:]
			t.chunkLeft = -1
		} else {
			t.chunkLeft -= n
			data = nil
		}
	}
}
