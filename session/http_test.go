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
	"strings"
	"testing"
)

func TestParseRequestHeadIncremental(t *testing.T) {
	full := "POST /submit HTTP/1.1\r\nHost: example.com\r\nContent-Length: 4\r\nCookie: a=1; SOZUBALANCEID=B7\r\n\r\nbody"

	// truncated head is not an error, just incomplete
	for cut := 1; cut < len(full)-10; cut += 7 {
		h, complete, err := ParseRequestHead([]byte(full[:cut]))
		if err != nil {
			t.Fatalf("cut %d: unexpected error %v", cut, err)
		}
		if complete && h == nil {
			t.Fatalf("cut %d: complete without head", cut)
		}
	}

	h, complete, err := ParseRequestHead([]byte(full))
	if err != nil || !complete {
		t.Fatalf("full parse: complete=%v err=%v", complete, err)
	}
	if h.Method != "POST" || h.URI != "/submit" || h.Host != "example.com" {
		t.Fatalf("head mismatch: %+v", h)
	}
	if h.ContentLength != 4 {
		t.Fatalf("content length = %d", h.ContentLength)
	}
	if h.StickyID != "B7" {
		t.Fatalf("sticky id = %q", h.StickyID)
	}
}

func TestParseRequestHeadRejectsGarbage(t *testing.T) {
	if _, _, err := ParseRequestHead([]byte("NOT A REQUEST\r\n\r\n")); err == nil {
		t.Fatal("garbage must be rejected")
	}
	if _, _, err := ParseRequestHead([]byte("GET / HTTP/1.1\r\nNoColonHere\r\n\r\n")); err == nil {
		t.Fatal("malformed header must be rejected")
	}
	// missing Host on HTTP/1.1
	if _, _, err := ParseRequestHead([]byte("GET / HTTP/1.1\r\n\r\n")); err == nil {
		t.Fatal("missing host must be rejected")
	}
}

func TestParseResponseHeadBodyModes(t *testing.T) {
	h, complete, err := ParseResponseHead([]byte("HTTP/1.1 204 No Content\r\n\r\n"))
	if err != nil || !complete {
		t.Fatalf("parse: %v %v", complete, err)
	}
	if h.ContentLength != 0 {
		t.Fatalf("204 must have no body, got %d", h.ContentLength)
	}

	h, _, _ = ParseResponseHead([]byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n"))
	if !h.Chunked {
		t.Fatal("chunked not detected")
	}

	h, _, _ = ParseResponseHead([]byte("HTTP/1.0 200 OK\r\n\r\n"))
	if h.KeepAlive {
		t.Fatal("HTTP/1.0 defaults to close")
	}
	if h.ContentLength != -1 {
		t.Fatal("unknown length must be until-close")
	}
}

func TestWriteRequestRewriting(t *testing.T) {
	h, _, err := ParseRequestHead([]byte("GET / HTTP/1.1\r\nHost: example.com\r\nX-Forwarded-For: 10.1.1.1\r\nProxy-Connection: keep-alive\r\n\r\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	out := string(h.WriteRequest("192.0.2.4", "https"))

	if !strings.Contains(out, "X-Forwarded-For: 10.1.1.1, 192.0.2.4\r\n") {
		t.Fatalf("forwarded chain wrong:\n%s", out)
	}
	if !strings.Contains(out, "X-Forwarded-Proto: https\r\n") {
		t.Fatalf("proto missing:\n%s", out)
	}
	if strings.Contains(out, "Proxy-Connection") {
		t.Fatalf("hop-by-hop header kept:\n%s", out)
	}
}

func TestBodyTrackerChunked(t *testing.T) {
	h, _, _ := ParseResponseHead([]byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n"))
	tr := newResponseTracker(h)

	if tr.Feed([]byte("5\r\nhello\r\n")) {
		t.Fatal("not complete yet")
	}
	if tr.Feed([]byte("3\r\nabc\r\n")) {
		t.Fatal("not complete yet")
	}
	if !tr.Feed([]byte("0\r\n\r\n")) {
		t.Fatal("final chunk must complete the body")
	}
}

func TestBodyTrackerChunkedSplitAcrossReads(t *testing.T) {
	h, _, _ := ParseResponseHead([]byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n"))
	tr := newResponseTracker(h)

	stream := "4\r\nwiki\r\n5\r\npedia\r\n0\r\n\r\n"
	for i := 0; i < len(stream); i++ {
		done := tr.Feed([]byte{stream[i]})
		if done && i < len(stream)-1 {
			t.Fatalf("completed early at byte %d", i)
		}
	}

	if !tr.done {
		t.Fatal("split chunked body never completed")
	}
}

func TestBodyTrackerLength(t *testing.T) {
	h, _, _ := ParseRequestHead([]byte("POST / HTTP/1.1\r\nHost: h\r\nContent-Length: 10\r\n\r\n"))
	tr := newRequestTracker(h)

	if tr.Feed(make([]byte, 4)) {
		t.Fatal("4/10 must not complete")
	}
	if !tr.Feed(make([]byte, 6)) {
		t.Fatal("10/10 must complete")
	}
}
