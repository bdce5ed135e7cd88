/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
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

// Package status carries a three-level health tri-state shared by the backend health
// monitor and the admin plane's Status response. It does not overlap with a backend's
// lifecycle status (Normal/Closing/Closed): this is the health dimension layered on top
// of a Normal backend by active/passive probing.
package status

import "strings"

// Status is a tri-state health value, ordered KO < Warn < OK so callers can take the
// minimum across a set of probes with a plain comparison.
type Status uint8

const (
	KO Status = iota
	Warn
	OK
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case Warn:
		return "Warn"
	default:
		return "KO"
	}
}

func (s Status) Int() int {
	return int(s)
}

func (s Status) Int64() int64 {
	return int64(s)
}

func (s Status) Float() float64 {
	return float64(s)
}

// NewFromInt clamps an arbitrary int64 into the tri-state range, defaulting to KO.
func NewFromInt(i int64) Status {
	switch i {
	case int64(Warn):
		return Warn
	case int64(OK):
		return OK
	default:
		return KO
	}
}

// NewFromString parses a case-insensitive status name, defaulting to KO.
func NewFromString(s string) Status {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OK":
		return OK
	case "WARN":
		return Warn
	default:
		return KO
	}
}

// Worst returns the lowest (most severe) of a set of statuses, OK if the set is empty.
func Worst(s ...Status) Status {
	w := OK
	for _, v := range s {
		if v < w {
			w = v
		}
	}
	return w
}
