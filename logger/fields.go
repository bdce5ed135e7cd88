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

package logger

import (
	"maps"

	"github.com/sirupsen/logrus"
)

// Fields are the structured key/value pairs attached to every entry of a logger.
// Mutating operations return a copy, so a Fields value handed to a logger is never
// changed behind its back.
type Fields map[string]interface{}

func NewFields() Fields {
	return make(Fields)
}

// Add returns a copy with one pair set.
func (f Fields) Add(key string, val interface{}) Fields {
	out := maps.Clone(f)
	if out == nil {
		out = make(Fields, 1)
	}

	out[key] = val

	return out
}

// Merge returns a copy with every pair of other set, other winning on conflicts.
func (f Fields) Merge(other Fields) Fields {
	if len(other) == 0 {
		return f
	}

	out := maps.Clone(f)
	if out == nil {
		out = make(Fields, len(other))
	}

	maps.Copy(out, other)

	return out
}

// Logrus renders the fields for the backing logger.
func (f Fields) Logrus() logrus.Fields {
	return logrus.Fields(maps.Clone(f))
}
