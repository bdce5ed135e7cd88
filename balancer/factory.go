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

package balancer

import (
	"time"

	"github.com/nabbar/proxycore/errors"
)

// NewStrategy resolves a strategy by its configured name. An empty name selects
// round-robin. Sticky is a wrapper, not a base strategy; callers enable it per
// cluster around the strategy returned here.
func NewStrategy(name string) (Strategy, errors.Error) {
	switch name {
	case "", "round_robin", "roundrobin":
		return NewRoundRobin(), nil
	case "random":
		return NewRandom(time.Now().UnixNano()), nil
	case "least_loaded", "leastloaded", "least_conn":
		return NewLeastLoaded(), nil
	default:
		return nil, ErrorUnknownStrategy.Error(nil)
	}
}
