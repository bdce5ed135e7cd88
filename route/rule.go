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

package route

import (
	"regexp"
	"strings"

	"github.com/nabbar/proxycore/errors"
)

// Position controls evaluation: Pre and Tree rules compete on match specificity, Pre
// winning exact ties; Post rules are a fallback tried in insertion order.
type Position uint8

const (
	Pre Position = iota
	Tree
	Post
)

func (p Position) String() string {
	switch p {
	case Pre:
		return "pre"
	case Tree:
		return "tree"
	case Post:
		return "post"
	default:
		return "unknown"
	}
}

// PathKind orders path rules within a position: exact beats prefix beats regex.
type PathKind uint8

const (
	PathExact PathKind = iota
	PathPrefix
	PathRegex
)

// PathRule matches a request path.
type PathRule struct {
	Kind    PathKind
	Pattern string

	re *regexp.Regexp
}

func NewPathRule(kind PathKind, pattern string) (PathRule, errors.Error) {
	r := PathRule{Kind: kind, Pattern: pattern}

	if kind == PathRegex {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return PathRule{}, ErrorInvalidPattern.Error(err)
		}
		r.re = re
	}

	return r, nil
}

func (p PathRule) Match(path string) bool {
	switch p.Kind {
	case PathExact:
		return path == p.Pattern
	case PathPrefix:
		return strings.HasPrefix(path, p.Pattern)
	case PathRegex:
		return p.re != nil && p.re.MatchString(path)
	default:
		return false
	}
}

// MethodAny matches every verb.
const MethodAny = ""

// TargetKind distinguishes a cluster dispatch from a terminal directive.
type TargetKind uint8

const (
	TargetCluster TargetKind = iota
	TargetRedirectHTTPS
	TargetFixed
)

// Target is the routing outcome: a cluster to dispatch to, a redirect to the HTTPS
// frontend, or a fixed response served without contacting any backend.
type Target struct {
	Kind      TargetKind
	ClusterID string

	// Fixed response fields, used when Kind == TargetFixed.
	Status int
	Body   []byte
}

// Rule binds a routing predicate to a target.
type Rule struct {
	RuleID   string
	Address  string
	Hostname string
	Path     PathRule
	Method   string
	Position Position
	Target   Target
}

// hostMatch ranks how a rule hostname matches a request host: exact (2), wildcard
// suffix *.example.com (1), catch-all (0). A negative rank means no match.
func hostMatch(ruleHost, reqHost string) int {
	switch {
	case ruleHost == reqHost:
		return 2
	case strings.HasPrefix(ruleHost, "*."):
		suffix := ruleHost[1:]
		if strings.HasSuffix(reqHost, suffix) && len(reqHost) > len(suffix) {
			return 1
		}
		return -1
	case ruleHost == "" || ruleHost == "*":
		return 0
	default:
		return -1
	}
}

func (r *Rule) matches(host, path, method string) bool {
	if hostMatch(r.Hostname, host) < 0 {
		return false
	}

	if r.Method != MethodAny && !strings.EqualFold(r.Method, method) {
		return false
	}

	return r.Path.Match(path)
}

// specificity orders Tree rules: higher host rank first, then exact > prefix > regex,
// then longer patterns first so /api/v1 wins over /api.
func (r *Rule) lessSpecificThan(o *Rule) bool {
	hr, ho := hostMatchRank(r.Hostname), hostMatchRank(o.Hostname)
	if hr != ho {
		return hr < ho
	}

	if r.Path.Kind != o.Path.Kind {
		return r.Path.Kind > o.Path.Kind
	}

	return len(r.Path.Pattern) < len(o.Path.Pattern)
}

// hostMatchRank ranks a rule hostname's own specificity, independent of a request.
func hostMatchRank(ruleHost string) int {
	switch {
	case ruleHost == "" || ruleHost == "*":
		return 0
	case strings.HasPrefix(ruleHost, "*."):
		return 1
	default:
		return 2
	}
}
