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

// Package route maps (host, path, method) to a cluster or a terminal directive. The
// rule table is partitioned by position: Pre and Tree rules compete on match
// specificity, with Pre winning exact ties, and Post rules are consulted in insertion
// order only when neither Pre nor Tree matched.
package route

import (
	"strings"
	"sync"

	"github.com/nabbar/proxycore/errors"
	"golang.org/x/exp/slices"
)

// Router holds one listener's frontend rules. Mutation comes only from the admin
// plane between event-loop iterations; matching runs on the worker goroutine.
type Router struct {
	mu sync.Mutex

	pre  []*Rule
	tree []*Rule
	post []*Rule

	notFound []byte
}

func NewRouter() *Router {
	return &Router{
		notFound: []byte("404 Not Found"),
	}
}

// SetNotFound replaces the body served when no rule matches.
func (r *Router) SetNotFound(body []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(body) > 0 {
		r.notFound = body
	}
}

// NotFound returns the configured no-match body.
func (r *Router) NotFound() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.notFound
}

// AddRule inserts a rule into its position's partition. Tree rules are kept sorted by
// descending specificity; equally specific rules keep insertion order.
func (r *Router) AddRule(rule *Rule) errors.Error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.find(rule.RuleID) != nil {
		return ErrorRuleExists.Error(nil)
	}

	switch rule.Position {
	case Pre:
		r.pre = append(r.pre, rule)
	case Post:
		r.post = append(r.post, rule)
	default:
		r.tree = append(r.tree, rule)
		slices.SortStableFunc(r.tree, func(a, b *Rule) int {
			switch {
			case a.lessSpecificThan(b):
				return 1
			case b.lessSpecificThan(a):
				return -1
			default:
				return 0
			}
		})
	}

	return nil
}

// RemoveRule drops a rule by id.
func (r *Router) RemoveRule(ruleID string) errors.Error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, part := range []*[]*Rule{&r.pre, &r.tree, &r.post} {
		for i, rule := range *part {
			if rule.RuleID == ruleID {
				*part = append((*part)[:i], (*part)[i+1:]...)
				return nil
			}
		}
	}

	return ErrorRuleUnknown.Error(nil)
}

func (r *Router) find(ruleID string) *Rule {
	for _, part := range [][]*Rule{r.pre, r.tree, r.post} {
		for _, rule := range part {
			if rule.RuleID == ruleID {
				return rule
			}
		}
	}

	return nil
}

// FrontendFromRequest resolves a request to its target. The host is normalized by
// stripping any port; the uri is matched on its path component only.
//
// Pre and Tree rules compete on match specificity (host rank, then path kind, then
// pattern length), with Pre winning exact ties in insertion order. Post rules are a
// pure fallback, consulted only when neither Pre nor Tree matched. This keeps a
// scoped Tree rule like /api authoritative for its subtree even under a catch-all
// Pre rule on /.
func (r *Router) FrontendFromRequest(host, uri, method string) (Target, errors.Error) {
	host = stripPort(host)
	path := stripQuery(uri)

	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		best     *Rule
		bestRank matchRank
	)

	for pi, part := range [][]*Rule{r.pre, r.tree} {
		for idx, rule := range part {
			hr := hostMatch(rule.Hostname, host)
			if hr < 0 || !rule.matches(host, path, method) {
				continue
			}

			rank := matchRank{
				host:     hr,
				pathKind: int(PathRegex - rule.Path.Kind),
				pathLen:  len(rule.Path.Pattern),
				prePart:  1 - pi,
				order:    -idx,
			}

			if best == nil || bestRank.less(rank) {
				best, bestRank = rule, rank
			}
		}
	}

	if best != nil {
		return best.Target, nil
	}

	for _, rule := range r.post {
		if rule.matches(host, path, method) {
			return rule.Target, nil
		}
	}

	return Target{}, ErrorNoMatch.Error(nil)
}

// matchRank orders candidate matches; higher wins.
type matchRank struct {
	host     int
	pathKind int
	pathLen  int
	prePart  int
	order    int
}

func (m matchRank) less(o matchRank) bool {
	if m.host != o.host {
		return m.host < o.host
	}
	if m.pathKind != o.pathKind {
		return m.pathKind < o.pathKind
	}
	if m.pathLen != o.pathLen {
		return m.pathLen < o.pathLen
	}
	if m.prePart != o.prePart {
		return m.prePart < o.prePart
	}

	return m.order < o.order
}

// Rules returns a copy of every rule, Pre then Tree then Post, for state dumps.
func (r *Router) Rules() []*Rule {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Rule, 0, len(r.pre)+len(r.tree)+len(r.post))
	out = append(out, r.pre...)
	out = append(out, r.tree...)
	out = append(out, r.post...)

	return out
}

func stripPort(host string) string {
	if i := strings.LastIndexByte(host, ':'); i >= 0 && strings.IndexByte(host[i:], ']') < 0 {
		return host[:i]
	}

	return host
}

func stripQuery(uri string) string {
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		return uri[:i]
	}

	return uri
}
