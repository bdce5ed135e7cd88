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

package route_test

import (
	"testing"

	"github.com/nabbar/proxycore/route"
)

func mustPath(t *testing.T, kind route.PathKind, pattern string) route.PathRule {
	t.Helper()

	p, err := route.NewPathRule(kind, pattern)
	if err != nil {
		t.Fatalf("NewPathRule(%v, %q): %v", kind, pattern, err)
	}

	return p
}

func clusterRule(t *testing.T, id, host string, kind route.PathKind, pattern string, pos route.Position, cluster string) *route.Rule {
	t.Helper()

	return &route.Rule{
		RuleID:   id,
		Hostname: host,
		Path:     mustPath(t, kind, pattern),
		Method:   route.MethodAny,
		Position: pos,
		Target:   route.Target{Kind: route.TargetCluster, ClusterID: cluster},
	}
}

func resolve(t *testing.T, r *route.Router, host, uri, method string) route.Target {
	t.Helper()

	target, err := r.FrontendFromRequest(host, uri, method)
	if err != nil {
		t.Fatalf("FrontendFromRequest(%q, %q, %q): %v", host, uri, method, err)
	}

	return target
}

func TestTreeBeatsCatchAllPre(t *testing.T) {
	r := route.NewRouter()

	if err := r.AddRule(clusterRule(t, "catchall", "example.com", route.PathPrefix, "/", route.Pre, "fallback")); err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	if err := r.AddRule(clusterRule(t, "api", "example.com", route.PathPrefix, "/api", route.Tree, "api")); err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	if got := resolve(t, r, "example.com", "/api/x", "GET"); got.ClusterID != "api" {
		t.Fatalf("scoped tree rule must win over catch-all pre, got cluster %q", got.ClusterID)
	}
	if got := resolve(t, r, "example.com", "/other", "GET"); got.ClusterID != "fallback" {
		t.Fatalf("unscoped path must fall to the pre rule, got cluster %q", got.ClusterID)
	}
}

func TestPositionsAndSpecificity(t *testing.T) {
	r := route.NewRouter()

	if err := r.AddRule(clusterRule(t, "other", "example.com", route.PathExact, "/other", route.Pre, "pre")); err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	if err := r.AddRule(clusterRule(t, "api", "example.com", route.PathPrefix, "/api", route.Tree, "api")); err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	if err := r.AddRule(clusterRule(t, "post", "example.com", route.PathPrefix, "/", route.Post, "default")); err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	if got := resolve(t, r, "example.com", "/api/x", "GET"); got.ClusterID != "api" {
		t.Fatalf("/api/x should hit the tree rule, got %q", got.ClusterID)
	}
	if got := resolve(t, r, "example.com", "/other", "GET"); got.ClusterID != "pre" {
		t.Fatalf("/other should hit the pre rule, got %q", got.ClusterID)
	}
	if got := resolve(t, r, "example.com", "/elsewhere", "GET"); got.ClusterID != "default" {
		t.Fatalf("/elsewhere should fall through to post, got %q", got.ClusterID)
	}
}

func TestLongerPrefixWins(t *testing.T) {
	r := route.NewRouter()

	// insertion order is shortest first; specificity sorting must still prefer /api/v1
	if err := r.AddRule(clusterRule(t, "api", "example.com", route.PathPrefix, "/api", route.Tree, "api")); err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	if err := r.AddRule(clusterRule(t, "apiv1", "example.com", route.PathPrefix, "/api/v1", route.Tree, "apiv1")); err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	if got := resolve(t, r, "example.com", "/api/v1/users", "GET"); got.ClusterID != "apiv1" {
		t.Fatalf("longest prefix should win, got %q", got.ClusterID)
	}
	if got := resolve(t, r, "example.com", "/api/v2/users", "GET"); got.ClusterID != "api" {
		t.Fatalf("shorter prefix should still match, got %q", got.ClusterID)
	}
}

func TestExactBeatsPrefixBeatsRegex(t *testing.T) {
	r := route.NewRouter()

	if err := r.AddRule(clusterRule(t, "rx", "example.com", route.PathRegex, "^/item/[0-9]+$", route.Tree, "regex")); err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	if err := r.AddRule(clusterRule(t, "px", "example.com", route.PathPrefix, "/item/", route.Tree, "prefix")); err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	if err := r.AddRule(clusterRule(t, "ex", "example.com", route.PathExact, "/item/42", route.Tree, "exact")); err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	if got := resolve(t, r, "example.com", "/item/42", "GET"); got.ClusterID != "exact" {
		t.Fatalf("exact should win, got %q", got.ClusterID)
	}
	if got := resolve(t, r, "example.com", "/item/7", "GET"); got.ClusterID != "prefix" {
		t.Fatalf("prefix should beat regex, got %q", got.ClusterID)
	}
}

func TestHostPrecedence(t *testing.T) {
	r := route.NewRouter()

	if err := r.AddRule(clusterRule(t, "any", "*", route.PathPrefix, "/", route.Tree, "any")); err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	if err := r.AddRule(clusterRule(t, "wild", "*.example.com", route.PathPrefix, "/", route.Tree, "wild")); err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	if err := r.AddRule(clusterRule(t, "exact", "www.example.com", route.PathPrefix, "/", route.Tree, "exact")); err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	if got := resolve(t, r, "www.example.com", "/", "GET"); got.ClusterID != "exact" {
		t.Fatalf("exact host should win, got %q", got.ClusterID)
	}
	if got := resolve(t, r, "api.example.com", "/", "GET"); got.ClusterID != "wild" {
		t.Fatalf("wildcard host should beat catch-all, got %q", got.ClusterID)
	}
	if got := resolve(t, r, "elsewhere.net", "/", "GET"); got.ClusterID != "any" {
		t.Fatalf("catch-all should match, got %q", got.ClusterID)
	}
	// host ports are stripped before matching
	if got := resolve(t, r, "www.example.com:8080", "/", "GET"); got.ClusterID != "exact" {
		t.Fatalf("host with port should match exact rule, got %q", got.ClusterID)
	}
}

func TestMethodFilterAndNoMatch(t *testing.T) {
	r := route.NewRouter()

	rule := clusterRule(t, "posts", "example.com", route.PathExact, "/submit", route.Tree, "writer")
	rule.Method = "POST"
	if err := r.AddRule(rule); err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	if got := resolve(t, r, "example.com", "/submit", "POST"); got.ClusterID != "writer" {
		t.Fatalf("POST should match, got %q", got.ClusterID)
	}

	if _, err := r.FrontendFromRequest("example.com", "/submit", "GET"); err == nil {
		t.Fatal("GET must not match a POST-only rule")
	} else if !err.IsCode(route.ErrorNoMatch) {
		t.Fatalf("want ErrorNoMatch, got %v", err)
	}
}

func TestRedirectDirective(t *testing.T) {
	r := route.NewRouter()

	if err := r.AddRule(&route.Rule{
		RuleID:   "https",
		Hostname: "secure.example.com",
		Path:     mustPath(t, route.PathPrefix, "/"),
		Method:   route.MethodAny,
		Position: route.Tree,
		Target:   route.Target{Kind: route.TargetRedirectHTTPS},
	}); err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	got := resolve(t, r, "secure.example.com", "/login", "GET")
	if got.Kind != route.TargetRedirectHTTPS {
		t.Fatalf("want redirect directive, got kind %v", got.Kind)
	}
}

func TestRemoveRule(t *testing.T) {
	r := route.NewRouter()

	if err := r.AddRule(clusterRule(t, "api", "example.com", route.PathPrefix, "/api", route.Tree, "api")); err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	if err := r.AddRule(clusterRule(t, "api", "example.com", route.PathPrefix, "/api2", route.Tree, "api2")); err == nil {
		t.Fatal("duplicate rule id must be rejected")
	}

	if err := r.RemoveRule("api"); err != nil {
		t.Fatalf("RemoveRule: %v", err)
	}
	if err := r.RemoveRule("api"); err == nil {
		t.Fatal("removing an absent rule must fail")
	}

	if _, err := r.FrontendFromRequest("example.com", "/api/x", "GET"); err == nil {
		t.Fatal("removed rule must not match")
	}
}
