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

package admin_test

import (
	"path/filepath"
	"testing"

	"github.com/nabbar/proxycore/admin"
	"github.com/nabbar/proxycore/backend"
	"github.com/nabbar/proxycore/config"
	"github.com/nabbar/proxycore/errors"
	"github.com/nabbar/proxycore/route"
)

type hookTrace struct {
	softStops int
	hardStops int
	listeners map[string]config.ListenerConfig
}

func newPlane(t *testing.T) (*admin.Plane, *hookTrace) {
	t.Helper()

	trace := &hookTrace{listeners: map[string]config.ListenerConfig{}}

	hooks := admin.Hooks{
		ActivateListener: func(cfg config.ListenerConfig) errors.Error {
			trace.listeners[cfg.Address] = cfg
			return nil
		},
		DeactivateListener: func(addr string) errors.Error {
			delete(trace.listeners, addr)
			return nil
		},
		AddCertificate:    func(config.CertificateConfig) errors.Error { return nil },
		RemoveCertificate: func(string, string) errors.Error { return nil },
		SoftStop:          func() { trace.softStops++ },
		HardStop:          func() { trace.hardStops++ },
		ReturnListenSockets: func() errors.Error { return nil },
		Status: func() map[string]interface{} {
			return map[string]interface{}{"sessions": 0}
		},
	}

	reg := backend.NewRegistry(nil)
	return admin.NewPlane(reg, route.NewRouter(), hooks, nil), trace
}

// terminal asserts exactly one terminal response, echoing the request id.
func terminal(t *testing.T, id string, rsps []admin.WorkerResponse) admin.WorkerResponse {
	t.Helper()

	var term []admin.WorkerResponse

	for _, r := range rsps {
		if r.ID != id {
			t.Fatalf("response id %q does not echo request id %q", r.ID, id)
		}
		if r.Status != admin.StatusProcessing {
			term = append(term, r)
		}
	}

	if len(term) != 1 {
		t.Fatalf("want exactly one terminal response, got %d: %+v", len(term), rsps)
	}

	return term[0]
}

func TestApplyClusterBackendFrontend(t *testing.T) {
	p, _ := newPlane(t)

	r := terminal(t, "1", p.Apply(admin.WorkerRequest{
		ID:   "1",
		Type: admin.ReqAddCluster,
		Payload: map[string]interface{}{
			"clusterId":     "c1",
			"stickySession": true,
			"custom503":     "down",
		},
	}))
	if r.Status != admin.StatusOk {
		t.Fatalf("add cluster: %+v", r)
	}

	r = terminal(t, "2", p.Apply(admin.WorkerRequest{
		ID:   "2",
		Type: admin.ReqAddBackend,
		Payload: map[string]interface{}{
			"clusterId": "c1",
			"backendId": "b1",
			"address":   "127.0.0.1:9000",
		},
	}))
	if r.Status != admin.StatusOk {
		t.Fatalf("add backend: %+v", r)
	}

	r = terminal(t, "3", p.Apply(admin.WorkerRequest{
		ID:   "3",
		Type: admin.ReqAddHTTPFrontend,
		Payload: map[string]interface{}{
			"ruleId":    "r1",
			"address":   "0.0.0.0:8080",
			"hostname":  "example.com",
			"path":      "/",
			"clusterId": "c1",
		},
	}))
	if r.Status != admin.StatusOk {
		t.Fatalf("add frontend: %+v", r)
	}

	// duplicate cluster must fail with a terminal error, same id discipline
	r = terminal(t, "4", p.Apply(admin.WorkerRequest{
		ID:   "4",
		Type: admin.ReqAddCluster,
		Payload: map[string]interface{}{
			"clusterId": "c1",
		},
	}))
	if r.Status != admin.StatusError {
		t.Fatalf("duplicate cluster must fail: %+v", r)
	}
}

func TestApplyUnknownAndBadPayload(t *testing.T) {
	p, _ := newPlane(t)

	r := terminal(t, "9", p.Apply(admin.WorkerRequest{ID: "9", Type: "bogus"}))
	if r.Status != admin.StatusError {
		t.Fatalf("unknown request must fail: %+v", r)
	}

	r = terminal(t, "10", p.Apply(admin.WorkerRequest{
		ID:      "10",
		Type:    admin.ReqAddBackend,
		Payload: map[string]interface{}{"clusterId": "c1"},
	}))
	if r.Status != admin.StatusError {
		t.Fatalf("incomplete payload must fail: %+v", r)
	}
}

func TestStopsMatchRequestID(t *testing.T) {
	p, trace := newPlane(t)

	r := terminal(t, "soft-1", p.Apply(admin.WorkerRequest{ID: "soft-1", Type: admin.ReqSoftStop}))
	if r.Status != admin.StatusOk || trace.softStops != 1 {
		t.Fatalf("soft stop: %+v stops=%d", r, trace.softStops)
	}

	// the hard stop acknowledgement carries the request's own id, like every other
	// command
	r = terminal(t, "hard-7", p.Apply(admin.WorkerRequest{ID: "hard-7", Type: admin.ReqHardStop}))
	if r.ID != "hard-7" || r.Status != admin.StatusOk {
		t.Fatalf("hard stop must echo its id: %+v", r)
	}
	if trace.hardStops != 1 {
		t.Fatalf("hard stop not invoked")
	}
}

func TestStatusCarriesWorkerData(t *testing.T) {
	p, _ := newPlane(t)

	r := terminal(t, "st", p.Apply(admin.WorkerRequest{ID: "st", Type: admin.ReqStatus}))
	if r.Status != admin.StatusOk {
		t.Fatalf("status: %+v", r)
	}

	data, ok := r.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("status data shape: %T", r.Data)
	}
	if _, ok := data["sessions"]; !ok {
		t.Fatal("worker hook data missing")
	}
	if _, ok := data["uptime"]; !ok {
		t.Fatal("process data missing")
	}
}

func TestDumpSaveLoadRoundTrip(t *testing.T) {
	p, _ := newPlane(t)

	for _, req := range []admin.WorkerRequest{
		{ID: "a", Type: admin.ReqActivateListener, Payload: map[string]interface{}{
			"address": "0.0.0.0:8080", "protocol": "http",
		}},
		{ID: "b", Type: admin.ReqAddCluster, Payload: map[string]interface{}{"clusterId": "c1"}},
		{ID: "c", Type: admin.ReqAddBackend, Payload: map[string]interface{}{
			"clusterId": "c1", "backendId": "b1", "address": "127.0.0.1:9000",
		}},
		{ID: "d", Type: admin.ReqAddHTTPFrontend, Payload: map[string]interface{}{
			"ruleId": "r1", "address": "0.0.0.0:8080", "hostname": "example.com", "clusterId": "c1",
		}},
	} {
		if r := terminal(t, req.ID, p.Apply(req)); r.Status != admin.StatusOk {
			t.Fatalf("setup %s: %+v", req.Type, r)
		}
	}

	// dump renders in all three formats
	for _, format := range []string{"toml", "yaml", "json"} {
		r := terminal(t, "dump", p.Apply(admin.WorkerRequest{
			ID: "dump", Type: admin.ReqDumpState,
			Payload: map[string]interface{}{"format": format},
		}))
		if r.Status != admin.StatusOk {
			t.Fatalf("dump %s: %+v", format, r)
		}
		if doc, _ := r.Data.(string); doc == "" {
			t.Fatalf("dump %s produced nothing", format)
		}
	}

	path := filepath.Join(t.TempDir(), "state.xz")

	r := terminal(t, "save", p.Apply(admin.WorkerRequest{
		ID: "save", Type: admin.ReqSaveState,
		Payload: map[string]interface{}{"path": path},
	}))
	if r.Status != admin.StatusOk {
		t.Fatalf("save: %+v", r)
	}

	// a fresh plane replays the snapshot to equivalence
	p2, trace2 := newPlane(t)

	r = terminal(t, "load", p2.Apply(admin.WorkerRequest{
		ID: "load", Type: admin.ReqLoadState,
		Payload: map[string]interface{}{"path": path},
	}))
	if r.Status != admin.StatusOk {
		t.Fatalf("load: %+v", r)
	}

	if _, ok := trace2.listeners["0.0.0.0:8080"]; !ok {
		t.Fatal("listener not replayed")
	}

	s1, err := admin.RenderSnapshot(p.Snapshot(), "toml")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	s2, err := admin.RenderSnapshot(p2.Snapshot(), "toml")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if string(s1) != string(s2) {
		t.Fatalf("replayed snapshot differs:\n%s\n---\n%s", s1, s2)
	}
}
