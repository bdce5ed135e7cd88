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

package worker_test

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nabbar/proxycore/admin"
	"github.com/nabbar/proxycore/config"
	"github.com/nabbar/proxycore/worker"
)

// adminDriver speaks the framed protocol with a running worker, collecting every
// response by id.
type adminDriver struct {
	conn net.Conn

	mu   sync.Mutex
	rsps map[string][]admin.WorkerResponse
}

func newAdminDriver(conn net.Conn) *adminDriver {
	d := &adminDriver{conn: conn, rsps: make(map[string][]admin.WorkerResponse)}

	go func() {
		for {
			var rsp admin.WorkerResponse
			if err := admin.ReadFrame(conn, &rsp); err != nil {
				return
			}

			d.mu.Lock()
			d.rsps[rsp.ID] = append(d.rsps[rsp.ID], rsp)
			d.mu.Unlock()
		}
	}()

	return d
}

func (d *adminDriver) send(t *testing.T, req admin.WorkerRequest) {
	t.Helper()

	if err := admin.WriteFrame(d.conn, req); err != nil {
		t.Fatalf("WriteFrame(%s): %v", req.Type, err)
	}
}

// await waits for the terminal response of one request id.
func (d *adminDriver) await(t *testing.T, id string) admin.WorkerResponse {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		d.mu.Lock()
		for _, r := range d.rsps[id] {
			if r.Status != admin.StatusProcessing {
				d.mu.Unlock()
				return r
			}
		}
		d.mu.Unlock()

		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("no terminal response for %q", id)
	return admin.WorkerResponse{}
}

func (d *adminDriver) apply(t *testing.T, id string, typ admin.RequestType, payload map[string]interface{}) {
	t.Helper()

	d.send(t, admin.WorkerRequest{ID: id, Type: typ, Payload: payload})

	if rsp := d.await(t, id); rsp.Status != admin.StatusOk {
		t.Fatalf("%s: %+v", typ, rsp)
	}
}

// echoBackend answers every HTTP request with a canned body and records what it saw.
type echoBackend struct {
	lis  net.Listener
	addr string

	mu   sync.Mutex
	seen []string
}

func newEchoBackend(t *testing.T, body string) *echoBackend {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("backend listen: %v", err)
	}

	b := &echoBackend{lis: lis, addr: lis.Addr().String()}

	go func() {
		for {
			conn, err := lis.Accept()
			if err != nil {
				return
			}

			go func(c net.Conn) {
				defer func() {
					_ = c.Close()
				}()

				rd := bufio.NewReader(c)
				for {
					var head strings.Builder
					for {
						line, err := rd.ReadString('\n')
						if err != nil {
							return
						}
						head.WriteString(line)
						if line == "\r\n" {
							break
						}
					}

					b.mu.Lock()
					b.seen = append(b.seen, head.String())
					b.mu.Unlock()

					rsp := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Length: %d\r\n\r\n%s", len(body), body)
					if _, err := io.WriteString(c, rsp); err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	return b
}

func (b *echoBackend) lastSeen() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.seen) == 0 {
		return ""
	}

	return b.seen[len(b.seen)-1]
}

func (b *echoBackend) Close() {
	_ = b.lis.Close()
}

func freePort(t *testing.T) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	addr := lis.Addr().String()
	_ = lis.Close()

	return addr
}

func startWorker(t *testing.T) (*worker.Worker, *adminDriver, context.CancelFunc) {
	t.Helper()

	workerSide, cliSide := net.Pipe()

	w, err := worker.New(config.WorkerConfig{CommandSocket: "test"}, workerSide, "", nil)
	if err != nil {
		t.Fatalf("worker.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		_ = w.Run(ctx)
	}()

	return w, newAdminDriver(cliSide), cancel
}

func httpGet(t *testing.T, addr, host, path string) (string, error) {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		return "", err
	}

	defer func() {
		_ = conn.Close()
	}()

	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	req := fmt.Sprintf("GET %s HTTP/1.1\r\nHost: %s\r\nConnection: close\r\n\r\n", path, host)
	if _, err := io.WriteString(conn, req); err != nil {
		return "", err
	}

	raw, err := io.ReadAll(conn)
	if err != nil && len(raw) == 0 {
		return "", err
	}

	return string(raw), nil
}

func TestBasicHTTPRoundTripThroughWorker(t *testing.T) {
	origin := newEchoBackend(t, "hello from origin")
	defer origin.Close()

	_, drv, cancel := startWorker(t)
	defer cancel()

	front := freePort(t)

	drv.apply(t, "l1", admin.ReqActivateListener, map[string]interface{}{
		"address": front, "protocol": "http",
	})
	drv.apply(t, "c1", admin.ReqAddCluster, map[string]interface{}{
		"clusterId": "c1",
	})
	drv.apply(t, "b1", admin.ReqAddBackend, map[string]interface{}{
		"clusterId": "c1", "backendId": "b1", "address": origin.addr,
	})
	drv.apply(t, "f1", admin.ReqAddHTTPFrontend, map[string]interface{}{
		"ruleId": "r1", "address": front, "hostname": "example.com", "path": "/", "clusterId": "c1",
	})

	var (
		rsp string
		err error
	)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rsp, err = httpGet(t, front, "example.com", "/")
		if err == nil && strings.Contains(rsp, "hello from origin") {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if err != nil {
		t.Fatalf("GET through proxy: %v", err)
	}
	if !strings.HasPrefix(rsp, "HTTP/1.1 200") || !strings.Contains(rsp, "hello from origin") {
		t.Fatalf("unexpected response:\n%s", rsp)
	}

	if seen := origin.lastSeen(); !strings.Contains(seen, "X-Forwarded-For: 127.0.0.1") {
		t.Fatalf("origin did not receive forwarded header:\n%s", seen)
	}
}

func TestNoBackend503ThroughWorker(t *testing.T) {
	_, drv, cancel := startWorker(t)
	defer cancel()

	front := freePort(t)

	drv.apply(t, "l1", admin.ReqActivateListener, map[string]interface{}{
		"address": front, "protocol": "http",
	})
	drv.apply(t, "c1", admin.ReqAddCluster, map[string]interface{}{
		"clusterId": "c1", "custom503": "all origins are down",
	})
	drv.apply(t, "f1", admin.ReqAddHTTPFrontend, map[string]interface{}{
		"ruleId": "r1", "address": front, "hostname": "example.com", "path": "/", "clusterId": "c1",
	})

	var rsp string
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := httpGet(t, front, "example.com", "/")
		if err == nil && got != "" {
			rsp = got
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if !strings.HasPrefix(rsp, "HTTP/1.1 503") {
		t.Fatalf("want 503, got:\n%s", rsp)
	}
	if !strings.Contains(rsp, "all origins are down") {
		t.Fatalf("want the cluster's configured body, got:\n%s", rsp)
	}
}

func TestSoftStopDrainsAndExits(t *testing.T) {
	origin := newEchoBackend(t, "ok")
	defer origin.Close()

	workerSide, cliSide := net.Pipe()

	w, err := worker.New(config.WorkerConfig{CommandSocket: "test"}, workerSide, "", nil)
	if err != nil {
		t.Fatalf("worker.New: %v", err)
	}

	exited := make(chan int, 1)
	go func() {
		exited <- w.Run(context.Background())
	}()

	drv := newAdminDriver(cliSide)
	front := freePort(t)

	drv.apply(t, "l1", admin.ReqActivateListener, map[string]interface{}{
		"address": front, "protocol": "http",
	})

	drv.send(t, admin.WorkerRequest{ID: "stop", Type: admin.ReqSoftStop})
	if rsp := drv.await(t, "stop"); rsp.Status != admin.StatusOk {
		t.Fatalf("soft stop: %+v", rsp)
	}

	select {
	case code := <-exited:
		if code != worker.ExitOK {
			t.Fatalf("exit code %d", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit after drain")
	}

	// the listening port is released
	if _, err := net.DialTimeout("tcp", front, 300*time.Millisecond); err == nil {
		t.Fatal("listener still accepting after soft stop")
	}
}

func TestStatusReportsWorkerFigures(t *testing.T) {
	_, drv, cancel := startWorker(t)
	defer cancel()

	drv.send(t, admin.WorkerRequest{ID: "st", Type: admin.ReqStatus})

	rsp := drv.await(t, "st")
	if rsp.Status != admin.StatusOk {
		t.Fatalf("status: %+v", rsp)
	}

	data, ok := rsp.Data.(map[interface{}]interface{})
	if !ok {
		// cbor may decode string-keyed maps either way; accept both shapes
		if d2, ok2 := rsp.Data.(map[string]interface{}); ok2 {
			if _, ok := d2["sessions"]; !ok {
				t.Fatalf("sessions figure missing: %+v", d2)
			}
			return
		}
		t.Fatalf("status data shape: %T", rsp.Data)
	}

	if _, ok := data["sessions"]; !ok {
		t.Fatalf("sessions figure missing: %+v", data)
	}
}
