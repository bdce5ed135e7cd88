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
	"context"
	"net"
	"testing"
	"time"

	"github.com/nabbar/proxycore/admin"
	"github.com/nabbar/proxycore/backend"
	natsrv "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

func TestFrameRoundTrip(t *testing.T) {
	left, right := net.Pipe()
	defer func() {
		_ = left.Close()
		_ = right.Close()
	}()

	req := admin.WorkerRequest{
		ID:   admin.NewRequestID(),
		Type: admin.ReqAddCluster,
		Payload: map[string]interface{}{
			"clusterId": "c1",
		},
	}

	go func() {
		_ = admin.WriteFrame(left, req)
	}()

	var got admin.WorkerRequest
	if err := admin.ReadFrame(right, &got); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	if got.ID != req.ID || got.Type != req.Type {
		t.Fatalf("frame mismatch: %+v vs %+v", got, req)
	}
	if got.Payload["clusterId"] != "c1" {
		t.Fatalf("payload mismatch: %+v", got.Payload)
	}
}

func TestChannelDrainAndSend(t *testing.T) {
	left, right := net.Pipe()
	defer func() {
		_ = left.Close()
	}()

	ch := admin.NewChannel(right, 8, nil)
	ch.Start(context.Background())
	defer ch.Stop()

	// the CLI side writes two requests
	go func() {
		_ = admin.WriteFrame(left, admin.WorkerRequest{ID: "1", Type: admin.ReqStatus})
		_ = admin.WriteFrame(left, admin.WorkerRequest{ID: "2", Type: admin.ReqDumpState})
	}()

	var reqs []admin.WorkerRequest
	deadline := time.Now().Add(2 * time.Second)

	for len(reqs) < 2 && time.Now().Before(deadline) {
		reqs = append(reqs, ch.Drain()...)
		time.Sleep(10 * time.Millisecond)
	}

	if len(reqs) != 2 || reqs[0].ID != "1" || reqs[1].ID != "2" {
		t.Fatalf("drained %+v", reqs)
	}

	// the worker answers out of order; ids pair responses to requests
	go func() {
		ch.Send(admin.Ok("2", "dump"))
		ch.Send(admin.Ok("1", "status"))
	}()

	var rsp admin.WorkerResponse
	if err := admin.ReadFrame(left, &rsp); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if rsp.ID != "2" {
		t.Fatalf("first response id %q", rsp.ID)
	}

	if err := admin.ReadFrame(left, &rsp); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if rsp.ID != "1" {
		t.Fatalf("second response id %q", rsp.ID)
	}
}

func TestPublisherDeliversEvents(t *testing.T) {
	opts := &natsrv.Options{Port: -1}

	srv, err := natsrv.NewServer(opts)
	if err != nil {
		t.Fatalf("nats server: %v", err)
	}

	go srv.Start()
	defer srv.Shutdown()

	if !srv.ReadyForConnections(4 * time.Second) {
		t.Fatal("nats server not ready")
	}

	pub := admin.NewPublisher(srv.ClientURL(), nil)
	if err := pub.Start(); err != nil {
		t.Fatalf("publisher start: %v", err)
	}
	defer pub.Stop()

	sub, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatalf("subscriber connect: %v", err)
	}
	defer sub.Close()

	inbox := make(chan *nats.Msg, 1)
	if _, err := sub.ChanSubscribe(admin.EventSubject+".>", inbox); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := sub.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	pub.Publish(backend.Event{
		Kind:      backend.EventBackendDown,
		ClusterID: "c1",
		BackendID: "b1",
	})

	select {
	case msg := <-inbox:
		if msg.Subject != admin.EventSubject+".backend-down" {
			t.Fatalf("subject %q", msg.Subject)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("event not delivered")
	}
}
