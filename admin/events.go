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

package admin

import (
	"encoding/json"
	"sync"

	"github.com/nabbar/proxycore/backend"
	"github.com/nabbar/proxycore/logger"
	"github.com/nats-io/nats.go"
)

// EventSubject is the NATS subject prefix of the out-of-band event stream; the
// event kind is appended as the last subject token.
const EventSubject = "proxycore.events"

// Publisher fans registry events out on NATS so observers subscribe instead of
// polling Status. Publishing is fire-and-forget: a broken broker connection never
// stalls the worker.
type Publisher struct {
	mu sync.Mutex

	url  string
	conn *nats.Conn
	log  logger.FuncLog

	queue chan backend.Event
	done  chan struct{}
}

func NewPublisher(url string, log logger.FuncLog) *Publisher {
	return &Publisher{
		url:   url,
		log:   log,
		queue: make(chan backend.Event, 256),
	}
}

// Start connects to the broker and launches the publish loop. An unreachable broker
// does not fail Start: the NATS client keeps retrying the connect in the background.
// Any other connect error is returned to the caller.
func (p *Publisher) Start() error {
	conn, err := nats.Connect(p.url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.conn = conn
	p.done = make(chan struct{})
	p.mu.Unlock()

	go p.run()

	return nil
}

func (p *Publisher) run() {
	defer close(p.done)

	for e := range p.queue {
		doc, err := json.Marshal(map[string]string{
			"kind":      e.Kind.String(),
			"clusterId": e.ClusterID,
			"backendId": e.BackendID,
		})
		if err != nil {
			continue
		}

		if err := p.conn.Publish(EventSubject+"."+e.Kind.String(), doc); err != nil {
			p.logger().LogError(logger.DebugLevel, err)
		}
	}
}

// Publish enqueues one event without blocking; the queue drops when full rather
// than stalling the worker goroutine.
func (p *Publisher) Publish(e backend.Event) {
	select {
	case p.queue <- e:
	default:
		p.logger().Warning("event queue full, dropping %s", nil, e.Kind)
	}
}

// Stop flushes and closes the broker connection.
func (p *Publisher) Stop() {
	close(p.queue)

	p.mu.Lock()
	conn := p.conn
	done := p.done
	p.mu.Unlock()

	if done != nil {
		<-done
	}

	if conn != nil {
		_ = conn.Drain()
		conn.Close()
	}
}

func (p *Publisher) logger() logger.Logger {
	if p.log != nil {
		if l := p.log(); l != nil {
			return l
		}
	}

	return logger.New()
}
