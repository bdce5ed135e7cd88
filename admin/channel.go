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
	"context"
	"net"
	"sync"

	"github.com/nabbar/proxycore/logger"
)

// Channel is the worker's side of the framed admin connection. A reader goroutine
// decodes frames into a buffered queue; the worker drains the queue once per loop
// iteration so mutations never interleave with session processing.
type Channel struct {
	mu sync.Mutex

	conn net.Conn
	out  chan WorkerRequest
	log  logger.FuncLog

	cancel context.CancelFunc
	done   chan struct{}
}

func NewChannel(conn net.Conn, depth int, log logger.FuncLog) *Channel {
	if depth <= 0 {
		depth = 64
	}

	return &Channel{
		conn: conn,
		out:  make(chan WorkerRequest, depth),
		log:  log,
	}
}

// Start launches the frame reader.
func (c *Channel) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})

	go c.run(ctx)
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)
	defer close(c.out)

	for {
		var req WorkerRequest

		if err := ReadFrame(c.conn, &req); err != nil {
			if ctx.Err() == nil {
				c.logger().LogError(logger.WarnLevel, err)
			}
			return
		}

		select {
		case c.out <- req:
		case <-ctx.Done():
			return
		}
	}
}

// Drain returns every request queued since the last call, without blocking.
func (c *Channel) Drain() []WorkerRequest {
	var reqs []WorkerRequest

	for {
		select {
		case req, ok := <-c.out:
			if !ok {
				return reqs
			}
			reqs = append(reqs, req)
		default:
			return reqs
		}
	}
}

// Send writes one response frame. Safe from the worker goroutine only.
func (c *Channel) Send(rsp WorkerResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := WriteFrame(c.conn, rsp); err != nil {
		c.logger().LogError(logger.WarnLevel, err)
	}
}

// Stop closes the underlying connection and waits for the reader to exit.
func (c *Channel) Stop() {
	if c.cancel != nil {
		c.cancel()
	}

	_ = c.conn.Close()

	if c.done != nil {
		<-c.done
	}
}

func (c *Channel) logger() logger.Logger {
	if c.log != nil {
		if l := c.log(); l != nil {
			return l
		}
	}

	return logger.New()
}
