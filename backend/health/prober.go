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

// Package health actively probes backends that the passive failure tracking has
// gated off, so a recovered origin is put back in rotation without waiting for a
// client request to hit its backoff window.
package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/nabbar/proxycore/backend"
	"github.com/nabbar/proxycore/backend/retry"
)

// Config tunes the prober. Zero values take defaults.
type Config struct {
	// Path is appended to each backend address, e.g. "/healthz".
	Path string

	// Interval between probe sweeps.
	Interval time.Duration

	// Timeout caps one probe request.
	Timeout time.Duration
}

const (
	defaultInterval = 5 * time.Second
	defaultTimeout  = 2 * time.Second
)

// Prober sweeps the registry on a ticker, probing every backend whose retry policy
// is currently gating selection. Probes run outside the worker goroutine; only
// MarkProbe touches shared state and that path is locked.
type Prober struct {
	cfg Config
	reg *backend.Registry
	cli *retryablehttp.Client

	cancel context.CancelFunc
	done   chan struct{}
}

func NewProber(cfg Config, reg *backend.Registry, log hclog.Logger) *Prober {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}

	cli := retryablehttp.NewClient()
	cli.RetryMax = 0
	cli.HTTPClient.Timeout = cfg.Timeout
	cli.Logger = log

	return &Prober{
		cfg: cfg,
		reg: reg,
		cli: cli,
	}
}

// Start launches the sweep loop. Stop cancels it and waits for the loop to exit.
func (p *Prober) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})

	go p.run(ctx)
}

func (p *Prober) Stop() {
	if p.cancel == nil {
		return
	}

	p.cancel()
	<-p.done
}

func (p *Prober) run(ctx context.Context) {
	defer close(p.done)

	tck := time.NewTicker(p.cfg.Interval)
	defer tck.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tck.C:
			p.sweep(ctx)
		}
	}
}

func (p *Prober) sweep(ctx context.Context) {
	var gated []*backend.Backend

	p.reg.Walk(func(c *backend.Cluster) {
		for _, b := range c.Backends() {
			if b.GetStatus() != backend.Normal {
				continue
			}
			if b.Retry.CanTry() != retry.Okay {
				gated = append(gated, b)
			}
		}
	})

	for _, b := range gated {
		if ctx.Err() != nil {
			return
		}
		if p.probe(ctx, b) {
			p.reg.MarkProbe(b)
		}
	}
}

func (p *Prober) probe(ctx context.Context, b *backend.Backend) bool {
	url := fmt.Sprintf("http://%s%s", b.Address, p.cfg.Path)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	rsp, err := p.cli.Do(req)
	if err != nil {
		return false
	}

	defer func() {
		_ = rsp.Body.Close()
	}()

	return rsp.StatusCode >= 200 && rsp.StatusCode < 400
}
