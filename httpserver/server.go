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

// Package httpserver runs the worker's read-only admin HTTP surface (status, state
// dump, metrics) on a gin engine, separate from the data plane: the proxied traffic
// never flows through here.
package httpserver

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"time"

	ginsdk "github.com/gin-gonic/gin"
	"github.com/nabbar/proxycore/errors"
	"github.com/nabbar/proxycore/logger"
	"golang.org/x/net/http2"
)

// FuncRegister installs routes on the engine before the server starts.
type FuncRegister func(eng *ginsdk.Engine)

// Server is the admin HTTP surface lifecycle.
type Server interface {
	// Register installs routes; must be called before Start.
	Register(fct FuncRegister)

	// Start binds the listener and serves until Stop or context cancellation.
	Start(ctx context.Context) errors.Error

	// Stop shuts the server down gracefully within the given context.
	Stop(ctx context.Context) errors.Error

	// IsRunning reports whether the listener is bound.
	IsRunning() bool
}

func New(cfg Config, log logger.FuncLog) Server {
	ginsdk.SetMode(ginsdk.ReleaseMode)

	return &srv{
		cfg: cfg,
		log: log,
		eng: ginsdk.New(),
	}
}

type srv struct {
	mu sync.Mutex

	cfg Config
	log logger.FuncLog
	eng *ginsdk.Engine

	web *http.Server
	lis net.Listener
}

func (s *srv) Register(fct FuncRegister) {
	if fct != nil {
		fct(s.eng)
	}
}

func (s *srv) Start(ctx context.Context) errors.Error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.web != nil {
		return nil
	}

	var tcf *tls.Config
	if t := s.cfg.TLS.New(); t != nil && t.LenCertificatePair() > 0 {
		tcf = t.TlsConfig("")
	} else if s.cfg.TLSMandatory {
		return ErrorServerStart.Error(ErrorParamEmpty.Error(nil))
	}

	web := &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.eng,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
		TLSConfig:    tcf,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	if err := http2.ConfigureServer(web, &http2.Server{}); err != nil {
		return ErrorServerStart.Error(err)
	}

	lis, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return ErrorServerStart.Error(err)
	}

	s.web = web
	s.lis = lis

	go func() {
		var e error

		if tcf != nil {
			e = web.ServeTLS(lis, "", "")
		} else {
			e = web.Serve(lis)
		}

		if e != nil && e != http.ErrServerClosed {
			s.logger().Error("admin http server '%s' stopped", e, s.cfg.Name)
		}
	}()

	s.logger().Info("admin http server '%s' listening on %s", nil, s.cfg.Name, s.cfg.Listen)

	return nil
}

func (s *srv) Stop(ctx context.Context) errors.Error {
	s.mu.Lock()
	web := s.web
	s.web = nil
	s.lis = nil
	s.mu.Unlock()

	if web == nil {
		return ErrorServerNotRunning.Error(nil)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	if err := web.Shutdown(ctx); err != nil {
		return ErrorServerNotRunning.Error(err)
	}

	return nil
}

func (s *srv) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.web != nil
}

func (s *srv) logger() logger.Logger {
	if s.log != nil {
		if l := s.log(); l != nil {
			return l
		}
	}

	return logger.New()
}
