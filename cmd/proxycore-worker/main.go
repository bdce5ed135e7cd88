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

// proxycore-worker is one proxy worker process: it connects to the supervisor's
// command socket, optionally inherits listening sockets from a predecessor, and
// runs the event loop until stopped.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	ginsdk "github.com/gin-gonic/gin"
	"github.com/nabbar/proxycore/admin"
	"github.com/nabbar/proxycore/backend/health"
	"github.com/nabbar/proxycore/config"
	"github.com/nabbar/proxycore/handoff"
	"github.com/nabbar/proxycore/httpserver"
	fdlimit "github.com/nabbar/proxycore/ioutils/fileDescriptor"
	"github.com/nabbar/proxycore/logger"
	"github.com/nabbar/proxycore/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	flagConfig      string
	flagID          string
	flagInheritFrom string
	flagHandoffTo   string
	flagAdminHTTP   string
	flagNatsURL     string
	flagHealthPath  string
	flagWatchState  string
	flagLogLevel    string
	flagLogFile     string
)

func main() {
	root := &cobra.Command{
		Use:   "proxycore-worker",
		Short: "single-threaded reverse proxy worker",
		RunE:  run,
	}

	root.Flags().StringVarP(&flagConfig, "config", "c", "", "worker bootstrap config file (json/yaml/toml)")
	root.Flags().StringVar(&flagID, "id", "", "worker id override")
	root.Flags().StringVar(&flagInheritFrom, "inherit-from", "", "unix socket to receive listening sockets from a predecessor")
	root.Flags().StringVar(&flagHandoffTo, "handoff-to", "", "unix socket of the successor for ReturnListenSockets")
	root.Flags().StringVar(&flagAdminHTTP, "admin-http", "", "optional read-only admin http listen address")
	root.Flags().StringVar(&flagNatsURL, "nats-url", "", "optional NATS url for the event stream")
	root.Flags().StringVar(&flagHealthPath, "health-path", "", "optional backend health probe path, enables the active prober")
	root.Flags().StringVar(&flagWatchState, "watch-state", "", "optional state snapshot path reloaded on change")
	root.Flags().StringVar(&flagLogLevel, "log-level", "info", "log level")
	root.Flags().StringVar(&flagLogFile, "log-file", "", "log file path")

	if err := root.Execute(); err != nil {
		os.Exit(worker.ExitInit)
	}
}

func run(_ *cobra.Command, _ []string) error {
	log := logger.New()
	log.SetLevel(logger.GetLevelString(flagLogLevel))

	opts := &logger.Options{}
	if flagLogFile != "" {
		opts.LogFile = &logger.OptionsFile{Filepath: flagLogFile, Create: true}
	}
	if err := log.SetOptions(opts); err != nil {
		fatal(log, err)
	}

	fct := func() logger.Logger { return log }

	color.New(color.FgCyan, color.Bold).Println("proxycore worker starting")

	// session capacity is bounded by descriptors; raise before sizing anything
	if cur, max, err := fdlimit.SystemFileDescriptor(8192); err == nil {
		log.Info("file descriptors: %d current, %d max", nil, cur, max)
	}

	if flagConfig == "" {
		return fmt.Errorf("--config is required")
	}

	cfg, cerr := config.LoadWorkerFile(flagConfig)
	if cerr != nil {
		fatal(log, cerr)
	}

	if flagID != "" {
		cfg.ID = flagID
	}

	adminConn, derr := net.Dial("unix", cfg.CommandSocket)
	if derr != nil {
		fatal(log, derr)
	}

	w, werr := worker.New(*cfg, adminConn, flagHandoffTo, fct)
	if werr != nil {
		fatal(log, werr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// predecessor handoff: adopt its sockets, replay its state
	if flagInheritFrom != "" {
		if err := inherit(w, flagInheritFrom, log); err != nil {
			fatal(log, err)
		}
	}

	if flagNatsURL != "" {
		pub := admin.NewPublisher(flagNatsURL, fct)
		if err := pub.Start(); err != nil {
			log.Warning("event publisher unavailable: %v", nil, err)
		} else {
			w.Plane().SetPublisher(pub)
			defer pub.Stop()
		}
	}

	if flagWatchState != "" {
		watcher := admin.NewWatcher(flagWatchState, "file", w.Inject, fct)
		if err := watcher.Start(ctx); err != nil {
			log.Warning("state watcher unavailable: %v", nil, err)
		} else {
			defer watcher.Stop()
		}
	}

	if flagAdminHTTP != "" {
		srv := httpserver.New(httpserver.Config{Name: "admin", Listen: flagAdminHTTP}, fct)
		srv.Register(func(eng *ginsdk.Engine) {
			eng.GET("/metrics", ginsdk.WrapH(promhttp.Handler()))
			eng.GET("/state", func(c *ginsdk.Context) {
				doc, err := admin.RenderSnapshot(w.Plane().Snapshot(), c.DefaultQuery("format", "json"))
				if err != nil {
					c.String(http.StatusBadRequest, err.Error())
					return
				}
				c.String(http.StatusOK, string(doc))
			})
		})

		if err := srv.Start(ctx); err != nil {
			log.Warning("admin http unavailable: %v", nil, err)
		} else {
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				_ = srv.Stop(sctx)
			}()
		}
	}

	// the prober needs the worker's registry; it lives behind the plane
	if flagHealthPath != "" {
		prober := health.NewProber(health.Config{Path: flagHealthPath}, w.Registry(), log.HcLog())
		prober.Start(ctx)
		defer prober.Stop()
	}

	code := w.Run(ctx)

	log.Info("worker exiting with code %d", nil, code)
	os.Exit(code)

	return nil
}

// inherit receives the predecessor's listening sockets before the loop starts.
func inherit(w *worker.Worker, path string, log logger.Logger) error {
	laddr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return err
	}

	lis, err := net.ListenUnix("unix", laddr)
	if err != nil {
		return err
	}

	defer func() {
		_ = lis.Close()
	}()

	_ = lis.SetDeadline(time.Now().Add(30 * time.Second))

	conn, err := lis.AcceptUnix()
	if err != nil {
		return err
	}

	defer func() {
		_ = conn.Close()
	}()

	payload, fds, herr := handoff.Recv(conn)
	if herr != nil {
		return herr
	}

	w.InheritListeners(payload, fds)

	snap, perr := admin.ParseSnapshot(payload.Snapshot, "toml")
	if perr != nil {
		return perr
	}

	for _, rsp := range w.Plane().Replay(snap) {
		if rsp.Status == admin.StatusError {
			log.Warning("replay: %s", nil, rsp.Message)
		}
	}

	log.Info("inherited %d listening sockets (run %s)", nil, len(fds), payload.RunID)

	return nil
}

func fatal(log logger.Logger, err error) {
	log.Error("fatal initialization error", err)
	os.Exit(worker.ExitInit)
}
