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
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/nabbar/proxycore/logger"
)

// Watcher observes a state snapshot path and injects a LoadState request through
// the same queue as external admin requests, so out-of-band snapshot edits flow
// through the synchronous apply path like any other mutation.
type Watcher struct {
	path    string
	backend string
	inject  func(req WorkerRequest)
	log     logger.FuncLog

	cancel context.CancelFunc
	done   chan struct{}
}

func NewWatcher(path, backendKind string, inject func(req WorkerRequest), log logger.FuncLog) *Watcher {
	return &Watcher{
		path:    path,
		backend: backendKind,
		inject:  inject,
		log:     log,
	}
}

// Start begins watching; edits are debounced so an editor's write burst triggers a
// single reload.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err = fsw.Add(w.path); err != nil {
		_ = fsw.Close()
		return err
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})

	go w.run(ctx, fsw)

	return nil
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	defer close(w.done)
	defer func() {
		_ = fsw.Close()
	}()

	var debounce *time.Timer

	fire := func() {
		w.logger().Info("state snapshot changed, reloading from %s", nil, w.path)
		w.inject(WorkerRequest{
			ID:   NewRequestID(),
			Type: ReqLoadState,
			Payload: map[string]interface{}{
				"path":    w.path,
				"backend": w.backend,
			},
		})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(250*time.Millisecond, fire)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger().LogError(logger.WarnLevel, err)
		}
	}
}

// Stop ends the watch.
func (w *Watcher) Stop() {
	if w.cancel == nil {
		return
	}

	w.cancel()
	<-w.done
}

func (w *Watcher) logger() logger.Logger {
	if w.log != nil {
		if l := w.log(); l != nil {
			return l
		}
	}

	return logger.New()
}
