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

package logger

import (
	"fmt"
	"io"
	"log"

	"github.com/hashicorp/go-hclog"
)

// hcAdapter presents a Logger as a hashicorp hclog.Logger, for the libraries that
// want that interface. Name and implied args live on the adapter itself; Named and
// With return copies, so derived adapters never disturb their parent.
type hcAdapter struct {
	l    Logger
	name string
	args []interface{}
}

func (h *hcAdapter) level(lvl hclog.Level) Level {
	switch lvl {
	case hclog.Trace, hclog.Debug:
		return DebugLevel
	case hclog.Info:
		return InfoLevel
	case hclog.Warn:
		return WarnLevel
	case hclog.Error:
		return ErrorLevel
	default:
		return NilLevel
	}
}

func (h *hcAdapter) emit(lvl Level, msg string, args ...interface{}) {
	if lvl == NilLevel {
		return
	}

	if h.name != "" {
		msg = h.name + ": " + msg
	}

	var data interface{}
	if all := append(append([]interface{}{}, h.args...), args...); len(all) > 0 {
		data = fmt.Sprint(all...)
	}

	switch lvl {
	case DebugLevel:
		h.l.Debug(msg, data)
	case InfoLevel:
		h.l.Info(msg, data)
	case WarnLevel:
		h.l.Warning(msg, data)
	default:
		h.l.Error(msg, data)
	}
}

func (h *hcAdapter) Log(level hclog.Level, msg string, args ...interface{}) {
	h.emit(h.level(level), msg, args...)
}

func (h *hcAdapter) Trace(msg string, args ...interface{}) { h.emit(DebugLevel, msg, args...) }
func (h *hcAdapter) Debug(msg string, args ...interface{}) { h.emit(DebugLevel, msg, args...) }
func (h *hcAdapter) Info(msg string, args ...interface{})  { h.emit(InfoLevel, msg, args...) }
func (h *hcAdapter) Warn(msg string, args ...interface{})  { h.emit(WarnLevel, msg, args...) }
func (h *hcAdapter) Error(msg string, args ...interface{}) { h.emit(ErrorLevel, msg, args...) }

func (h *hcAdapter) IsTrace() bool {
	return h.l.GetOptions().EnableTrace && h.IsDebug()
}

func (h *hcAdapter) IsDebug() bool { l := h.l.GetLevel(); return l != NilLevel && l >= DebugLevel }
func (h *hcAdapter) IsInfo() bool  { l := h.l.GetLevel(); return l != NilLevel && l >= InfoLevel }
func (h *hcAdapter) IsWarn() bool  { l := h.l.GetLevel(); return l != NilLevel && l >= WarnLevel }
func (h *hcAdapter) IsError() bool { l := h.l.GetLevel(); return l != NilLevel && l >= ErrorLevel }

func (h *hcAdapter) ImpliedArgs() []interface{} {
	return h.args
}

func (h *hcAdapter) With(args ...interface{}) hclog.Logger {
	return &hcAdapter{
		l:    h.l,
		name: h.name,
		args: append(append([]interface{}{}, h.args...), args...),
	}
}

func (h *hcAdapter) Name() string {
	return h.name
}

func (h *hcAdapter) Named(name string) hclog.Logger {
	full := name
	if h.name != "" {
		full = h.name + "." + name
	}

	return &hcAdapter{l: h.l, name: full, args: h.args}
}

func (h *hcAdapter) ResetNamed(name string) hclog.Logger {
	return &hcAdapter{l: h.l, name: name, args: h.args}
}

func (h *hcAdapter) SetLevel(level hclog.Level) {
	h.l.SetLevel(h.level(level))
}

func (h *hcAdapter) GetLevel() hclog.Level {
	switch h.l.GetLevel() {
	case DebugLevel:
		return hclog.Debug
	case InfoLevel:
		return hclog.Info
	case WarnLevel:
		return hclog.Warn
	case ErrorLevel:
		return hclog.Error
	case NilLevel:
		return hclog.Off
	default:
		return hclog.Error
	}
}

func (h *hcAdapter) StandardLogger(opts *hclog.StandardLoggerOptions) *log.Logger {
	lvl := InfoLevel
	if opts != nil {
		lvl = h.level(opts.ForceLevel)
	}

	return h.l.GetStdLogger(lvl, 0)
}

func (h *hcAdapter) StandardWriter(*hclog.StandardLoggerOptions) io.Writer {
	return h.l
}
