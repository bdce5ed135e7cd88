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

// Package logger wraps a logrus.Logger behind a small Logger interface with level
// management, default fields injection, file/console outputs, and a hashicorp hclog
// adapter for the libraries that want that interface.
package logger

import (
	"io"
	"log"

	"github.com/hashicorp/go-hclog"
)

// FuncLog hands out the logger lazily, so packages hold the indirection instead of
// a logger instance and pick up runtime option changes.
type FuncLog func() Logger

// Logger is the worker's structured logger. It extends io.WriteCloser so it can
// stand in wherever a plain writer is expected; each written chunk becomes one
// info-level entry.
type Logger interface {
	io.WriteCloser

	// SetLevel and GetLevel manage the emission threshold; NilLevel silences the
	// logger entirely.
	SetLevel(lvl Level)
	GetLevel() Level

	// SetOptions reconfigures the outputs (console, file, format); GetOptions
	// returns the active set.
	SetOptions(opt *Options) error
	GetOptions() *Options

	// SetFields and GetFields manage the default fields attached to every entry.
	SetFields(field Fields)
	GetFields() Fields

	// GetStdLogger bridges stdlib consumers: everything they print lands at the
	// given level.
	GetStdLogger(lvl Level, logFlags int) *log.Logger

	// HcLog returns a hashicorp hclog view of this logger.
	HcLog() hclog.Logger

	// The leveled emitters: data rides as a structured field, args format message.
	Debug(message string, data interface{}, args ...interface{})
	Info(message string, data interface{}, args ...interface{})
	Warning(message string, data interface{}, args ...interface{})
	Error(message string, data interface{}, args ...interface{})

	// Fatal logs then exits the process.
	Fatal(message string, data interface{}, args ...interface{})

	// LogError emits only when err is non-nil and reports whether it did.
	LogError(lvl Level, err error) bool
}
