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
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"
)

type lgr struct {
	mu sync.Mutex

	lvl Level
	fld Fields
	opt *Options

	log  *logrus.Logger
	file io.WriteCloser
}

// New returns a Logger writing to the console with the default options until
// SetOptions is called.
func New() Logger {
	l := &lgr{
		lvl: InfoLevel,
		fld: NewFields(),
		opt: &Options{},
		log: logrus.New(),
	}

	l.log.SetLevel(logrus.InfoLevel)
	l.log.SetFormatter(TextFormat.logrus(true))
	l.log.SetOutput(colorable.NewColorableStdout())

	return l
}

func (l *lgr) SetLevel(lvl Level) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lvl = lvl
	l.log.SetLevel(lvl.Logrus())
}

func (l *lgr) GetLevel() Level {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.lvl
}

func (l *lgr) SetOptions(opt *Options) error {
	if opt == nil {
		opt = &Options{}
	}

	if err := opt.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	color := true
	var out io.Writer = colorable.NewColorableStdout()

	if std := opt.Stdout; std != nil {
		color = !std.DisableColor

		switch {
		case std.DisableStandard:
			out = io.Discard
			color = false
		case std.OnlyStderr:
			out = colorable.NewColorableStderr()
		}
	}

	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}

	if f := opt.LogFile; f != nil && f.Filepath != "" {
		flags := os.O_WRONLY | os.O_APPEND
		if f.Create {
			flags |= os.O_CREATE
		}

		mode := os.FileMode(f.FileMode)
		if mode == 0 {
			mode = 0644
		}

		h, err := os.OpenFile(f.Filepath, flags, mode)
		if err != nil {
			return ErrorFileOpen.Error(err)
		}

		l.file = h
		out = io.MultiWriter(out, h)
		color = false
	}

	l.log.SetFormatter(GetFormatString(opt.Format).logrus(color))
	l.log.SetOutput(out)
	l.opt = opt

	return nil
}

func (l *lgr) GetOptions() *Options {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.opt
}

func (l *lgr) SetFields(field Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.fld = field
}

func (l *lgr) GetFields() Fields {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.fld
}

func (l *lgr) GetStdLogger(lvl Level, logFlags int) *log.Logger {
	return log.New(&stdWriter{l: l, lvl: lvl}, "", logFlags)
}

func (l *lgr) HcLog() hclog.Logger {
	return &hcAdapter{l: l}
}

func (l *lgr) Debug(message string, data interface{}, args ...interface{}) {
	l.entry(DebugLevel, message, data, args...)
}

func (l *lgr) Info(message string, data interface{}, args ...interface{}) {
	l.entry(InfoLevel, message, data, args...)
}

func (l *lgr) Warning(message string, data interface{}, args ...interface{}) {
	l.entry(WarnLevel, message, data, args...)
}

func (l *lgr) Error(message string, data interface{}, args ...interface{}) {
	l.entry(ErrorLevel, message, data, args...)
}

func (l *lgr) Fatal(message string, data interface{}, args ...interface{}) {
	l.entry(FatalLevel, message, data, args...)
}

func (l *lgr) LogError(lvl Level, err error) bool {
	if err == nil {
		return false
	}

	l.entry(lvl, err.Error(), nil)

	return true
}

func (l *lgr) entry(lvl Level, message string, data interface{}, args ...interface{}) {
	cur := l.GetLevel()
	if lvl == NilLevel || cur == NilLevel || lvl > cur {
		return
	}

	if len(args) > 0 {
		message = fmt.Sprintf(message, args...)
	}

	flds := l.GetFields()
	if data != nil {
		flds = flds.Add("data", data)
	}

	e := l.log.WithFields(flds.Logrus())

	switch lvl {
	case DebugLevel:
		e.Debug(message)
	case InfoLevel:
		e.Info(message)
	case WarnLevel:
		e.Warn(message)
	case ErrorLevel:
		e.Error(message)
	case FatalLevel:
		e.Fatal(message)
	case PanicLevel:
		e.Panic(message)
	}
}

// Write implements io.Writer: each chunk becomes one InfoLevel entry, so the logger
// can back any stdlib or third-party writer slot.
func (l *lgr) Write(p []byte) (n int, err error) {
	l.entry(InfoLevel, string(p), nil)

	return len(p), nil
}

func (l *lgr) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil

		return err
	}

	return nil
}

type stdWriter struct {
	l   *lgr
	lvl Level
}

func (w *stdWriter) Write(p []byte) (n int, err error) {
	w.l.entry(w.lvl, string(p), nil)

	return len(p), nil
}
