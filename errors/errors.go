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

// Package errors carries the module's typed error model: every package declares a
// CodeError block offset from its base in modules.go and registers a message
// function at init; a CodeError materializes into an Error carrying the code, the
// registered message, the caller position, and any parent errors. Error satisfies
// the standard error interface plus errors.Is/errors.As unwrapping.
package errors

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// CodeError identifies one error condition. Zero is UnknownError and never carries
// a registered message.
type CodeError uint16

// UnknownError is the reserved null code.
const UnknownError CodeError = 0

// Message resolves a code through the registered message functions.
type Message func(code CodeError) string

var messages []Message

// RegisterIdFctMessage adds a package's message function. The base code is accepted
// for symmetry with ExistInMapMessage; registration is keyed by function, each
// function answering only its own block and returning "" otherwise.
func RegisterIdFctMessage(_ CodeError, fct Message) {
	if fct != nil {
		messages = append(messages, fct)
	}
}

// ExistInMapMessage reports whether some registered function already answers the
// given code, letting a package detect a base-table collision at init.
func ExistInMapMessage(code CodeError) bool {
	return lookupMessage(code) != ""
}

func lookupMessage(code CodeError) string {
	if code == UnknownError {
		return ""
	}

	for _, fct := range messages {
		if msg := fct(code); msg != "" {
			return msg
		}
	}

	return ""
}

// GetMessage returns the registered message of a code, or a placeholder.
func (c CodeError) GetMessage() string {
	if msg := lookupMessage(c); msg != "" {
		return msg
	}

	return "unknown error code " + strconv.Itoa(int(c))
}

// Error materializes the code into an Error, attaching any non-nil parents and the
// caller's position.
func (c CodeError) Error(parent ...error) Error {
	e := &ers{
		code:    c,
		message: c.GetMessage(),
	}

	if _, file, line, ok := runtime.Caller(1); ok {
		e.file, e.line = file, line
	}

	e.Add(parent...)

	return e
}

// IfError returns an Error only when at least one given error is non-nil; nil
// otherwise, so call sites can collect conditionally.
func (c CodeError) IfError(parent ...error) Error {
	for _, p := range parent {
		if p != nil {
			e := c.Error()
			e.Add(parent...)
			return e
		}
	}

	return nil
}

// Error is the module's error interface: a coded error with optional parents.
type Error interface {
	error

	// IsCode reports whether this error's own code equals the given one.
	IsCode(code CodeError) bool

	// HasCode reports whether this error or any parent carries the given code.
	HasCode(code CodeError) bool

	// GetCode returns this error's own code.
	GetCode() CodeError

	// Add appends every non-nil given error as a parent.
	Add(parent ...error)

	// HasParent reports whether at least one parent is attached.
	HasParent() bool

	// GetParent returns the parent chain, optionally prefixed by this error.
	GetParent(withMainError bool) []error

	// Is implements errors.Is matching on code equality for Error peers and
	// delegates to the parents otherwise.
	Is(err error) bool

	// Unwrap exposes the parents to the standard errors package.
	Unwrap() []error

	// GetTrace returns the "file:line" position the error was raised at.
	GetTrace() string
}

type ers struct {
	code    CodeError
	message string
	file    string
	line    int
	parents []error
}

// New builds an Error from an explicit code and message, for errors that do not
// come out of a registered block (replayed remote failures, wrapped externals).
func New(code uint16, message string, parent ...error) Error {
	e := &ers{
		code:    CodeError(code),
		message: message,
	}

	if _, file, line, ok := runtime.Caller(1); ok {
		e.file, e.line = file, line
	}

	e.Add(parent...)

	return e
}

func (e *ers) Error() string {
	if len(e.parents) == 0 {
		return e.message
	}

	parts := make([]string, 0, len(e.parents)+1)
	parts = append(parts, e.message)

	for _, p := range e.parents {
		parts = append(parts, p.Error())
	}

	return strings.Join(parts, ", ")
}

func (e *ers) IsCode(code CodeError) bool {
	return e.code == code
}

func (e *ers) HasCode(code CodeError) bool {
	if e.code == code {
		return true
	}

	for _, p := range e.parents {
		if pe, ok := p.(Error); ok && pe.HasCode(code) {
			return true
		}
	}

	return false
}

func (e *ers) GetCode() CodeError {
	return e.code
}

func (e *ers) Add(parent ...error) {
	for _, p := range parent {
		if p != nil {
			e.parents = append(e.parents, p)
		}
	}
}

func (e *ers) HasParent() bool {
	return len(e.parents) > 0
}

func (e *ers) GetParent(withMainError bool) []error {
	var out []error

	if withMainError {
		out = append(out, e)
	}

	return append(out, e.parents...)
}

func (e *ers) Is(err error) bool {
	if pe, ok := err.(Error); ok {
		return pe.GetCode() == e.code
	}

	return false
}

func (e *ers) Unwrap() []error {
	return e.parents
}

func (e *ers) GetTrace() string {
	if e.file == "" {
		return ""
	}

	return fmt.Sprintf("%s:%d", e.file, e.line)
}
