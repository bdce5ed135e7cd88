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

package errors_test

import (
	stderr "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/nabbar/proxycore/errors"
)

const (
	testErrorOne errors.CodeError = iota + errors.MinAvailable
	testErrorTwo
)

func init() {
	errors.RegisterIdFctMessage(testErrorOne, func(code errors.CodeError) string {
		switch code {
		case testErrorOne:
			return "first test condition"
		case testErrorTwo:
			return "second test condition"
		}

		return ""
	})
}

func TestCodeMaterialization(t *testing.T) {
	e := testErrorOne.Error(nil)

	if !e.IsCode(testErrorOne) || e.IsCode(testErrorTwo) {
		t.Fatalf("code identity broken: %v", e.GetCode())
	}
	if e.Error() != "first test condition" {
		t.Fatalf("message = %q", e.Error())
	}
	if e.HasParent() {
		t.Fatal("nil parent must be dropped")
	}
	if !strings.Contains(e.GetTrace(), "errors_test.go") {
		t.Fatalf("trace = %q", e.GetTrace())
	}
}

func TestParentChain(t *testing.T) {
	root := fmt.Errorf("socket closed")
	mid := testErrorTwo.Error(root)
	top := testErrorOne.Error(mid)

	if !top.HasParent() {
		t.Fatal("parent lost")
	}
	if !top.HasCode(testErrorTwo) {
		t.Fatal("parent code not visible through HasCode")
	}
	if top.HasCode(errors.UnknownError) {
		t.Fatal("unknown code must never match")
	}
	if !strings.Contains(top.Error(), "socket closed") {
		t.Fatalf("parent message lost: %q", top.Error())
	}

	if !stderr.Is(top, mid) {
		t.Fatal("errors.Is must match through the chain")
	}

	parents := top.GetParent(true)
	if len(parents) != 2 || parents[0] != top {
		t.Fatalf("GetParent shape: %v", parents)
	}
}

func TestIfError(t *testing.T) {
	if e := testErrorOne.IfError(nil, nil); e != nil {
		t.Fatalf("IfError on nils must be nil, got %v", e)
	}

	if e := testErrorOne.IfError(nil, fmt.Errorf("boom")); e == nil || !e.HasParent() {
		t.Fatalf("IfError must wrap the non-nil parent, got %v", e)
	}
}

func TestExistInMapMessage(t *testing.T) {
	if !errors.ExistInMapMessage(testErrorOne) {
		t.Fatal("registered code not found")
	}
	if errors.ExistInMapMessage(errors.UnknownError) {
		t.Fatal("unknown code must not resolve")
	}
}
