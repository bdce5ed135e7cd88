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

package token_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/proxycore/token"
)

func TestToken(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "token package suite")
}

type fakeSession struct {
	id uint64
}

func (f fakeSession) SessionID() uint64 {
	return f.id
}

var _ = Describe("Registry", func() {
	var reg *token.Registry

	BeforeEach(func() {
		reg = token.NewRegistry(8)
	})

	It("issues stable non-zero tokens and resolves them back to the session", func() {
		s := fakeSession{id: 1}
		tok := reg.Insert(s)

		Expect(tok).NotTo(BeEquivalentTo(0))

		got, ok := reg.Get(tok)
		Expect(ok).To(BeTrue())
		Expect(got.SessionID()).To(Equal(uint64(1)))
	})

	It("frees a token on Remove and never returns it afterward", func() {
		tok := reg.Insert(fakeSession{id: 2})
		Expect(reg.Remove(tok)).To(BeTrue())

		_, ok := reg.Get(tok)
		Expect(ok).To(BeFalse())
		Expect(reg.Remove(tok)).To(BeFalse())
	})

	It("frees every token a session owns on RemoveSession", func() {
		s := fakeSession{id: 3}
		front := reg.Insert(s)
		back := reg.Insert(s)
		timer := reg.Insert(s)

		n := reg.RemoveSession(3)
		Expect(n).To(Equal(3))

		for _, tok := range []token.Token{front, back, timer} {
			_, ok := reg.Get(tok)
			Expect(ok).To(BeFalse())
		}
	})

	It("reuses freed slab slots instead of growing unbounded", func() {
		tok := reg.Insert(fakeSession{id: 4})
		Expect(reg.Len()).To(Equal(1))

		reg.Remove(tok)
		Expect(reg.Len()).To(Equal(0))

		reg.Insert(fakeSession{id: 5})
		Expect(reg.Len()).To(Equal(1))
	})

	It("computes actionable readiness as the intersection of event and interest", func() {
		tok := reg.Insert(fakeSession{id: 6})
		r, ok := reg.Readiness(tok)
		Expect(ok).To(BeTrue())

		Expect(r.HasActionable()).To(BeFalse())

		r.SetInterest(token.EventReadable, true)
		Expect(r.HasActionable()).To(BeFalse())

		r.SetEvent(token.EventReadable, true)
		Expect(r.HasActionable()).To(BeTrue())

		r.Reset()
		Expect(r.HasActionable()).To(BeFalse())
	})
})
