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

package buffer_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/proxycore/buffer"
	"github.com/nabbar/proxycore/errors"
)

func TestBuffer(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "buffer package suite")
}

var _ = Describe("Pool", func() {
	It("checks out buffers up to its capacity and then fails", func() {
		p := buffer.NewPool(64, 2)

		b1, err := p.Checkout()
		Expect(err).To(BeNil())
		Expect(b1.Cap()).To(Equal(64))

		_, err = p.Checkout()
		Expect(err).To(BeNil())

		_, err = p.Checkout()
		Expect(err).NotTo(BeNil())
		Expect(err.IsCode(buffer.ErrorCapacityReached)).To(BeTrue())
	})

	It("restores pre-checkout balance after Release", func() {
		p := buffer.NewPool(32, 4)
		Expect(p.InUse()).To(Equal(0))

		b, _ := p.Checkout()
		Expect(p.InUse()).To(Equal(1))

		Expect(p.Release(b)).To(BeNil())
		Expect(p.InUse()).To(Equal(0))
	})

	It("rejects releasing a buffer that isn't owned by the pool", func() {
		p := buffer.NewPool(32, 1)
		other := buffer.NewPool(32, 1)

		b, _ := other.Checkout()
		var errNotOwned errors.Error
		errNotOwned = p.Release(b)

		Expect(errNotOwned).NotTo(BeNil())
		Expect(errNotOwned.IsCode(buffer.ErrorNotOwned)).To(BeTrue())
	})

	It("resets length on checkout without zeroing capacity", func() {
		p := buffer.NewPool(16, 1)

		b, _ := p.Checkout()
		b.SetLen(16)
		copy(b.Bytes(), []byte("0123456789abcdef"))
		Expect(p.Release(b)).To(BeNil())

		b2, _ := p.Checkout()
		Expect(len(b2.Bytes())).To(Equal(0))
		Expect(b2.Cap()).To(Equal(16))
	})

	It("reports near exhaustion once free buffers drop below the headroom", func() {
		p := buffer.NewPool(8, 4)
		Expect(p.NearExhaustion(1)).To(BeFalse())

		p.Checkout()
		p.Checkout()
		p.Checkout()

		Expect(p.NearExhaustion(2)).To(BeTrue())
	})
})
