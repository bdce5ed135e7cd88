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

package certificates

import (
	"crypto/tls"
	"strings"
)

// Store holds one tls listener's runtime certificates keyed by SNI server name.
// The admin plane mutates it between event-loop iterations; lookups come from the
// handshake callback. Wildcard entries ("*.example.com") answer any single-label
// prefix of their suffix.
type Store struct {
	byName map[string]*tls.Certificate
}

func NewStore() *Store {
	return &Store{byName: make(map[string]*tls.Certificate)}
}

// Add parses one PEM pair and binds it to the server name.
func (s *Store) Add(hostname, key, chain string) error {
	pair, err := tls.X509KeyPair([]byte(trimPEM(chain)), []byte(trimPEM(key)))
	if err != nil {
		return ErrorInvalidPair.Error(err)
	}

	s.byName[strings.ToLower(hostname)] = &pair

	return nil
}

// Remove drops the binding for a server name.
func (s *Store) Remove(hostname string) {
	delete(s.byName, strings.ToLower(hostname))
}

// Len returns the number of bound names.
func (s *Store) Len() int {
	return len(s.byName)
}

// Lookup resolves a server name: exact match first, then the wildcard covering it.
func (s *Store) Lookup(serverName string) (*tls.Certificate, bool) {
	name := strings.ToLower(serverName)

	if c, ok := s.byName[name]; ok {
		return c, true
	}

	if i := strings.IndexByte(name, '.'); i >= 0 {
		if c, ok := s.byName["*"+name[i:]]; ok {
			return c, true
		}
	}

	return nil, false
}

// GetCertificateFunc builds the crypto/tls selection callback: the store answers
// first, then the listener's static pairs, and a miss fails the handshake.
func (s *Store) GetCertificateFunc(static TLSConfig) func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
		if c, ok := s.Lookup(hello.ServerName); ok {
			return c, nil
		}

		if static != nil {
			if pairs := static.GetCertificatePair(); len(pairs) > 0 {
				return &pairs[0], nil
			}
		}

		return nil, ErrorUnknownName.Error(nil)
	}
}
