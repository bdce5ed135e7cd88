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
	"crypto/x509"
)

// TLSConfig is the materialized form of a Config: parsed pairs and pools, ready to
// build crypto/tls configurations for listeners.
type TLSConfig interface {
	// TlsConfig builds a *tls.Config for the given server name ("" for a listener
	// serving its static pairs).
	TlsConfig(serverName string) *tls.Config

	// LenCertificatePair returns how many static pairs parsed successfully.
	LenCertificatePair() int

	// GetCertificatePair returns the parsed static pairs.
	GetCertificatePair() []tls.Certificate

	// AddCertificatePairString parses and appends one PEM pair.
	AddCertificatePairString(key, chain string) error

	// GetRootCAPool returns the configured root pool, nil when empty.
	GetRootCAPool() *x509.CertPool

	// GetClientCAPool returns the configured client pool, nil when empty.
	GetClientCAPool() *x509.CertPool

	// Config returns the declarative config this was built from.
	Config() *Config
}

// New materializes the config. Pairs or CA blocks that fail to parse are dropped;
// validation is the config's own concern before materializing.
func (c *Config) New() TLSConfig {
	m := &model{cfg: c}

	for _, p := range c.Certs {
		_ = m.AddCertificatePairString(p.Key, p.Chain)
	}

	m.rootCA = poolFromPEM(c.RootCA)
	m.clientCA = poolFromPEM(c.ClientCA)

	return m
}

type model struct {
	cfg      *Config
	pairs    []tls.Certificate
	rootCA   *x509.CertPool
	clientCA *x509.CertPool
}

func (m *model) AddCertificatePairString(key, chain string) error {
	pair, err := tls.X509KeyPair([]byte(trimPEM(chain)), []byte(trimPEM(key)))
	if err != nil {
		return ErrorInvalidPair.Error(err)
	}

	m.pairs = append(m.pairs, pair)

	return nil
}

func (m *model) LenCertificatePair() int {
	return len(m.pairs)
}

func (m *model) GetCertificatePair() []tls.Certificate {
	return m.pairs
}

func (m *model) GetRootCAPool() *x509.CertPool {
	return m.rootCA
}

func (m *model) GetClientCAPool() *x509.CertPool {
	return m.clientCA
}

func (m *model) Config() *Config {
	return m.cfg
}

func (m *model) TlsConfig(serverName string) *tls.Config {
	t := &tls.Config{
		ServerName:   serverName,
		Certificates: m.pairs,
		RootCAs:      m.rootCA,
		ClientCAs:    m.clientCA,
		ClientAuth:   m.cfg.AuthClient.TLS(),
	}

	if v := m.cfg.VersionMin.TLS(); v != 0 {
		t.MinVersion = v
	}
	if v := m.cfg.VersionMax.TLS(); v != 0 {
		t.MaxVersion = v
	}

	for _, c := range m.cfg.CurveList {
		if id := c.TLS(); id != 0 {
			t.CurvePreferences = append(t.CurvePreferences, id)
		}
	}

	for _, c := range m.cfg.CipherList {
		if id := c.TLS(); id != 0 {
			t.CipherSuites = append(t.CipherSuites, id)
		}
	}

	return t
}

func poolFromPEM(blocks []string) *x509.CertPool {
	var pool *x509.CertPool

	for _, b := range blocks {
		if b == "" {
			continue
		}

		if pool == nil {
			pool = x509.NewCertPool()
		}

		pool.AppendCertsFromPEM([]byte(trimPEM(b)))
	}

	return pool
}
