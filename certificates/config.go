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

// Package certificates is the proxy's TLS material: the declarative Config decoded
// from listener payloads, the TLSConfig it builds for crypto/tls, and the SNI Store
// the tls listeners select runtime-added certificates from.
package certificates

import (
	"reflect"
	"strings"

	libval "github.com/go-playground/validator/v10"
	libmap "github.com/mitchellh/mapstructure"
)

// Pair is one PEM certificate chain with its key.
type Pair struct {
	// Key is the PEM private key.
	Key string `json:"key" yaml:"key" toml:"key" mapstructure:"key" validate:"required"`

	// Chain is the PEM certificate chain, leaf first.
	Chain string `json:"chain" yaml:"chain" toml:"chain" mapstructure:"chain" validate:"required"`
}

// Config is the declarative TLS configuration of one listener or server.
type Config struct {
	// CurveList restricts the handshake curves; empty keeps the runtime default.
	CurveList []Curves `json:"curveList,omitempty" yaml:"curveList,omitempty" toml:"curveList,omitempty" mapstructure:"curveList,omitempty"`

	// CipherList restricts the cipher suites; empty keeps the runtime default.
	CipherList []Cipher `json:"cipherList,omitempty" yaml:"cipherList,omitempty" toml:"cipherList,omitempty" mapstructure:"cipherList,omitempty"`

	// RootCA are PEM blocks appended to the system pool for upstream verification.
	RootCA []string `json:"rootCA,omitempty" yaml:"rootCA,omitempty" toml:"rootCA,omitempty" mapstructure:"rootCA,omitempty"`

	// ClientCA are PEM blocks accepted for client-certificate verification.
	ClientCA []string `json:"clientCA,omitempty" yaml:"clientCA,omitempty" toml:"clientCA,omitempty" mapstructure:"clientCA,omitempty"`

	// Certs are the static certificate pairs served by this listener.
	Certs []Pair `json:"certs,omitempty" yaml:"certs,omitempty" toml:"certs,omitempty" mapstructure:"certs,omitempty" validate:"omitempty,dive"`

	// VersionMin and VersionMax bound the negotiated protocol version.
	VersionMin Version `json:"versionMin,omitempty" yaml:"versionMin,omitempty" toml:"versionMin,omitempty" mapstructure:"versionMin,omitempty"`
	VersionMax Version `json:"versionMax,omitempty" yaml:"versionMax,omitempty" toml:"versionMax,omitempty" mapstructure:"versionMax,omitempty"`

	// AuthClient is the client-certificate policy.
	AuthClient ClientAuth `json:"authClient,omitempty" yaml:"authClient,omitempty" toml:"authClient,omitempty" mapstructure:"authClient,omitempty"`
}

// Validate checks the config coherence and returns a collected error.
func (c *Config) Validate() error {
	e := ErrorValidatorError.Error(nil)

	if err := libval.New().Struct(c); err != nil {
		if ve, ok := err.(libval.ValidationErrors); ok {
			for _, f := range ve {
				e.Add(ErrorValidatorField.Error(f))
			}
		} else {
			e.Add(err)
		}
	}

	if e.HasParent() {
		return e
	}

	return nil
}

// ViperDecoderHook converts the string forms of the package's typed fields while a
// generic payload decodes into Config, so one hook serves every decode path.
func ViperDecoderHook() libmap.DecodeHookFuncType {
	return func(from, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String {
			return data, nil
		}

		s, ok := data.(string)
		if !ok {
			return data, nil
		}

		switch to {
		case reflect.TypeOf(Curves(0)):
			return ParseCurves(s), nil
		case reflect.TypeOf(Cipher(0)):
			return ParseCipher(s), nil
		case reflect.TypeOf(Version(0)):
			return ParseVersion(s), nil
		case reflect.TypeOf(ClientAuth(0)):
			return ParseClientAuth(s), nil
		default:
			return data, nil
		}
	}
}

// trimPEM normalizes a PEM block carried through config indentation.
func trimPEM(s string) string {
	return strings.TrimSpace(s)
}
