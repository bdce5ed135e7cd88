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

package httpserver

import (
	"time"

	libval "github.com/go-playground/validator/v10"
	libtls "github.com/nabbar/proxycore/certificates"
)

// Config describes one HTTP server of the admin surface.
type Config struct {
	// Name is used into log and status to identify the server.
	Name string `json:"name" yaml:"name" toml:"name" mapstructure:"name" validate:"required"`

	// Listen is the local address (ip or hostname + port) the server binds.
	Listen string `json:"listen" yaml:"listen" toml:"listen" mapstructure:"listen" validate:"required,hostname_port"`

	// ReadTimeout bounds one request read; zero means no bound.
	ReadTimeout time.Duration `json:"readTimeout,omitempty" yaml:"readTimeout,omitempty" toml:"readTimeout,omitempty" mapstructure:"readTimeout,omitempty"`

	// WriteTimeout bounds one response write; zero means no bound.
	WriteTimeout time.Duration `json:"writeTimeout,omitempty" yaml:"writeTimeout,omitempty" toml:"writeTimeout,omitempty" mapstructure:"writeTimeout,omitempty"`

	// IdleTimeout bounds a keep-alive connection's idle period; zero means no bound.
	IdleTimeout time.Duration `json:"idleTimeout,omitempty" yaml:"idleTimeout,omitempty" toml:"idleTimeout,omitempty" mapstructure:"idleTimeout,omitempty"`

	// TLSMandatory refuse to start the server without a usable TLS config.
	TLSMandatory bool `json:"tlsMandatory,omitempty" yaml:"tlsMandatory,omitempty" toml:"tlsMandatory,omitempty" mapstructure:"tlsMandatory,omitempty"`

	// TLS is the optional TLS configuration for the listener.
	TLS libtls.Config `json:"tls,omitempty" yaml:"tls,omitempty" toml:"tls,omitempty" mapstructure:"tls,omitempty"`
}

// Validate checks the config coherence and returns a collected error.
func (c *Config) Validate() error {
	val := libval.New()

	if err := val.Struct(c); err != nil {
		e := ErrorValidatorError.Error(nil)

		if ve, ok := err.(libval.ValidationErrors); ok {
			for _, f := range ve {
				e.Add(ErrorValidatorField.Error(f))
			}
		} else {
			e.Add(err)
		}

		if e.HasParent() {
			return e
		}
	}

	return nil
}
