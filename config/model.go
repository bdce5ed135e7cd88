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

// Package config holds the typed structs the admin plane decodes its request
// payloads into, plus the decode/validate helpers shared by every mutation.
package config

import (
	libtls "github.com/nabbar/proxycore/certificates"
)

// ClusterConfig declares one routing cluster.
type ClusterConfig struct {
	ClusterID     string `json:"clusterId" yaml:"clusterId" toml:"clusterId" mapstructure:"clusterId" validate:"required"`
	StickySession bool   `json:"stickySession,omitempty" yaml:"stickySession,omitempty" toml:"stickySession,omitempty" mapstructure:"stickySession,omitempty"`
	HTTPSRedirect bool   `json:"httpsRedirect,omitempty" yaml:"httpsRedirect,omitempty" toml:"httpsRedirect,omitempty" mapstructure:"httpsRedirect,omitempty"`
	LoadBalancing string `json:"loadBalancing,omitempty" yaml:"loadBalancing,omitempty" toml:"loadBalancing,omitempty" mapstructure:"loadBalancing,omitempty" validate:"omitempty,oneof=round_robin roundrobin random least_loaded leastloaded least_conn"`
	Custom503     string `json:"custom503,omitempty" yaml:"custom503,omitempty" toml:"custom503,omitempty" mapstructure:"custom503,omitempty"`
}

// BackendConfig declares one origin server inside a cluster.
type BackendConfig struct {
	ClusterID string `json:"clusterId" yaml:"clusterId" toml:"clusterId" mapstructure:"clusterId" validate:"required"`
	BackendID string `json:"backendId" yaml:"backendId" toml:"backendId" mapstructure:"backendId" validate:"required"`
	Address   string `json:"address" yaml:"address" toml:"address" mapstructure:"address" validate:"required,hostname_port"`
	StickyID  string `json:"stickyId,omitempty" yaml:"stickyId,omitempty" toml:"stickyId,omitempty" mapstructure:"stickyId,omitempty"`
	Backup    bool   `json:"backup,omitempty" yaml:"backup,omitempty" toml:"backup,omitempty" mapstructure:"backup,omitempty"`
	Weight    int    `json:"weight,omitempty" yaml:"weight,omitempty" toml:"weight,omitempty" mapstructure:"weight,omitempty" validate:"omitempty,min=0"`
}

// FrontendConfig declares one routing rule bound to a listener address.
type FrontendConfig struct {
	RuleID    string `json:"ruleId" yaml:"ruleId" toml:"ruleId" mapstructure:"ruleId" validate:"required"`
	Address   string `json:"address" yaml:"address" toml:"address" mapstructure:"address" validate:"required,hostname_port"`
	Hostname  string `json:"hostname,omitempty" yaml:"hostname,omitempty" toml:"hostname,omitempty" mapstructure:"hostname,omitempty"`
	PathKind  string `json:"pathKind,omitempty" yaml:"pathKind,omitempty" toml:"pathKind,omitempty" mapstructure:"pathKind,omitempty" validate:"omitempty,oneof=exact prefix regex"`
	Path      string `json:"path,omitempty" yaml:"path,omitempty" toml:"path,omitempty" mapstructure:"path,omitempty"`
	Method    string `json:"method,omitempty" yaml:"method,omitempty" toml:"method,omitempty" mapstructure:"method,omitempty"`
	Position  string `json:"position,omitempty" yaml:"position,omitempty" toml:"position,omitempty" mapstructure:"position,omitempty" validate:"omitempty,oneof=pre tree post"`
	ClusterID string `json:"clusterId,omitempty" yaml:"clusterId,omitempty" toml:"clusterId,omitempty" mapstructure:"clusterId,omitempty"`

	// RedirectHTTPS makes the rule a terminal redirect instead of a dispatch.
	RedirectHTTPS bool `json:"redirectHttps,omitempty" yaml:"redirectHttps,omitempty" toml:"redirectHttps,omitempty" mapstructure:"redirectHttps,omitempty"`
}

// ListenerConfig declares one bound front socket.
type ListenerConfig struct {
	Address string `json:"address" yaml:"address" toml:"address" mapstructure:"address" validate:"required,hostname_port"`

	// Protocol selects the session bootstrap: http, tls or tcp.
	Protocol string `json:"protocol" yaml:"protocol" toml:"protocol" mapstructure:"protocol" validate:"required,oneof=http tls tcp"`

	// ExpectProxy makes accepted sessions parse a PROXY protocol preface first.
	ExpectProxy bool `json:"expectProxy,omitempty" yaml:"expectProxy,omitempty" toml:"expectProxy,omitempty" mapstructure:"expectProxy,omitempty"`

	// PublicAddress is the address advertised in forwarded headers when it differs
	// from the bound address.
	PublicAddress string `json:"publicAddress,omitempty" yaml:"publicAddress,omitempty" toml:"publicAddress,omitempty" mapstructure:"publicAddress,omitempty"`

	// NotFound overrides the rendered body on a routing miss.
	NotFound string `json:"notFound,omitempty" yaml:"notFound,omitempty" toml:"notFound,omitempty" mapstructure:"notFound,omitempty"`

	// TLS configures the certificate store for a tls listener.
	TLS libtls.Config `json:"tls,omitempty" yaml:"tls,omitempty" toml:"tls,omitempty" mapstructure:"tls,omitempty"`
}

// CertificateConfig adds one certificate pair served by SNI on a tls listener.
type CertificateConfig struct {
	Address     string `json:"address" yaml:"address" toml:"address" mapstructure:"address" validate:"required,hostname_port"`
	Hostname    string `json:"hostname" yaml:"hostname" toml:"hostname" mapstructure:"hostname" validate:"required"`
	Certificate string `json:"certificate" yaml:"certificate" toml:"certificate" mapstructure:"certificate" validate:"required"`
	Key         string `json:"key" yaml:"key" toml:"key" mapstructure:"key" validate:"required"`
}

// WorkerConfig is the worker process's own bootstrap configuration, loadable from a
// file or inherited over the handoff channel.
type WorkerConfig struct {
	// ID identifies the worker in logs and handoff negotiation.
	ID string `json:"id,omitempty" yaml:"id,omitempty" toml:"id,omitempty" mapstructure:"id,omitempty"`

	// CommandSocket is the unix socket path of the framed admin channel.
	CommandSocket string `json:"commandSocket" yaml:"commandSocket" toml:"commandSocket" mapstructure:"commandSocket" validate:"required"`

	// BufferSize is the size of one pooled buffer in bytes.
	BufferSize int `json:"bufferSize,omitempty" yaml:"bufferSize,omitempty" toml:"bufferSize,omitempty" mapstructure:"bufferSize,omitempty" validate:"omitempty,min=1024"`

	// MaxBuffers caps the pool, which in turn caps concurrent sessions.
	MaxBuffers int `json:"maxBuffers,omitempty" yaml:"maxBuffers,omitempty" toml:"maxBuffers,omitempty" mapstructure:"maxBuffers,omitempty" validate:"omitempty,min=2"`

	// MaxSessionsPerTick bounds how many ready sessions one loop iteration drives
	// before yielding back to the poll.
	MaxSessionsPerTick int `json:"maxSessionsPerTick,omitempty" yaml:"maxSessionsPerTick,omitempty" toml:"maxSessionsPerTick,omitempty" mapstructure:"maxSessionsPerTick,omitempty" validate:"omitempty,min=1"`

	// FrontTimeout bounds an idle front read; zero takes the default.
	FrontTimeout string `json:"frontTimeout,omitempty" yaml:"frontTimeout,omitempty" toml:"frontTimeout,omitempty" mapstructure:"frontTimeout,omitempty"`

	// ConnectTimeout bounds one backend connect; zero takes the default.
	ConnectTimeout string `json:"connectTimeout,omitempty" yaml:"connectTimeout,omitempty" toml:"connectTimeout,omitempty" mapstructure:"connectTimeout,omitempty"`

	// DrainTimeout bounds a soft stop before remaining sessions are force-closed.
	DrainTimeout string `json:"drainTimeout,omitempty" yaml:"drainTimeout,omitempty" toml:"drainTimeout,omitempty" mapstructure:"drainTimeout,omitempty"`
}
