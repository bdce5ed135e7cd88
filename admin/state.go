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

package admin

import (
	"sort"

	"github.com/nabbar/proxycore/config"
)

// Snapshot is the declarative mirror of the worker's runtime state: replaying it
// through Apply rebuilds an equivalent worker. Entries are sorted so two equivalent
// workers dump byte-identical snapshots.
type Snapshot struct {
	Clusters     []config.ClusterConfig     `json:"clusters" yaml:"clusters" toml:"clusters" mapstructure:"clusters"`
	Backends     []config.BackendConfig     `json:"backends" yaml:"backends" toml:"backends" mapstructure:"backends"`
	Frontends    []config.FrontendConfig    `json:"frontends" yaml:"frontends" toml:"frontends" mapstructure:"frontends"`
	Listeners    []config.ListenerConfig    `json:"listeners" yaml:"listeners" toml:"listeners" mapstructure:"listeners"`
	Certificates []config.CertificateConfig `json:"certificates" yaml:"certificates" toml:"certificates" mapstructure:"certificates"`
}

// Snapshot captures the current declarative state.
func (p *Plane) Snapshot() Snapshot {
	s := Snapshot{}

	for _, c := range p.clusters {
		s.Clusters = append(s.Clusters, c)
	}
	for _, b := range p.backends {
		s.Backends = append(s.Backends, b)
	}
	for _, f := range p.frontends {
		s.Frontends = append(s.Frontends, f)
	}
	for _, l := range p.listeners {
		s.Listeners = append(s.Listeners, l)
	}
	for _, c := range p.certs {
		s.Certificates = append(s.Certificates, c)
	}

	sort.Slice(s.Clusters, func(i, j int) bool { return s.Clusters[i].ClusterID < s.Clusters[j].ClusterID })
	sort.Slice(s.Backends, func(i, j int) bool {
		if s.Backends[i].ClusterID != s.Backends[j].ClusterID {
			return s.Backends[i].ClusterID < s.Backends[j].ClusterID
		}
		return s.Backends[i].BackendID < s.Backends[j].BackendID
	})
	sort.Slice(s.Frontends, func(i, j int) bool { return s.Frontends[i].RuleID < s.Frontends[j].RuleID })
	sort.Slice(s.Listeners, func(i, j int) bool { return s.Listeners[i].Address < s.Listeners[j].Address })
	sort.Slice(s.Certificates, func(i, j int) bool {
		return s.Certificates[i].Address+s.Certificates[i].Hostname < s.Certificates[j].Address+s.Certificates[j].Hostname
	})

	return s
}

// Replay rebuilds the plane from a snapshot by applying the equivalent requests in
// dependency order: listeners, clusters, backends, frontends, certificates. The
// first failure aborts the replay.
func (p *Plane) Replay(s Snapshot) []WorkerResponse {
	var out []WorkerResponse

	apply := func(t RequestType, payload map[string]interface{}) bool {
		rsps := p.Apply(WorkerRequest{ID: NewRequestID(), Type: t, Payload: payload})
		out = append(out, rsps...)

		for _, r := range rsps {
			if r.Status == StatusError {
				return false
			}
		}

		return true
	}

	for _, l := range s.Listeners {
		if !apply(ReqActivateListener, structToPayload(l)) {
			return out
		}
	}

	for _, c := range s.Clusters {
		if !apply(ReqAddCluster, structToPayload(c)) {
			return out
		}
	}

	for _, b := range s.Backends {
		if !apply(ReqAddBackend, structToPayload(b)) {
			return out
		}
	}

	for _, f := range s.Frontends {
		t := ReqAddHTTPFrontend
		if _, tcp := p.tcpClusterCandidate(f); tcp {
			t = ReqAddTCPFrontend
		}
		if !apply(t, structToPayload(f)) {
			return out
		}
	}

	for _, c := range s.Certificates {
		if !apply(ReqAddCertificate, structToPayload(c)) {
			return out
		}
	}

	return out
}

// tcpClusterCandidate recognizes a frontend that belongs to a tcp listener.
func (p *Plane) tcpClusterCandidate(f config.FrontendConfig) (string, bool) {
	if l, ok := p.listeners[f.Address]; ok && l.Protocol == "tcp" {
		return f.ClusterID, true
	}

	return "", false
}
