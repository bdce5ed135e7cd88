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
	"strings"

	"github.com/nabbar/proxycore/backend"
	"github.com/nabbar/proxycore/config"
	"github.com/nabbar/proxycore/errors"
	"github.com/nabbar/proxycore/logger"
	"github.com/nabbar/proxycore/route"
)

// Hooks are the worker-side effects the plane triggers but does not own.
type Hooks struct {
	ActivateListener    func(cfg config.ListenerConfig) errors.Error
	DeactivateListener  func(addr string) errors.Error
	AddCertificate      func(cfg config.CertificateConfig) errors.Error
	RemoveCertificate   func(addr, hostname string) errors.Error
	SoftStop            func()
	HardStop            func()
	ReturnListenSockets func() errors.Error
	Status              func() map[string]interface{}
}

// Plane owns the runtime routing/backends/listener bookkeeping and applies admin
// mutations synchronously, between event-loop iterations.
type Plane struct {
	registry *backend.Registry
	router   *route.Router
	hooks    Hooks
	log      logger.FuncLog

	// tcpClusters maps a TCP listener address to its cluster.
	tcpClusters map[string]string

	// declarative mirror of every applied mutation, for dump/save/replay
	clusters  map[string]config.ClusterConfig
	backends  map[string]config.BackendConfig
	frontends map[string]config.FrontendConfig
	listeners map[string]config.ListenerConfig
	certs     map[string]config.CertificateConfig

	publisher *Publisher
}

func NewPlane(reg *backend.Registry, router *route.Router, hooks Hooks, log logger.FuncLog) *Plane {
	return &Plane{
		registry:    reg,
		router:      router,
		hooks:       hooks,
		log:         log,
		tcpClusters: make(map[string]string),
		clusters:    make(map[string]config.ClusterConfig),
		backends:    make(map[string]config.BackendConfig),
		frontends:   make(map[string]config.FrontendConfig),
		listeners:   make(map[string]config.ListenerConfig),
		certs:       make(map[string]config.CertificateConfig),
	}
}

// SetPublisher attaches the event publisher used for the out-of-band event stream.
func (p *Plane) SetPublisher(pub *Publisher) {
	p.publisher = pub
}

// OnEvent receives registry events from the worker goroutine and fans them out.
func (p *Plane) OnEvent(e backend.Event) {
	p.logger().Info("event %s cluster=%s backend=%s", nil, e.Kind, e.ClusterID, e.BackendID)

	if p.publisher != nil {
		p.publisher.Publish(e)
	}
}

// TCPCluster resolves a TCP listener address to its cluster.
func (p *Plane) TCPCluster(listenerAddr string) (string, errors.Error) {
	if c, ok := p.tcpClusters[listenerAddr]; ok {
		return c, nil
	}

	return "", ErrorListenerUnknown.Error(nil)
}

// Apply executes one admin request and returns its responses: possibly a Processing
// frame, always exactly one terminal frame, all echoing the request id.
func (p *Plane) Apply(req WorkerRequest) []WorkerResponse {
	switch req.Type {
	case ReqAddCluster:
		return p.applyAddCluster(req)
	case ReqRemoveCluster:
		return p.applyRemoveCluster(req)
	case ReqAddHTTPFrontend, ReqAddHTTPSFrontend:
		return p.applyAddFrontend(req)
	case ReqAddTCPFrontend:
		return p.applyAddTCPFrontend(req)
	case ReqRemoveFrontend:
		return p.applyRemoveFrontend(req)
	case ReqAddBackend:
		return p.applyAddBackend(req)
	case ReqRemoveBackend:
		return p.applyRemoveBackend(req)
	case ReqAddCertificate:
		return p.applyAddCertificate(req)
	case ReqRemoveCertificate:
		return p.applyRemoveCertificate(req)
	case ReqActivateListener:
		return p.applyActivateListener(req)
	case ReqDeactivateListener:
		return p.applyDeactivateListener(req)
	case ReqStatus:
		return p.applyStatus(req)
	case ReqDumpState:
		return p.applyDumpState(req)
	case ReqSaveState:
		return p.applySaveState(req)
	case ReqLoadState:
		return p.applyLoadState(req)
	case ReqSoftStop:
		p.hooks.SoftStop()
		return []WorkerResponse{Processing(req.ID, "draining sessions"), Ok(req.ID, "soft stop engaged")}
	case ReqHardStop:
		p.hooks.HardStop()
		return []WorkerResponse{Ok(req.ID, "hard stop engaged")}
	case ReqReturnListenSockets:
		if err := p.hooks.ReturnListenSockets(); err != nil {
			return []WorkerResponse{Err(req.ID, err)}
		}
		return []WorkerResponse{Ok(req.ID, "listen sockets returned")}
	case ReqLaunchWorker, ReqUpgradeMaster:
		// owned by the supervisor; a worker acknowledges without acting
		return []WorkerResponse{Ok(req.ID, "forwarded to supervisor")}
	default:
		return []WorkerResponse{Err(req.ID, ErrorUnknownRequest.Error(nil))}
	}
}

func (p *Plane) applyAddCluster(req WorkerRequest) []WorkerResponse {
	cfg := config.ClusterConfig{}
	if err := config.Decode(req.Payload, &cfg); err != nil {
		return []WorkerResponse{Err(req.ID, err)}
	}

	opts := backend.ClusterOptions{
		StickySession:  cfg.StickySession,
		HTTPSRedirect:  cfg.HTTPSRedirect,
		LoadBalancing:  cfg.LoadBalancing,
		Unavailable503: []byte(cfg.Custom503),
	}

	if err := p.registry.AddCluster(cfg.ClusterID, opts); err != nil {
		return []WorkerResponse{Err(req.ID, err)}
	}

	p.clusters[cfg.ClusterID] = cfg

	return []WorkerResponse{Ok(req.ID, "cluster added")}
}

func (p *Plane) applyRemoveCluster(req WorkerRequest) []WorkerResponse {
	cfg := struct {
		ClusterID string `mapstructure:"clusterId" validate:"required"`
	}{}
	if err := config.Decode(req.Payload, &cfg); err != nil {
		return []WorkerResponse{Err(req.ID, err)}
	}

	if err := p.registry.RemoveCluster(cfg.ClusterID); err != nil {
		return []WorkerResponse{Err(req.ID, err)}
	}

	delete(p.clusters, cfg.ClusterID)
	for k, b := range p.backends {
		if b.ClusterID == cfg.ClusterID {
			delete(p.backends, k)
		}
	}

	return []WorkerResponse{Ok(req.ID, "cluster removed")}
}

func (p *Plane) applyAddFrontend(req WorkerRequest) []WorkerResponse {
	cfg := config.FrontendConfig{}
	if err := config.Decode(req.Payload, &cfg); err != nil {
		return []WorkerResponse{Err(req.ID, err)}
	}

	rule, err := frontendRule(cfg)
	if err != nil {
		return []WorkerResponse{Err(req.ID, err)}
	}

	if err := p.router.AddRule(rule); err != nil {
		return []WorkerResponse{Err(req.ID, err)}
	}

	p.frontends[cfg.RuleID] = cfg

	return []WorkerResponse{Ok(req.ID, "frontend added")}
}

func (p *Plane) applyAddTCPFrontend(req WorkerRequest) []WorkerResponse {
	cfg := config.FrontendConfig{}
	if err := config.Decode(req.Payload, &cfg); err != nil {
		return []WorkerResponse{Err(req.ID, err)}
	}

	if cfg.ClusterID == "" {
		return []WorkerResponse{Err(req.ID, ErrorBadPayload.Error(nil))}
	}

	p.tcpClusters[cfg.Address] = cfg.ClusterID
	p.frontends[cfg.RuleID] = cfg

	return []WorkerResponse{Ok(req.ID, "tcp frontend added")}
}

func (p *Plane) applyRemoveFrontend(req WorkerRequest) []WorkerResponse {
	cfg := struct {
		RuleID string `mapstructure:"ruleId" validate:"required"`
	}{}
	if err := config.Decode(req.Payload, &cfg); err != nil {
		return []WorkerResponse{Err(req.ID, err)}
	}

	if f, ok := p.frontends[cfg.RuleID]; ok && f.ClusterID != "" && p.tcpClusters[f.Address] == f.ClusterID {
		delete(p.tcpClusters, f.Address)
		delete(p.frontends, cfg.RuleID)
		return []WorkerResponse{Ok(req.ID, "tcp frontend removed")}
	}

	if err := p.router.RemoveRule(cfg.RuleID); err != nil {
		return []WorkerResponse{Err(req.ID, err)}
	}

	delete(p.frontends, cfg.RuleID)

	return []WorkerResponse{Ok(req.ID, "frontend removed")}
}

func (p *Plane) applyAddBackend(req WorkerRequest) []WorkerResponse {
	cfg := config.BackendConfig{}
	if err := config.Decode(req.Payload, &cfg); err != nil {
		return []WorkerResponse{Err(req.ID, err)}
	}

	b := backend.New(cfg.ClusterID, cfg.BackendID, cfg.Address)
	b.Sticky = cfg.StickyID
	b.Backup = cfg.Backup
	b.Weight = cfg.Weight

	if err := p.registry.Add(b); err != nil {
		return []WorkerResponse{Err(req.ID, err)}
	}

	p.backends[cfg.ClusterID+"/"+cfg.BackendID] = cfg

	return []WorkerResponse{Ok(req.ID, "backend added")}
}

func (p *Plane) applyRemoveBackend(req WorkerRequest) []WorkerResponse {
	cfg := struct {
		ClusterID string `mapstructure:"clusterId" validate:"required"`
		BackendID string `mapstructure:"backendId" validate:"required"`
	}{}
	if err := config.Decode(req.Payload, &cfg); err != nil {
		return []WorkerResponse{Err(req.ID, err)}
	}

	if err := p.registry.Remove(cfg.ClusterID, cfg.BackendID); err != nil {
		return []WorkerResponse{Err(req.ID, err)}
	}

	delete(p.backends, cfg.ClusterID+"/"+cfg.BackendID)

	return []WorkerResponse{Ok(req.ID, "backend removal engaged")}
}

func (p *Plane) applyAddCertificate(req WorkerRequest) []WorkerResponse {
	cfg := config.CertificateConfig{}
	if err := config.Decode(req.Payload, &cfg); err != nil {
		return []WorkerResponse{Err(req.ID, err)}
	}

	if err := p.hooks.AddCertificate(cfg); err != nil {
		return []WorkerResponse{Err(req.ID, err)}
	}

	p.certs[cfg.Address+"/"+cfg.Hostname] = cfg

	return []WorkerResponse{Ok(req.ID, "certificate added")}
}

func (p *Plane) applyRemoveCertificate(req WorkerRequest) []WorkerResponse {
	cfg := struct {
		Address  string `mapstructure:"address" validate:"required"`
		Hostname string `mapstructure:"hostname" validate:"required"`
	}{}
	if err := config.Decode(req.Payload, &cfg); err != nil {
		return []WorkerResponse{Err(req.ID, err)}
	}

	if err := p.hooks.RemoveCertificate(cfg.Address, cfg.Hostname); err != nil {
		return []WorkerResponse{Err(req.ID, err)}
	}

	delete(p.certs, cfg.Address+"/"+cfg.Hostname)

	return []WorkerResponse{Ok(req.ID, "certificate removed")}
}

func (p *Plane) applyActivateListener(req WorkerRequest) []WorkerResponse {
	cfg := config.ListenerConfig{}
	if err := config.Decode(req.Payload, &cfg); err != nil {
		return []WorkerResponse{Err(req.ID, err)}
	}

	if err := p.hooks.ActivateListener(cfg); err != nil {
		return []WorkerResponse{Err(req.ID, err)}
	}

	p.listeners[cfg.Address] = cfg

	return []WorkerResponse{Ok(req.ID, "listener active")}
}

func (p *Plane) applyDeactivateListener(req WorkerRequest) []WorkerResponse {
	cfg := struct {
		Address string `mapstructure:"address" validate:"required"`
	}{}
	if err := config.Decode(req.Payload, &cfg); err != nil {
		return []WorkerResponse{Err(req.ID, err)}
	}

	if err := p.hooks.DeactivateListener(cfg.Address); err != nil {
		return []WorkerResponse{Err(req.ID, err)}
	}

	delete(p.listeners, cfg.Address)

	return []WorkerResponse{Ok(req.ID, "listener inactive")}
}

func (p *Plane) applyStatus(req WorkerRequest) []WorkerResponse {
	data := p.statusData()

	if p.hooks.Status != nil {
		for k, v := range p.hooks.Status() {
			data[k] = v
		}
	}

	return []WorkerResponse{OkData(req.ID, "status", data)}
}

func (p *Plane) logger() logger.Logger {
	if p.log != nil {
		if l := p.log(); l != nil {
			return l
		}
	}

	return logger.New()
}

// frontendRule converts a decoded frontend config into a router rule.
func frontendRule(cfg config.FrontendConfig) (*route.Rule, errors.Error) {
	var kind route.PathKind

	switch strings.ToLower(cfg.PathKind) {
	case "", "prefix":
		kind = route.PathPrefix
	case "exact":
		kind = route.PathExact
	case "regex":
		kind = route.PathRegex
	default:
		return nil, ErrorBadPayload.Error(nil)
	}

	pattern := cfg.Path
	if pattern == "" {
		pattern = "/"
	}

	path, err := route.NewPathRule(kind, pattern)
	if err != nil {
		return nil, err
	}

	var pos route.Position
	switch strings.ToLower(cfg.Position) {
	case "pre":
		pos = route.Pre
	case "", "tree":
		pos = route.Tree
	case "post":
		pos = route.Post
	}

	target := route.Target{Kind: route.TargetCluster, ClusterID: cfg.ClusterID}
	if cfg.RedirectHTTPS {
		target = route.Target{Kind: route.TargetRedirectHTTPS}
	} else if cfg.ClusterID == "" {
		return nil, ErrorBadPayload.Error(nil)
	}

	return &route.Rule{
		RuleID:   cfg.RuleID,
		Address:  cfg.Address,
		Hostname: cfg.Hostname,
		Path:     path,
		Method:   strings.ToUpper(cfg.Method),
		Position: pos,
		Target:   target,
	}, nil
}
