// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package heartbeat drives the ordered, fast-path-optimized cycle that
// keeps one agent's dependency graph live: registry-connection check,
// fast-heartbeat-check, agent-refresh, dependency-resolution, and
// llm-tools-resolution, run at a fixed interval with strict skip-on-error
// resilience.
package heartbeat

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/kadirpekel/mcpmesh/pkg/auth"
	"github.com/kadirpekel/mcpmesh/pkg/inject"
	"github.com/kadirpekel/mcpmesh/pkg/lifecycle"
	"github.com/kadirpekel/mcpmesh/pkg/mesh"
	"github.com/kadirpekel/mcpmesh/pkg/proxy"
	"github.com/kadirpekel/mcpmesh/pkg/registryclient"
)

// DefaultInterval is the fixed heartbeat cadence used unless overridden.
const DefaultInterval = 5 * time.Second

// LlmAgentBuilder constructs (or tears down, when tools is empty) the
// MeshLlmAgent bound to one @llm function's freshly-resolved tool set.
// It is supplied by the caller so this package never imports the LLM
// Agent Subsystem directly.
type LlmAgentBuilder func(functionID string, tools []mesh.ResolvedLlmTool) (agent any, err error)

// cycleContext is the ordered steps' shared state for one heartbeat
// cycle - the spec's "context map", given a concrete shape here so each
// step's inputs and outputs are checked at compile time.
type cycleContext struct {
	registryReachable bool
	fastStatus        registryclient.FastStatus
	fullResponse      *registryclient.HeartbeatResponse
	refreshed         bool
}

// Pipeline is the Heartbeat Pipeline bound to one agent.
type Pipeline struct {
	client     *registryclient.Client
	agentID    string
	agentType  string
	injector   *inject.Injector
	llmBuilder LlmAgentBuilder
	lifecycle  *lifecycle.Manager

	toolsSnapshot func() []registryclient.ToolPayload

	mu          sync.Mutex // serializes cycles; never more than one in flight
	currentDeps map[string][]mesh.ResolvedDependency
	agentSlots  map[string]*inject.AgentSlot
	slotsMu     sync.Mutex
}

// New creates a Pipeline. toolsSnapshot supplies the current tool payload
// list for full heartbeats - the Decorator Registry is the source of
// truth, via the Startup Pipeline's wiring.
func New(client *registryclient.Client, agentID, agentType string, injector *inject.Injector, llmBuilder LlmAgentBuilder, lc *lifecycle.Manager, toolsSnapshot func() []registryclient.ToolPayload) *Pipeline {
	return &Pipeline{
		client:        client,
		agentID:       agentID,
		agentType:     agentType,
		injector:      injector,
		llmBuilder:    llmBuilder,
		lifecycle:     lc,
		toolsSnapshot: toolsSnapshot,
		currentDeps:   make(map[string][]mesh.ResolvedDependency),
		agentSlots:    make(map[string]*inject.AgentSlot),
	}
}

// AgentSlot returns (creating if necessary) the agent-parameter slot for
// one @llm function, so the Dependency Injector's wrapper can read it.
func (p *Pipeline) AgentSlot(functionID string) *inject.AgentSlot {
	p.slotsMu.Lock()
	defer p.slotsMu.Unlock()
	slot, ok := p.agentSlots[functionID]
	if !ok {
		slot = inject.NewAgentSlot()
		p.agentSlots[functionID] = slot
	}
	return slot
}

// RunCycle executes one heartbeat cycle. Concurrent entry for the same
// Pipeline is serialized, not rejected: a caller blocking on the mutex
// simply waits for the in-flight cycle rather than racing it.
func (p *Pipeline) RunCycle(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lifecycle != nil && p.lifecycle.ShuttingDown() {
		return
	}

	cc := &cycleContext{}
	p.stepRegistryConnection(ctx, cc)
	p.stepFastHeartbeatCheck(ctx, cc)

	switch cc.fastStatus {
	case registryclient.TopologyChanged, registryclient.AgentUnknown:
		p.stepAgentRefresh(ctx, cc)
		if cc.refreshed {
			p.stepDependencyResolution(cc)
			p.stepLlmToolsResolution(cc)
		}
	case registryclient.NoChanges:
		// skip everything - existing state is already current.
	default:
		// REGISTRY_ERROR / NETWORK_ERROR: skip, preserving current state.
		slog.Debug("heartbeat: skipping cycle", "status", cc.fastStatus.String())
	}
}

// Run drives RunCycle at the given interval until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunCycle(ctx)
		}
	}
}

func (p *Pipeline) stepRegistryConnection(ctx context.Context, cc *cycleContext) {
	// Reachability is determined by the fast heartbeat itself in the next
	// step; this step exists as a named, ordered place for a future
	// cheaper ping without disturbing the pipeline's step order.
	cc.registryReachable = true
}

func (p *Pipeline) stepFastHeartbeatCheck(ctx context.Context, cc *cycleContext) {
	if !cc.registryReachable {
		cc.fastStatus = registryclient.NetworkError
		return
	}
	defer func() {
		if r := recover(); r != nil {
			cc.fastStatus = registryclient.NetworkError
		}
	}()
	cc.fastStatus = p.client.FastHeartbeat(ctx, p.agentID)
}

func (p *Pipeline) stepAgentRefresh(ctx context.Context, cc *cycleContext) {
	req := registryclient.HeartbeatRequest{
		AgentID:   p.agentID,
		AgentType: p.agentType,
		Timestamp: time.Now(),
		Tools:     p.toolsSnapshot(),
	}

	resp, err := p.client.FullHeartbeat(ctx, req)
	if err != nil {
		slog.Warn("heartbeat: agent-refresh failed, keeping existing state", "error", err)
		return
	}

	cc.fullResponse = resp
	cc.refreshed = true
}

func (p *Pipeline) stepDependencyResolution(cc *cycleContext) {
	for functionID, resolved := range cc.fullResponse.DependenciesResolved {
		previous := p.currentDeps[functionID]
		for i, dep := range resolved {
			var prevDep *mesh.ResolvedDependency
			if i < len(previous) {
				prevDep = &previous[i]
			}
			if prevDep != nil && reflect.DeepEqual(*prevDep, dep) {
				continue
			}
			px := buildProxy(dep)
			if err := p.injector.UpdateDependency(functionID, i, px); err != nil {
				slog.Warn("heartbeat: failed to update dependency slot",
					"function_id", functionID, "position", i, "error", err)
			}
		}
		// A shorter resolution than before means the registry stopped
		// resolving one or more trailing positions - clear their proxies
		// rather than leaving the stale ones in place.
		for i := len(resolved); i < len(previous); i++ {
			if err := p.injector.UpdateDependency(functionID, i, nil); err != nil {
				slog.Warn("heartbeat: failed to clear stale dependency slot",
					"function_id", functionID, "position", i, "error", err)
			}
		}
		p.currentDeps[functionID] = resolved
	}

	// A functionID absent from this cycle's response but present in the
	// previous one means the registry stopped resolving it entirely -
	// clear every position it used to hold.
	for functionID, previous := range p.currentDeps {
		if _, stillPresent := cc.fullResponse.DependenciesResolved[functionID]; stillPresent {
			continue
		}
		for i := range previous {
			if err := p.injector.UpdateDependency(functionID, i, nil); err != nil {
				slog.Warn("heartbeat: failed to clear removed dependency slot",
					"function_id", functionID, "position", i, "error", err)
			}
		}
		delete(p.currentDeps, functionID)
	}
}

func (p *Pipeline) stepLlmToolsResolution(cc *cycleContext) {
	if p.llmBuilder == nil {
		return
	}
	for functionID, tools := range cc.fullResponse.LlmTools {
		slot := p.AgentSlot(functionID)
		if len(tools) == 0 {
			slot.Set(nil)
			continue
		}
		agent, err := p.llmBuilder(functionID, tools)
		if err != nil {
			slog.Warn("heartbeat: failed to rebuild llm agent", "function_id", functionID, "error", err)
			continue
		}
		slot.Set(agent)
	}
}

// buildProxy selects a proxy variant for a resolved dependency per its
// kwargs flags: streaming, session affinity, or full-MCP method needs,
// defaulting to the basic single-tool proxy.
func buildProxy(dep mesh.ResolvedDependency) any {
	cfg := kwargsToConfig(dep.Kwargs)

	if asBool(dep.Kwargs, "session_required") {
		return proxy.NewSessionAffine(dep.Endpoint, dep.FunctionName, cfg)
	}
	if asBool(dep.Kwargs, "streaming") {
		return proxy.NewStreaming(dep.Endpoint, dep.FunctionName, cfg)
	}
	if cfg.RequiresFullMCP {
		return proxy.NewFullMCP(dep.Endpoint, dep.FunctionName, cfg)
	}
	return proxy.NewBasic(dep.Endpoint, dep.FunctionName, cfg)
}

func kwargsToConfig(kwargs map[string]any) proxy.KwargsConfig {
	cfg := proxy.KwargsConfig{}
	if kwargs == nil {
		return cfg
	}
	cfg.Streaming = asBool(kwargs, "streaming")
	cfg.SessionRequired = asBool(kwargs, "session_required")
	cfg.RequiresFullMCP = asBool(kwargs, "requires_full_mcp")
	if headers, ok := kwargs["headers"].(map[string]any); ok {
		cfg.Headers = make(map[string]string, len(headers))
		for k, v := range headers {
			if s, ok := v.(string); ok {
				cfg.Headers[k] = s
			}
		}
	}
	if timeout, ok := kwargs["timeout_seconds"].(float64); ok && timeout > 0 {
		cfg.Timeout = time.Duration(timeout) * time.Second
	}
	if retries, ok := kwargs["max_retries"].(float64); ok && retries > 0 {
		cfg.MaxRetries = int(retries)
	}
	if authKwargs, ok := kwargs["auth"].(map[string]any); ok {
		if provider, err := auth.NewTokenProviderFromKwargs(authKwargs); err != nil {
			slog.Warn("heartbeat: ignoring invalid auth kwargs", "error", err)
		} else {
			cfg.Auth = provider
		}
	}
	return cfg
}

func asBool(kwargs map[string]any, key string) bool {
	if kwargs == nil {
		return false
	}
	b, _ := kwargs[key].(bool)
	return b
}
