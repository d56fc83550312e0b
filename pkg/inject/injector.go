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

// Package inject owns the per-function wrapper that positionally injects
// resolved dependency proxies into @tool and @llm functions, and applies
// the update protocol the Heartbeat Pipeline drives on topology change.
package inject

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kadirpekel/mcpmesh/pkg/hostconfig"
	"github.com/kadirpekel/mcpmesh/pkg/mesh"
)

// TargetFunc is a wrapped @tool or @llm function body. proxies holds one
// entry per dependency, in declaration order, filled in by the wrapper
// before the call.
type TargetFunc func(ctx context.Context, proxies []any, args map[string]any) (any, error)

// Wrapper is the injector's per-function state: the declaration's
// read-only dependency list, the computed parameter positions, and the
// mutable slots holding the currently-injected proxies.
type Wrapper struct {
	functionID   string
	dependencies []mesh.DependencySpec
	positions    []int
	injected     []atomic.Pointer[any]
	pending      []*time.Timer
	mu           sync.Mutex
	target       TargetFunc
	store        *GlobalStore
}

// GlobalStore is the fallback lookup the spec calls
// `global_store[function_id, position_index]`: used when a slot has never
// received a proxy (e.g. a dependency resolved before the wrapper's own
// slot was created).
type GlobalStore struct {
	mu    sync.RWMutex
	slots map[string]any
}

// NewGlobalStore creates an empty GlobalStore.
func NewGlobalStore() *GlobalStore {
	return &GlobalStore{slots: make(map[string]any)}
}

func (g *GlobalStore) key(functionID string, position int) string {
	return fmt.Sprintf("%s:dep_%d", functionID, position)
}

// Set stores a proxy under the composite key.
func (g *GlobalStore) Set(functionID string, position int, proxy any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.slots[g.key(functionID, position)] = proxy
}

// Get looks up a proxy under the composite key.
func (g *GlobalStore) Get(functionID string, position int) (any, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.slots[g.key(functionID, position)]
	return v, ok
}

// Injector owns every function wrapper in the process and applies the
// configured update strategy when the Heartbeat Pipeline reports new
// proxies.
type Injector struct {
	mu       sync.RWMutex
	wrappers map[string]*Wrapper
	store    *GlobalStore
	strategy hostconfig.UpdateStrategy
	grace    time.Duration
}

// New creates an Injector. strategy and gracePeriod come from the
// resolved host config.
func New(strategy hostconfig.UpdateStrategy, gracePeriod time.Duration) *Injector {
	return &Injector{
		wrappers: make(map[string]*Wrapper),
		store:    NewGlobalStore(),
		strategy: strategy,
		grace:    gracePeriod,
	}
}

// RegisterWrapper creates the Wrapper for one @tool function.
// positions[i] is the parameter index in the original function signature
// where dependencies[i]'s proxy belongs - computed once, ahead of time,
// from the declaration and the target's own argument convention.
func (inj *Injector) RegisterWrapper(functionID string, dependencies []mesh.DependencySpec, positions []int, target TargetFunc) *Wrapper {
	w := &Wrapper{
		functionID:   functionID,
		dependencies: dependencies,
		positions:    positions,
		injected:     make([]atomic.Pointer[any], len(dependencies)),
		pending:      make([]*time.Timer, len(dependencies)),
		target:       target,
		store:        inj.store,
	}

	inj.mu.Lock()
	inj.wrappers[functionID] = w
	inj.mu.Unlock()

	return w
}

// Call fills each declared position from the wrapper's current proxies
// (falling back to the global store) and invokes the target.
func (w *Wrapper) Call(ctx context.Context, args map[string]any) (any, error) {
	proxies := make([]any, len(w.dependencies))
	for i := range w.dependencies {
		if p := w.injected[i].Load(); p != nil {
			proxies[i] = *p
			continue
		}
		if p, ok := w.store.Get(w.functionID, i); ok {
			proxies[i] = p
		}
	}
	return w.target(ctx, proxies, args)
}

// Dependencies returns the wrapper's read-only ordered capability list.
func (w *Wrapper) Dependencies() []mesh.DependencySpec {
	return w.dependencies
}

// Positions returns the computed parameter positions.
func (w *Wrapper) Positions() []int {
	return w.positions
}

// UpdateDependency applies the injector's configured strategy for slot i
// of functionID: immediate replaces now, delayed schedules replacement
// after the grace period (cancelling any pending one), manual only logs.
func (inj *Injector) UpdateDependency(functionID string, i int, newProxy any) error {
	inj.mu.RLock()
	w, ok := inj.wrappers[functionID]
	inj.mu.RUnlock()
	if !ok {
		return fmt.Errorf("inject: unknown function %s", functionID)
	}
	if i < 0 || i >= len(w.dependencies) {
		return fmt.Errorf("inject: %s has no dependency at position %d", functionID, i)
	}

	switch inj.strategy {
	case hostconfig.StrategyManual:
		slog.Info("inject: manual strategy, proxy update logged only",
			"function_id", functionID, "position", i)
		return nil
	case hostconfig.StrategyDelayed:
		w.scheduleDelayed(i, newProxy, inj.grace)
		return nil
	default:
		w.applyNow(i, newProxy)
		return nil
	}
}

// ApplyPending forces the currently-logged update for a slot to apply
// immediately, for use under the manual strategy.
func (w *Wrapper) ApplyPending(i int, newProxy any) {
	w.applyNow(i, newProxy)
}

func (w *Wrapper) applyNow(i int, newProxy any) {
	w.mu.Lock()
	if w.pending[i] != nil {
		w.pending[i].Stop()
		w.pending[i] = nil
	}
	w.mu.Unlock()

	p := newProxy
	w.injected[i].Store(&p)
	w.store.Set(w.functionID, i, newProxy)
}

func (w *Wrapper) scheduleDelayed(i int, newProxy any, grace time.Duration) {
	w.mu.Lock()
	if w.pending[i] != nil {
		w.pending[i].Stop()
	}
	w.pending[i] = time.AfterFunc(grace, func() {
		w.applyNow(i, newProxy)
	})
	w.mu.Unlock()
}

// AgentSlot is the injector's agent-parameter wrapper for @llm functions:
// it stores exactly one value (a *llmagent.MeshLlmAgent, kept here as any
// to avoid a dependency cycle) and is swapped wholesale on topology
// change rather than per-dependency.
type AgentSlot struct {
	agent atomic.Pointer[any]
}

// NewAgentSlot creates an empty AgentSlot.
func NewAgentSlot() *AgentSlot {
	return &AgentSlot{}
}

// Set swaps the stored agent instance.
func (a *AgentSlot) Set(agent any) {
	a.agent.Store(&agent)
}

// Get returns the currently stored agent, or nil if none has been set.
func (a *AgentSlot) Get() any {
	p := a.agent.Load()
	if p == nil {
		return nil
	}
	return *p
}
