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

// Package decorator is the process-wide source of truth for tool, agent,
// and llm declarations captured as user modules initialize. It never
// performs I/O and never blocks, so registrations can arrive in any
// import order without risk of deadlock.
package decorator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/kadirpekel/mcpmesh/pkg/mesh"
	"github.com/kadirpekel/mcpmesh/pkg/registry"
)

// RegistrationEvent is emitted to the Debounce Coordinator on every
// register_tool/register_agent/register_llm call.
type RegistrationEvent struct {
	Kind       string // "tool", "agent", "llm"
	FunctionID string
}

// Callable is the target-function type a @tool wrapper publishes. Its
// shape matches inject.TargetFunc exactly (proxies delivered as an
// ordered slice, user arguments as a named map) so a registered Callable
// converts directly to the Dependency Injector's target. Registered before
// wrapping, it ignores proxies; after UpdateMeshToolFunction publishes a
// thin closure around the wrapper's Call method (which takes only ctx and
// args), proxies are supplied from the injector's current slots instead.
type Callable func(ctx context.Context, proxies []any, args map[string]any) (any, error)

// Registry is the Decorator Registry. Instances are constructed with New,
// so isolated instances are cheap in tests; Global below is the one shared
// instance that application code registers into.
type Registry struct {
	mu sync.Mutex

	tools     *registry.BaseRegistry[mesh.ToolDeclaration]
	toolOrder []string
	functions map[string]Callable

	llms     *registry.BaseRegistry[mesh.LlmDeclaration]
	llmOrder []string

	agent       *mesh.AgentDeclaration
	agentTarget string

	onEvent func(RegistrationEvent)
}

// New creates an empty Decorator Registry. onEvent, if non-nil, is
// invoked synchronously after every registration, outside the registry's
// lock; a Debouncer's OnEvent method fits this callback.
func New(onEvent func(RegistrationEvent)) *Registry {
	return &Registry{
		tools:     registry.NewBaseRegistry[mesh.ToolDeclaration](),
		llms:      registry.NewBaseRegistry[mesh.LlmDeclaration](),
		functions: make(map[string]Callable),
		onEvent:   onEvent,
	}
}

// Global is the conventional registration target for application code:
// a @tool/@agent/@llm function registers itself here from an init()
// function, the same way net/http.DefaultServeMux or the default
// prometheus registry work. Tests that need isolation should construct
// their own Registry with New instead of reaching for Global.
var Global = New(nil)

// RegisterTool records a @tool function's declaration and its callable.
func (r *Registry) RegisterTool(fn Callable, decl mesh.ToolDeclaration) error {
	if decl.FunctionID == "" {
		return NewDeclarationError("tool", "function_id is required")
	}

	r.mu.Lock()
	if err := r.tools.Register(decl.FunctionID, decl); err != nil {
		r.mu.Unlock()
		return err
	}
	r.toolOrder = append(r.toolOrder, decl.FunctionID)
	r.functions[decl.FunctionID] = fn
	r.mu.Unlock()

	r.emit(RegistrationEvent{Kind: "tool", FunctionID: decl.FunctionID})
	return nil
}

// RegisterAgent records the process's single AgentDeclaration. If one was
// already declared, the first registration wins and this call is logged
// and ignored.
func (r *Registry) RegisterAgent(target string, decl mesh.AgentDeclaration) {
	r.mu.Lock()
	if r.agent != nil {
		first := r.agentTarget
		r.mu.Unlock()
		slog.Warn("decorator: duplicate agent declaration ignored",
			"first", first, "duplicate", target)
		return
	}

	declCopy := decl
	r.agent = &declCopy
	r.agentTarget = target
	r.mu.Unlock()

	r.emit(RegistrationEvent{Kind: "agent", FunctionID: target})
}

// RegisterLlm records an @llm function's declaration.
func (r *Registry) RegisterLlm(decl mesh.LlmDeclaration) error {
	if decl.FunctionID == "" {
		return NewDeclarationError("llm", "function_id is required")
	}
	if decl.ParamName == "" {
		return NewDeclarationError("llm", "param_name is required")
	}

	r.mu.Lock()
	if err := r.llms.Register(decl.FunctionID, decl); err != nil {
		r.mu.Unlock()
		return err
	}
	r.llmOrder = append(r.llmOrder, decl.FunctionID)
	r.mu.Unlock()

	r.emit(RegistrationEvent{Kind: "llm", FunctionID: decl.FunctionID})
	return nil
}

func (r *Registry) emit(evt RegistrationEvent) {
	if r.onEvent != nil {
		r.onEvent(evt)
	}
}

// GetMeshTools returns every registered tool declaration, ordered by
// registration time.
func (r *Registry) GetMeshTools() []mesh.ToolDeclaration {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]mesh.ToolDeclaration, 0, len(r.toolOrder))
	for _, id := range r.toolOrder {
		if decl, ok := r.tools.Get(id); ok {
			out = append(out, decl)
		}
	}
	return out
}

// GetLlmDeclarations returns every registered llm declaration, ordered by
// registration time.
func (r *Registry) GetLlmDeclarations() []mesh.LlmDeclaration {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]mesh.LlmDeclaration, 0, len(r.llmOrder))
	for _, id := range r.llmOrder {
		if decl, ok := r.llms.Get(id); ok {
			out = append(out, decl)
		}
	}
	return out
}

// FindFunctionIDByName resolves a tool's externally-visible function_name
// (what a remote caller, e.g. the MCP HTTP surface, knows) back to its
// function_id (what the registry and the injector key on internally).
func (r *Registry) FindFunctionIDByName(functionName string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.toolOrder {
		if decl, ok := r.tools.Get(id); ok && decl.FunctionName == functionName {
			return id, true
		}
	}
	return "", false
}

// GetFunction returns the callable published for a tool's function_id.
func (r *Registry) GetFunction(functionID string) (Callable, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn, ok := r.functions[functionID]
	return fn, ok
}

// UpdateMeshToolFunction swaps the stored callable for a function_id,
// letting the Dependency Injector publish the wrapped version after it is
// built.
func (r *Registry) UpdateMeshToolFunction(functionID string, fn Callable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.functions[functionID] = fn
}

// GetResolvedAgentConfig returns the declared AgentDeclaration, or a
// zero-value default (caller applies built-in defaults) if none was
// declared.
func (r *Registry) GetResolvedAgentConfig() mesh.AgentDeclaration {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.agent != nil {
		return *r.agent
	}
	return mesh.AgentDeclaration{}
}

// HasAgent reports whether an AgentDeclaration has been registered.
func (r *Registry) HasAgent() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.agent != nil
}

// DeclarationError is raised for malformed decorator registrations - e.g.
// a tool declared without a function_id.
type DeclarationError struct {
	Kind    string
	Message string
}

func (e *DeclarationError) Error() string {
	return "decorator: invalid " + e.Kind + " declaration: " + e.Message
}

func NewDeclarationError(kind, message string) *DeclarationError {
	return &DeclarationError{Kind: kind, Message: message}
}
