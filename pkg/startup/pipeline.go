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

// Package startup runs the one-shot sequence that turns a process full of
// decorator registrations into a live mesh agent: given the resolved host
// config, it publishes every registered tool through the Dependency
// Injector, runs one heartbeat to seed the initial topology, brings up the
// MCP HTTP surface, and registers the cleanup handlers the shutdown path
// runs. Installing the signal handlers is left to the caller.
package startup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/mcpmesh/pkg/auth"
	"github.com/kadirpekel/mcpmesh/pkg/decorator"
	"github.com/kadirpekel/mcpmesh/pkg/heartbeat"
	"github.com/kadirpekel/mcpmesh/pkg/hostconfig"
	"github.com/kadirpekel/mcpmesh/pkg/inject"
	"github.com/kadirpekel/mcpmesh/pkg/lifecycle"
	"github.com/kadirpekel/mcpmesh/pkg/llmagent"
	"github.com/kadirpekel/mcpmesh/pkg/mcpserver"
	"github.com/kadirpekel/mcpmesh/pkg/mesh"
	"github.com/kadirpekel/mcpmesh/pkg/observability"
	"github.com/kadirpekel/mcpmesh/pkg/proxy"
	"github.com/kadirpekel/mcpmesh/pkg/ratelimit"
	"github.com/kadirpekel/mcpmesh/pkg/registryclient"
)

// Config is everything the Startup Pipeline needs that isn't already
// sitting in the Decorator Registry: the resolved host config, and the
// optional cross-cutting pieces a process may or may not have configured.
type Config struct {
	Registry       *decorator.Registry
	Resolved       *hostconfig.Resolved
	Auth           *auth.JWTValidator
	Observability  *observability.Manager
	RateLimitStore ratelimit.Store
}

// Agent is the fully wired, running mesh agent. AgentID is generated once
// per process start and is stable for the process's lifetime.
type Agent struct {
	AgentID   string
	Injector  *inject.Injector
	Heartbeat *heartbeat.Pipeline
	Server    *mcpserver.Server
	Lifecycle *lifecycle.Manager
}

// Run executes the startup sequence once: enumerate the registry, wrap
// every tool, run a seeding heartbeat, and conditionally start the HTTP
// surface and the auto-run heartbeat loop. The returned Agent is already
// live; Run does not block. The caller is expected to then block on
// Agent.Lifecycle.InstallSignalHandlers to drive graceful shutdown.
func Run(ctx context.Context, cfg Config) (*Agent, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("startup: registry is required")
	}
	if cfg.Resolved == nil {
		return nil, fmt.Errorf("startup: resolved host config is required")
	}

	agentDecl := cfg.Registry.GetResolvedAgentConfig()
	agentName := firstNonEmpty(agentDecl.Name, cfg.Resolved.AgentName)
	agentID := agentName + "-" + uuid.NewString()

	lc := lifecycle.New(0, 0)
	injector := inject.New(cfg.Resolved.UpdateStrategy, durationSeconds(cfg.Resolved.UpdateGracePeriod))

	wireTools(cfg.Registry, injector)

	client := registryclient.New(cfg.Resolved.RegistryURL)
	toolsSnapshot := func() []registryclient.ToolPayload {
		return snapshotTools(cfg.Registry)
	}

	pipeline := heartbeat.New(client, agentID, "mesh-agent", injector, buildLlmAgentBuilder(cfg), lc, toolsSnapshot)
	wireLlmFunctions(cfg.Registry, pipeline)

	pipeline.RunCycle(ctx)

	agent := &Agent{
		AgentID:   agentID,
		Injector:  injector,
		Heartbeat: pipeline,
		Lifecycle: lc,
	}

	var limiter ratelimit.RateLimiter
	var limiterErr error
	if cfg.RateLimitStore != nil {
		limiter, limiterErr = ratelimit.NewRateLimiterFromSpecWithStore(cfg.Resolved.RateLimitSpec(), cfg.RateLimitStore)
	} else {
		limiter, limiterErr = ratelimit.NewRateLimiterFromSpec(cfg.Resolved.RateLimitSpec())
	}
	if limiterErr != nil {
		return nil, fmt.Errorf("startup: building rate limiter: %w", limiterErr)
	}

	enableHTTP := agentDecl.EnableHTTP || cfg.Resolved.EnableHTTP
	if enableHTTP {
		srv := mcpserver.New(mcpserver.Config{
			Registry:      cfg.Registry,
			AgentName:     agentName,
			AgentID:       agentID,
			Auth:          cfg.Auth,
			Observability: cfg.Observability,
			RateLimiter:   limiter,
		})
		host := firstNonEmpty(agentDecl.HTTPHost, cfg.Resolved.HTTPHost)
		port := agentDecl.HTTPPort
		if port == 0 {
			port = cfg.Resolved.HTTPPort
		}
		if err := srv.Start(host, port); err != nil {
			return nil, fmt.Errorf("startup: mcp http surface failed to start: %w", err)
		}
		lc.RegisterCleanupHandler("mcp-http-server", srv.Shutdown)
		agent.Server = srv
	}

	autoRun := agentDecl.AutoRun || cfg.Resolved.AutoRun
	if autoRun {
		interval := durationSeconds(firstNonZero(agentDecl.AutoRunInterval, cfg.Resolved.AutoRunInterval))
		loopCtx, cancel := context.WithCancel(context.Background())
		loopDone := make(chan struct{})
		lc.RegisterCleanupHandler("heartbeat-loop", func(context.Context) error {
			cancel()
			return nil
		})
		lc.Join(func(ctx context.Context) error {
			select {
			case <-loopDone:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		go func() {
			defer close(loopDone)
			pipeline.Run(loopCtx, interval)
		}()
	}

	slog.Info("startup: agent ready",
		"agent_id", agentID,
		"tools", len(cfg.Registry.GetMeshTools()),
		"llm_functions", len(cfg.Registry.GetLlmDeclarations()),
		"http_enabled", enableHTTP,
		"auto_run", autoRun,
	)

	return agent, nil
}

// wireTools publishes every registered tool's callable through an
// inject.Wrapper, then replaces the registry's copy with the wrapper's
// own Call method - from this point on, every invocation (whether from
// the MCP HTTP surface or a future direct call) goes through positional
// dependency injection.
func wireTools(registry *decorator.Registry, injector *inject.Injector) {
	for _, decl := range registry.GetMeshTools() {
		fn, ok := registry.GetFunction(decl.FunctionID)
		if !ok {
			continue
		}

		positions := make([]int, len(decl.Dependencies))
		for i := range positions {
			positions[i] = i
		}

		wrapper := injector.RegisterWrapper(decl.FunctionID, decl.Dependencies, positions, inject.TargetFunc(fn))
		registry.UpdateMeshToolFunction(decl.FunctionID, func(ctx context.Context, _ []any, args map[string]any) (any, error) {
			return wrapper.Call(ctx, args)
		})
	}
}

// wireLlmFunctions publishes each @llm function into the registry's
// callable table too, so it is invokable through the same surface as a
// @tool: the call reads whatever agent the Heartbeat Pipeline's AgentSlot
// currently holds and runs one turn against args["message"].
func wireLlmFunctions(registry *decorator.Registry, pipeline *heartbeat.Pipeline) {
	for _, decl := range registry.GetLlmDeclarations() {
		functionID := decl.FunctionID
		slot := pipeline.AgentSlot(functionID)
		registry.UpdateMeshToolFunction(functionID, func(ctx context.Context, _ []any, args map[string]any) (any, error) {
			agent, _ := slot.Get().(*llmagent.MeshLlmAgent)
			if agent == nil {
				return nil, fmt.Errorf("llm function %s has no tools resolved yet", functionID)
			}
			message, _ := args["message"].(string)
			return agent.Run(ctx, message)
		})
	}
}

// buildLlmAgentBuilder constructs the LlmAgentBuilder the Heartbeat
// Pipeline drives on every topology change. It needs no reference to the
// pipeline itself - only the registry's declarations and the resolved
// default provider/model/key to fall back on when a declaration omits
// them.
func buildLlmAgentBuilder(cfg Config) heartbeat.LlmAgentBuilder {
	return func(functionID string, tools []mesh.ResolvedLlmTool) (any, error) {
		decl, ok := findLlmDeclaration(cfg.Registry, functionID)
		if !ok {
			return nil, fmt.Errorf("startup: no llm declaration registered for %s", functionID)
		}

		provider := firstNonEmpty(decl.Provider, cfg.Resolved.LLMProvider)
		model := firstNonEmpty(decl.Model, cfg.Resolved.LLMModel)
		apiKey := firstNonEmpty(decl.APIKey, cfg.Resolved.LLMAPIKey)

		transport, err := llmagent.NewGenAITransport(context.Background(), apiKey, model)
		if err != nil {
			return nil, fmt.Errorf("startup: building llm transport for %s: %w", functionID, err)
		}

		endpoints := make(map[string]string, len(tools))
		for _, t := range tools {
			endpoints[t.FunctionName] = t.Endpoint
		}
		invoker := func(ctx context.Context, toolName string, args map[string]any) (string, error) {
			endpoint, ok := endpoints[toolName]
			if !ok {
				return "", fmt.Errorf("startup: %s has no endpoint resolved for tool %q", functionID, toolName)
			}
			return proxy.NewBasic(endpoint, toolName, proxy.KwargsConfig{}).Call(ctx, args)
		}

		return llmagent.New(llmagent.Config{
			FunctionID:    functionID,
			Provider:      provider,
			Transport:     transport,
			ResolvedTools: tools,
			Invoker:       invoker,
			SystemPrompt:  decl.SystemPrompt,
			TemplatePath:  decl.TemplatePath,
			OutputSchema:  decl.OutputSchema,
			MaxIterations: decl.MaxIterations,
		})
	}
}

func findLlmDeclaration(registry *decorator.Registry, functionID string) (mesh.LlmDeclaration, bool) {
	for _, decl := range registry.GetLlmDeclarations() {
		if decl.FunctionID == functionID {
			return decl, true
		}
	}
	return mesh.LlmDeclaration{}, false
}

func snapshotTools(registry *decorator.Registry) []registryclient.ToolPayload {
	decls := registry.GetMeshTools()
	out := make([]registryclient.ToolPayload, 0, len(decls))
	for _, d := range decls {
		out = append(out, registryclient.ToolPayload{
			FunctionName: d.FunctionName,
			Capability:   d.Capability,
			Version:      d.Version,
			Tags:         d.Tags,
			Dependencies: d.Dependencies,
			Description:  d.Description,
			InputSchema:  d.InputSchema,
			Kwargs:       d.Kwargs,
		})
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

func durationSeconds(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
