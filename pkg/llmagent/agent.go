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

package llmagent

import (
	"context"
	"encoding/json"
	"fmt"

	llms "github.com/kadirpekel/mcpmesh/pkg/llm"
	"github.com/kadirpekel/mcpmesh/pkg/mesh"
	"github.com/kadirpekel/mcpmesh/pkg/mesherr"
)

// ToolInvoker dispatches one resolved tool call to its bound proxy. The
// injector supplies this per-function, over whichever proxy variant the
// Heartbeat Pipeline bound for that tool.
type ToolInvoker func(ctx context.Context, toolName string, args map[string]any) (string, error)

// DefaultMaxIterations is used when an @llm declaration does not
// override it.
const DefaultMaxIterations = 10

// MeshLlmAgent is the per-@llm-function agentic loop: a fixed transport,
// a filtered tool set, a typed output contract, and a bounded iteration
// budget. Instances are immutable after construction - a topology change
// builds a new one and swaps it into the function wrapper atomically.
type MeshLlmAgent struct {
	functionID    string
	provider      string
	transport     Transport
	tools         []llms.ToolDefinition
	invoker       ToolInvoker
	systemPrompt  string
	outputSchema  json.RawMessage
	maxIterations int
}

// Config bundles everything New needs to construct one MeshLlmAgent
// instance for a single resolved topology snapshot.
type Config struct {
	FunctionID    string
	Provider      string
	Transport     Transport
	ResolvedTools []mesh.ResolvedLlmTool
	Invoker       ToolInvoker
	SystemPrompt  string
	TemplatePath  string
	PromptData    map[string]any
	OutputSchema  json.RawMessage
	MaxIterations int
}

// New builds a MeshLlmAgent bound to one resolved tool set.
func New(cfg Config) (*MeshLlmAgent, error) {
	prompt, err := RenderSystemPrompt(cfg.SystemPrompt, cfg.TemplatePath, cfg.PromptData)
	if err != nil {
		return nil, err
	}

	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	tools := make([]llms.ToolDefinition, 0, len(cfg.ResolvedTools))
	for _, t := range cfg.ResolvedTools {
		tools = append(tools, llms.ToolDefinition{
			Name:        t.FunctionName,
			Description: t.Description,
			Parameters:  schemaToMap(t.InputSchema),
		})
	}

	return &MeshLlmAgent{
		functionID:    cfg.FunctionID,
		provider:      cfg.Provider,
		transport:     cfg.Transport,
		tools:         tools,
		invoker:       cfg.Invoker,
		systemPrompt:  prompt,
		outputSchema:  cfg.OutputSchema,
		maxIterations: maxIter,
	}, nil
}

// Run drives the bounded agentic loop for one user turn: complete,
// dispatch any tool calls, repeat until a final response or the
// iteration budget is exhausted. The returned JSON is validated against
// the declared output schema. messages are not retained past return.
func (a *MeshLlmAgent) Run(ctx context.Context, userMessage string) (json.RawMessage, error) {
	messages := []llms.Message{
		{Role: "system", Content: a.systemPrompt},
		{Role: "user", Content: userMessage},
	}

	for iter := 1; iter <= a.maxIterations; iter++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		result, err := a.transport.Complete(ctx, messages, a.tools)
		if err != nil {
			return nil, mesherr.NewLLMAPIError(a.provider, err)
		}

		if len(result.ToolCalls) == 0 {
			return ValidateOutput(result.Content, a.outputSchema)
		}

		messages = append(messages, llms.Message{
			Role:      "assistant",
			ToolCalls: result.ToolCalls,
		})

		for _, call := range result.ToolCalls {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}

			output, callErr := a.invoker(ctx, call.Name, call.Arguments)
			if callErr != nil {
				output = fmt.Sprintf("error: %v", mesherr.NewToolExecutionError(call.Name, callErr))
			}
			messages = append(messages, llms.Message{
				Role:       "tool",
				Content:    output,
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}
	}

	return nil, mesherr.NewMaxIterationsError(a.functionID, a.maxIterations)
}

func schemaToMap(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
