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

// Package llmagent is the LLM Agent Subsystem: for each @llm function it
// builds a MeshLlmAgent bound to the currently resolved tool set, and
// runs the bounded agentic tool-use loop.
package llmagent

import (
	"context"

	llms "github.com/kadirpekel/mcpmesh/pkg/llm"
)

// StopReason mirrors the transport's reason for ending one completion.
type StopReason string

const (
	StopReasonToolCalls StopReason = "tool_calls"
	StopReasonComplete  StopReason = "complete"
)

// Usage reports token accounting for one completion call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionResult is what a Transport call returns: either a final
// content string, or a set of tool calls to dispatch before continuing
// the loop.
type CompletionResult struct {
	Content    string
	ToolCalls  []llms.ToolCall
	StopReason StopReason
	Usage      Usage
}

// Transport is the LLM Agent Subsystem's one external dependency: given
// messages and tool schemas, produce a completion. Any failure from an
// implementation is wrapped as mesherr.LLMAPIError by the caller.
type Transport interface {
	Complete(ctx context.Context, messages []llms.Message, tools []llms.ToolDefinition) (*CompletionResult, error)
}
