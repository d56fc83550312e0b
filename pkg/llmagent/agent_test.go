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
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llms "github.com/kadirpekel/mcpmesh/pkg/llm"
	"github.com/kadirpekel/mcpmesh/pkg/mesherr"
)

// loopingTransport always asks for another tool call, never returning a
// final content response, so Run never reaches ValidateOutput.
type loopingTransport struct {
	calls int32
}

func (t *loopingTransport) Complete(ctx context.Context, messages []llms.Message, tools []llms.ToolDefinition) (*CompletionResult, error) {
	atomic.AddInt32(&t.calls, 1)
	return &CompletionResult{
		ToolCalls: []llms.ToolCall{
			{ID: "call-1", Name: "search", Arguments: map[string]any{"q": "again"}},
		},
		StopReason: StopReasonToolCalls,
	}, nil
}

// TestMeshLlmAgent_MaxIterationsExhausted is P6: a transport that never
// stops calling tools must not loop forever. Run returns a
// MaxIterationsError after exactly MaxIterations completions.
func TestMeshLlmAgent_MaxIterationsExhausted(t *testing.T) {
	transport := &loopingTransport{}
	invoker := func(ctx context.Context, toolName string, args map[string]any) (string, error) {
		return "ok", nil
	}

	agent, err := New(Config{
		FunctionID:    "fn-loop",
		Transport:     transport,
		Invoker:       invoker,
		MaxIterations: 3,
	})
	require.NoError(t, err)

	_, runErr := agent.Run(context.Background(), "do the thing")
	require.Error(t, runErr)

	var maxIterErr *mesherr.MaxIterationsError
	require.True(t, errors.As(runErr, &maxIterErr), "expected a MaxIterationsError, got %T: %v", runErr, runErr)
	assert.Equal(t, "fn-loop", maxIterErr.FunctionID)
	assert.Equal(t, 3, maxIterErr.MaxIterations)
	assert.Equal(t, int32(3), atomic.LoadInt32(&transport.calls), "transport should be called exactly MaxIterations times")
}

// TestMeshLlmAgent_ToolExecutionErrorIsFedBackAsContent verifies a failing
// tool invocation does not abort the loop: the error is surfaced to the
// transport as a tool-role message, and the loop continues.
func TestMeshLlmAgent_ToolExecutionErrorIsFedBackAsContent(t *testing.T) {
	var calls int32
	transport := &recordingTransport{
		onComplete: func(messages []llms.Message) (*CompletionResult, error) {
			n := atomic.AddInt32(&calls, 1)
			if n == 1 {
				return &CompletionResult{
					ToolCalls: []llms.ToolCall{{ID: "call-1", Name: "broken", Arguments: nil}},
				}, nil
			}
			return &CompletionResult{Content: `{"ok":true}`}, nil
		},
	}

	invoker := func(ctx context.Context, toolName string, args map[string]any) (string, error) {
		return "", errors.New("boom")
	}

	agent, err := New(Config{
		FunctionID:    "fn-retry",
		Transport:     transport,
		Invoker:       invoker,
		MaxIterations: 5,
	})
	require.NoError(t, err)

	out, runErr := agent.Run(context.Background(), "do the thing")
	require.NoError(t, runErr)
	assert.JSONEq(t, `{"ok":true}`, string(out))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

type recordingTransport struct {
	onComplete func(messages []llms.Message) (*CompletionResult, error)
}

func (t *recordingTransport) Complete(ctx context.Context, messages []llms.Message, tools []llms.ToolDefinition) (*CompletionResult, error) {
	return t.onComplete(messages)
}
