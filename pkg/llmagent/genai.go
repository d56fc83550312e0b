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
	"fmt"

	"google.golang.org/genai"

	llms "github.com/kadirpekel/mcpmesh/pkg/llm"
)

// GenAITransport implements Transport against Google's Gemini API via the
// official genai SDK. It is one concrete LLM transport; other providers
// plug in behind the same Transport interface.
type GenAITransport struct {
	client *genai.Client
	model  string
}

// NewGenAITransport creates a transport bound to one model, authenticated
// with the given API key.
func NewGenAITransport(ctx context.Context, apiKey, model string) (*GenAITransport, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("llmagent: failed to create genai client: %w", err)
	}
	return &GenAITransport{client: client, model: model}, nil
}

// Complete sends the conversation and tool schemas to Gemini and
// normalizes the response into a CompletionResult.
func (g *GenAITransport) Complete(ctx context.Context, messages []llms.Message, tools []llms.ToolDefinition) (*CompletionResult, error) {
	contents := toGenAIContents(messages)
	cfg := &genai.GenerateContentConfig{}

	if len(tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(tools))
		for _, t := range tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toGenAISchema(t.Parameters),
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return &CompletionResult{StopReason: StopReasonComplete}, nil
	}

	var text string
	var calls []llms.ToolCall
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			text += part.Text
		}
		if part.FunctionCall != nil {
			calls = append(calls, llms.ToolCall{
				Name:      part.FunctionCall.Name,
				Arguments: part.FunctionCall.Args,
			})
		}
	}

	result := &CompletionResult{Content: text, ToolCalls: calls, StopReason: StopReasonComplete}
	if len(calls) > 0 {
		result.StopReason = StopReasonToolCalls
	}
	if resp.UsageMetadata != nil {
		result.Usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return result, nil
}

func toGenAIContents(messages []llms.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role == "assistant" {
			role = "model"
		}
		if role == "system" || role == "tool" {
			// Gemini has no "system"/"tool" role on Content; fold both
			// into a user-role turn carrying the same text, which keeps
			// the transcript coherent without inventing wire behavior
			// the SDK doesn't support.
			role = "user"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return contents
}

func toGenAISchema(params map[string]interface{}) *genai.Schema {
	if params == nil {
		return nil
	}
	schema := &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{}}
	props, _ := params["properties"].(map[string]interface{})
	for name, raw := range props {
		propMap, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		schema.Properties[name] = &genai.Schema{
			Type:        genaiTypeFor(propMap["type"]),
			Description: fmt.Sprintf("%v", propMap["description"]),
		}
	}
	if required, ok := params["required"].([]interface{}); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	return schema
}

func genaiTypeFor(t interface{}) genai.Type {
	switch fmt.Sprintf("%v", t) {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}
