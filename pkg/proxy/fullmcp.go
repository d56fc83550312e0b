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

package proxy

import (
	"context"
	"encoding/json"

	"github.com/kadirpekel/mcpmesh/pkg/mesherr"
)

// FullMCP is a superset of Basic: it exposes the complete MCP protocol
// surface, each method a distinct JSON-RPC call over the same transport.
type FullMCP struct {
	t            *transport
	functionName string
}

// NewFullMCP binds a Full-MCP proxy to one remote agent endpoint.
func NewFullMCP(endpoint, functionName string, cfg KwargsConfig) *FullMCP {
	return &FullMCP{t: newTransport(endpoint, cfg), functionName: functionName}
}

// Call invokes the bound tool, identical to Basic.Call.
func (f *FullMCP) Call(ctx context.Context, args map[string]interface{}) (string, error) {
	params := map[string]interface{}{"name": f.functionName, "arguments": args}
	raw, err := f.t.call(ctx, "tools/call", params, "")
	if err != nil {
		return "", err
	}
	return extractToolResult(raw)
}

// ToolInfo describes one tool exposed by the remote agent.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ListTools calls tools/list.
func (f *FullMCP) ListTools(ctx context.Context) ([]ToolInfo, error) {
	raw, err := f.t.call(ctx, "tools/list", map[string]interface{}{}, "")
	if err != nil {
		return nil, err
	}
	var wrapper struct {
		Tools []ToolInfo `json:"tools"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, mesherr.NewResponseParseError("tools/list", err)
	}
	return wrapper.Tools, nil
}

// ResourceInfo describes one resource exposed via list_resources.
type ResourceInfo struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	MimeType    string `json:"mimeType,omitempty"`
	Description string `json:"description,omitempty"`
}

// ListResources calls resources/list.
func (f *FullMCP) ListResources(ctx context.Context) ([]ResourceInfo, error) {
	raw, err := f.t.call(ctx, "resources/list", map[string]interface{}{}, "")
	if err != nil {
		return nil, err
	}
	var wrapper struct {
		Resources []ResourceInfo `json:"resources"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, mesherr.NewResponseParseError("resources/list", err)
	}
	return wrapper.Resources, nil
}

// ResourceContent is the decoded body of a read_resource call.
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// ReadResource calls resources/read for the given URI.
func (f *FullMCP) ReadResource(ctx context.Context, uri string) ([]ResourceContent, error) {
	raw, err := f.t.call(ctx, "resources/read", map[string]interface{}{"uri": uri}, "")
	if err != nil {
		return nil, err
	}
	var wrapper struct {
		Contents []ResourceContent `json:"contents"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, mesherr.NewResponseParseError("resources/read", err)
	}
	return wrapper.Contents, nil
}

// PromptInfo describes one prompt exposed via list_prompts.
type PromptInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ListPrompts calls prompts/list.
func (f *FullMCP) ListPrompts(ctx context.Context) ([]PromptInfo, error) {
	raw, err := f.t.call(ctx, "prompts/list", map[string]interface{}{}, "")
	if err != nil {
		return nil, err
	}
	var wrapper struct {
		Prompts []PromptInfo `json:"prompts"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, mesherr.NewResponseParseError("prompts/list", err)
	}
	return wrapper.Prompts, nil
}

// PromptMessage is one rendered message of a get_prompt result.
type PromptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GetPrompt calls prompts/get for the named prompt with the given
// arguments.
func (f *FullMCP) GetPrompt(ctx context.Context, name string, args map[string]interface{}) ([]PromptMessage, error) {
	params := map[string]interface{}{"name": name, "arguments": args}
	raw, err := f.t.call(ctx, "prompts/get", params, "")
	if err != nil {
		return nil, err
	}
	var wrapper struct {
		Messages []PromptMessage `json:"messages"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, mesherr.NewResponseParseError("prompts/get", err)
	}
	return wrapper.Messages, nil
}
