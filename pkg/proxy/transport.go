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

// Package proxy implements the four client variants the Dependency
// Injector binds a tool dependency to: Basic, Full-MCP, Streaming, and
// Session-Affine. Every variant is bound to (endpoint, function_name,
// kwargs_config) and is stateless across calls - no pooled connections,
// no shared mutable state beyond an optional session id.
package proxy

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kadirpekel/mcpmesh/pkg/auth"
	"github.com/kadirpekel/mcpmesh/pkg/httpclient"
	"github.com/kadirpekel/mcpmesh/pkg/mesherr"
)

// KwargsConfig is the subset of a dependency's kwargs that governs proxy
// transport behavior: timeouts, retries, custom headers, credentials, and
// which variant the injector should select.
type KwargsConfig struct {
	Timeout         time.Duration
	MaxRetries      int
	Headers         map[string]string
	Streaming       bool
	SessionRequired bool
	RequiresFullMCP bool
	Auth            auth.TokenProvider
}

// rpcRequest is a JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// rpcResponse is a JSON-RPC 2.0 response envelope.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// contentBlock is one entry of an MCP tool result's content array.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// transport is the shared request/response machinery every proxy variant
// composes. It is not exported: user code only ever sees a variant.
type transport struct {
	endpoint string
	client   *httpclient.Client
	headers  map[string]string
	auth     auth.TokenProvider
}

func newTransport(endpoint string, cfg KwargsConfig) *transport {
	opts := []httpclient.Option{}
	if cfg.MaxRetries > 0 {
		opts = append(opts, httpclient.WithMaxRetries(cfg.MaxRetries))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	return &transport{
		endpoint: endpoint,
		client:   httpclient.New(opts...),
		headers:  cfg.Headers,
		auth:     cfg.Auth,
	}
}

// call issues one JSON-RPC method call and returns its decoded result,
// or a mesherr taxonomy error. It transparently handles either a plain
// JSON body or an SSE stream (FastMCP's default), taking the first
// complete `data:` line that parses as a JSON-RPC response.
func (t *transport) call(ctx context.Context, method string, params interface{}, sessionID string) (json.RawMessage, error) {
	req := rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, mesherr.NewResponseParseError("request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, mesherr.NewRemoteCallError(t.endpoint, 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	for k, v := range t.headers {
		httpReq.Header.Set(k, v)
	}
	if sessionID != "" {
		httpReq.Header.Set("mcp-session-id", sessionID)
	}
	if t.auth != nil {
		token, err := t.auth()
		if err != nil {
			return nil, mesherr.NewRemoteCallError(t.endpoint, 0, err)
		}
		httpReq.Header.Set("Authorization", token)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, mesherr.NewRemoteCallError(t.endpoint, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, mesherr.NewRemoteCallError(t.endpoint, resp.StatusCode, fmt.Errorf("%s", string(respBody)))
	}

	var rpcResp *rpcResponse
	if strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		rpcResp, err = readFirstSSEEvent(resp.Body)
	} else {
		rpcResp, err = decodeJSONBody(resp.Body)
	}
	if err != nil {
		return nil, err
	}

	if rpcResp.Error != nil {
		return nil, mesherr.NewToolCallError(rpcResp.Error.Message, rpcResp.Error.Code, rpcResp.Error.Data)
	}
	return rpcResp.Result, nil
}

func decodeJSONBody(body io.Reader) (*rpcResponse, error) {
	var resp rpcResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, mesherr.NewResponseParseError("json-rpc response", err)
	}
	return &resp, nil
}

// readFirstSSEEvent scans an SSE stream for the first event whose `data:`
// payload parses as a complete JSON-RPC response.
func readFirstSSEEvent(body io.Reader) (*rpcResponse, error) {
	reader := bufio.NewReader(body)
	var data strings.Builder

	for {
		line, err := reader.ReadString('\n')
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "data:") {
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(trimmed, "data:")))
		} else if trimmed == "" && data.Len() > 0 {
			var resp rpcResponse
			if jsonErr := json.Unmarshal([]byte(data.String()), &resp); jsonErr == nil {
				return &resp, nil
			}
			data.Reset()
		}

		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, mesherr.NewResponseParseError("sse stream", err)
		}
	}

	if data.Len() > 0 {
		var resp rpcResponse
		if jsonErr := json.Unmarshal([]byte(data.String()), &resp); jsonErr == nil {
			return &resp, nil
		}
	}

	return nil, mesherr.NewResponseParseError("sse stream", fmt.Errorf("stream ended without a complete event"))
}

// extractToolResult normalizes an MCP tools/call result: a single text
// block is returned as a bare string; multiple blocks become a
// newline-joined, normalized multi-content string.
func extractToolResult(raw json.RawMessage) (string, error) {
	var wrapper struct {
		Content []contentBlock `json:"content"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return "", mesherr.NewResponseParseError("tool result", err)
	}

	if len(wrapper.Content) == 1 {
		return wrapper.Content[0].Text, nil
	}

	var sb strings.Builder
	for i, block := range wrapper.Content {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(block.Text)
	}
	return sb.String(), nil
}
