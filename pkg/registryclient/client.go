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

// Package registryclient is a thin typed wrapper over the mesh registry's
// HTTP API: full heartbeats, fast status-only heartbeats, and response
// normalization. It never retries - that is the Heartbeat Pipeline's job.
package registryclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kadirpekel/mcpmesh/pkg/httpclient"
	"github.com/kadirpekel/mcpmesh/pkg/mesh"
	"github.com/kadirpekel/mcpmesh/pkg/mesherr"
)

// FastStatus is the semantic outcome of a fast heartbeat, derived purely
// from the HEAD response's status code.
type FastStatus int

const (
	NoChanges FastStatus = iota
	TopologyChanged
	AgentUnknown
	RegistryError
	NetworkError
)

func (s FastStatus) String() string {
	switch s {
	case NoChanges:
		return "NO_CHANGES"
	case TopologyChanged:
		return "TOPOLOGY_CHANGED"
	case AgentUnknown:
		return "AGENT_UNKNOWN"
	case RegistryError:
		return "REGISTRY_ERROR"
	default:
		return "NETWORK_ERROR"
	}
}

// Client talks to one registry base URL.
type Client struct {
	baseURL string
	http    *httpclient.Client
}

// New creates a registry Client. The underlying httpclient.Client is
// constructed with NoRetry: this layer never retries by design.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http: httpclient.New(
			httpclient.WithMaxRetries(0),
			httpclient.WithRetryStrategy(func(int) httpclient.RetryStrategy { return httpclient.NoRetry }),
		),
	}
}

// ToolPayload is one entry in a full heartbeat's tools array.
type ToolPayload struct {
	FunctionName string                 `json:"function_name"`
	Capability   string                 `json:"capability,omitempty"`
	Version      string                 `json:"version,omitempty"`
	Tags         []string               `json:"tags,omitempty"`
	Dependencies []mesh.DependencySpec  `json:"dependencies,omitempty"`
	Description  string                 `json:"description,omitempty"`
	InputSchema  json.RawMessage        `json:"input_schema,omitempty"`
	Kwargs       map[string]interface{} `json:"kwargs,omitempty"`
}

// HeartbeatRequest is the canonical full-heartbeat registration body.
type HeartbeatRequest struct {
	AgentID   string        `json:"agent_id"`
	AgentType string        `json:"agent_type"`
	Timestamp time.Time     `json:"timestamp"`
	Tools     []ToolPayload `json:"tools"`
}

// HeartbeatResponse is the full-heartbeat result, after normalization.
type HeartbeatResponse struct {
	Status               string
	TopologyHash          mesh.TopologyHash
	DependenciesResolved map[string][]mesh.ResolvedDependency
	LlmTools             map[string][]mesh.ResolvedLlmTool
}

// rawHeartbeatResponse mirrors the registry's wire shape before
// normalization; kwargs and the resolved maps may arrive loosely typed.
type rawHeartbeatResponse struct {
	Status               string                     `json:"status"`
	TopologyHash          string                     `json:"topology_hash"`
	DependenciesResolved json.RawMessage            `json:"dependencies_resolved"`
	LlmTools             json.RawMessage            `json:"llm_tools"`
}

// FullHeartbeat performs POST /heartbeat, the full registration+resolution
// round trip.
func (c *Client) FullHeartbeat(ctx context.Context, req HeartbeatRequest) (*HeartbeatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, mesherr.NewResponseParseError("heartbeat request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/heartbeat", bytes.NewReader(body))
	if err != nil {
		return nil, mesherr.NewRemoteCallError(c.baseURL+"/heartbeat", 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, mesherr.NewRemoteCallError(c.baseURL+"/heartbeat", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, mesherr.NewRemoteCallError(c.baseURL+"/heartbeat", resp.StatusCode, fmt.Errorf("heartbeat rejected"))
	}

	var raw rawHeartbeatResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, mesherr.NewResponseParseError("heartbeat response", err)
	}

	return normalizeHeartbeatResponse(raw)
}

// FastHeartbeat performs HEAD /heartbeat/{agent_id}, whose status code is
// the entire payload.
func (c *Client) FastHeartbeat(ctx context.Context, agentID string) FastStatus {
	url := fmt.Sprintf("%s/heartbeat/%s", c.baseURL, agentID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return NetworkError
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return NetworkError
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return NoChanges
	case http.StatusAccepted:
		return TopologyChanged
	case http.StatusGone:
		return AgentUnknown
	case http.StatusServiceUnavailable:
		return RegistryError
	default:
		return RegistryError
	}
}

func normalizeHeartbeatResponse(raw rawHeartbeatResponse) (*HeartbeatResponse, error) {
	out := &HeartbeatResponse{
		Status:               raw.Status,
		TopologyHash:         mesh.TopologyHash(raw.TopologyHash),
		DependenciesResolved: make(map[string][]mesh.ResolvedDependency),
		LlmTools:             make(map[string][]mesh.ResolvedLlmTool),
	}

	if len(raw.DependenciesResolved) > 0 {
		if err := json.Unmarshal(raw.DependenciesResolved, &out.DependenciesResolved); err != nil {
			return nil, mesherr.NewResponseParseError("dependencies_resolved", err)
		}
	}

	if len(raw.LlmTools) > 0 {
		if err := json.Unmarshal(raw.LlmTools, &out.LlmTools); err != nil {
			return nil, mesherr.NewResponseParseError("llm_tools", err)
		}
	}

	return out, nil
}

// DecodeKwargs JSON-decodes a tool's kwargs, which historically may
// arrive either as a JSON object or as a string containing encoded JSON.
// Malformed values fall back to an empty map with a warning, rather than
// failing the whole heartbeat.
func DecodeKwargs(raw json.RawMessage) map[string]interface{} {
	if len(raw) == 0 {
		return map[string]interface{}{}
	}

	var direct map[string]interface{}
	if err := json.Unmarshal(raw, &direct); err == nil {
		return direct
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		var decoded map[string]interface{}
		if err := json.Unmarshal([]byte(asString), &decoded); err == nil {
			return decoded
		}
		slog.Warn("registryclient: malformed kwargs string, falling back to empty map", "raw", asString)
		return map[string]interface{}{}
	}

	slog.Warn("registryclient: unrecognized kwargs shape, falling back to empty map")
	return map[string]interface{}{}
}
