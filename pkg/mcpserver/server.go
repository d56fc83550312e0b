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

// Package mcpserver hosts the MCP HTTP surface the Startup Pipeline brings
// up when an agent declares enable_http: a JSON-RPC 2.0 endpoint serving
// this agent's own tools, and a health endpoint reporting basic status.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/mcpmesh/pkg/auth"
	"github.com/kadirpekel/mcpmesh/pkg/decorator"
	"github.com/kadirpekel/mcpmesh/pkg/observability"
	"github.com/kadirpekel/mcpmesh/pkg/ratelimit"
)

// rpcRequest/rpcResponse mirror the envelopes the Proxy Layer speaks on
// the client side - this is the same wire shape, served instead of called.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Config wires the pieces a Server needs: the Decorator Registry that
// owns this agent's callables and declarations, the agent identity shown
// on the health endpoint, and optional cross-cutting middleware.
type Config struct {
	Registry      *decorator.Registry
	AgentName     string
	AgentID       string
	Auth          *auth.JWTValidator
	Observability *observability.Manager
	RateLimiter   ratelimit.RateLimiter
}

// Server is the MCP HTTP surface for one agent process.
type Server struct {
	cfg    Config
	router chi.Router
	http   *http.Server
	ready  atomic.Bool
}

// New builds a Server and its route table. ListenAndServe is not called
// until Start.
func New(cfg Config) *Server {
	s := &Server{cfg: cfg}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Wrapped innermost-first so the request actually flows
	// auth -> observability -> rate limiting -> handler: a request
	// rejected by auth never reaches the tracer/metrics, and a request
	// that passes auth is observed before rate limiting decides whether
	// to admit it.
	var mcpHandler http.Handler = http.HandlerFunc(s.handleRPC)
	if s.cfg.RateLimiter != nil {
		mcpHandler = ratelimit.SimpleMiddleware(s.cfg.RateLimiter)(mcpHandler)
	}
	if s.cfg.Observability != nil {
		mcpHandler = observability.HTTPMiddleware(s.cfg.Observability.Tracer(), s.cfg.Observability.Metrics())(mcpHandler)
	}
	if s.cfg.Auth != nil {
		mcpHandler = s.cfg.Auth.HTTPMiddleware(mcpHandler)
	}

	r.Post("/mcp", mcpHandler.ServeHTTP)
	r.Post("/mcp/", mcpHandler.ServeHTTP)
	r.Get("/health", s.handleHealth)
	if s.cfg.Observability != nil && s.cfg.Observability.MetricsEnabled() {
		r.Get(s.cfg.Observability.MetricsEndpoint(), s.cfg.Observability.MetricsHandler().ServeHTTP)
	}
	return r
}

// Start brings the HTTP server up on host:port. It returns once the
// listener is bound; serving continues in a background goroutine.
func (s *Server) Start(host string, port int) error {
	s.http = &http.Server{
		Addr:    net.JoinHostPort(host, strconv.Itoa(port)),
		Handler: s.router,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	s.ready.Store(true)

	select {
	case err := <-errCh:
		return err
	case <-time.After(50 * time.Millisecond):
		return nil
	}
}

// Shutdown gracefully stops the HTTP server, honoring ctx's deadline.
// Registered as a Signal/Cleanup Manager cleanup handler by the Startup
// Pipeline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Ready reports whether Start has bound the listener.
func (s *Server) Ready() bool {
	return s.ready.Load()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if !s.Ready() {
		status = "starting"
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":      status,
		"agent":       s.cfg.AgentName,
		"agent_id":    s.cfg.AgentID,
		"tools_count": len(s.cfg.Registry.GetMeshTools()),
	})
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, nil, -32700, "parse error")
		return
	}

	switch req.Method {
	case "tools/list":
		s.handleToolsList(w, req)
	case "tools/call":
		s.handleToolsCall(r.Context(), w, req)
	default:
		s.writeError(w, req.ID, -32601, "method not found: "+req.Method)
	}
}

func (s *Server) handleToolsList(w http.ResponseWriter, req rpcRequest) {
	tools := s.cfg.Registry.GetMeshTools()
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]any{
			"name":         t.FunctionName,
			"description":  t.Description,
			"input_schema": t.InputSchema,
		})
	}
	s.writeResult(w, req.ID, map[string]any{"tools": out})
}

func (s *Server) handleToolsCall(ctx context.Context, w http.ResponseWriter, req rpcRequest) {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeError(w, req.ID, -32602, "invalid params")
		return
	}

	functionID, ok := s.cfg.Registry.FindFunctionIDByName(params.Name)
	if !ok {
		s.writeError(w, req.ID, -32602, "unknown tool: "+params.Name)
		return
	}
	fn, ok := s.cfg.Registry.GetFunction(functionID)
	if !ok {
		s.writeError(w, req.ID, -32602, "unknown tool: "+params.Name)
		return
	}

	start := time.Now()
	var span trace.Span
	tracer := s.cfg.Observability.Tracer()
	if tracer != nil {
		ctx, span = tracer.StartToolExecution(ctx, params.Name, s.cfg.AgentName, functionID)
		defer span.End()
	}

	result, err := fn(ctx, nil, params.Arguments)

	if metrics := s.cfg.Observability.Metrics(); metrics != nil {
		if err != nil {
			metrics.RecordToolError(params.Name, fmt.Sprintf("%T", err))
		} else {
			metrics.RecordToolCall(params.Name, time.Since(start))
		}
	}
	if span != nil && err != nil {
		tracer.RecordError(span, err)
	}

	if err != nil {
		s.writeError(w, req.ID, -32000, err.Error())
		return
	}

	text, _ := json.Marshal(result)
	if span != nil {
		argsJSON, _ := json.Marshal(params.Arguments)
		tracer.AddToolPayload(span, string(argsJSON), string(text))
	}
	s.writeResult(w, req.ID, map[string]any{
		"content": []contentBlock{{Type: "text", Text: string(text)}},
	})
}

func (s *Server) writeResult(w http.ResponseWriter, id json.RawMessage, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) writeError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}})
}
