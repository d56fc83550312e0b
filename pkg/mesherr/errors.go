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

// Package mesherr holds the typed error taxonomy shared by every mesh
// component, so that callers can type-switch on failure modes instead of
// pattern-matching strings.
package mesherr

import "fmt"

// ConfigError is raised when a resolved configuration value fails
// validation at startup. Fatal.
type ConfigError struct {
	Key     string
	Value   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s=%q invalid: %s", e.Key, e.Value, e.Message)
}

func NewConfigError(key, value, message string) *ConfigError {
	return &ConfigError{Key: key, Value: value, Message: message}
}

// RegistryUnavailable means the registry transport is down or returned 503.
// Non-fatal; callers should preserve existing state and retry next cycle.
type RegistryUnavailable struct {
	Cause error
}

func (e *RegistryUnavailable) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("registry unavailable: %v", e.Cause)
	}
	return "registry unavailable"
}

func (e *RegistryUnavailable) Unwrap() error { return e.Cause }

func NewRegistryUnavailable(cause error) *RegistryUnavailable {
	return &RegistryUnavailable{Cause: cause}
}

// AgentUnknown means the registry returned 410: it has lost this agent's
// state and a full re-registration is required on the next cycle.
type AgentUnknown struct {
	AgentID string
}

func (e *AgentUnknown) Error() string {
	return fmt.Sprintf("agent %s unknown to registry", e.AgentID)
}

func NewAgentUnknown(agentID string) *AgentUnknown {
	return &AgentUnknown{AgentID: agentID}
}

// RemoteCallError is a proxy-level failure: network error, HTTP>=400, or
// timeout while calling a remote MCP tool. Surfaces to user code.
type RemoteCallError struct {
	Endpoint string
	Code     int
	Cause    error
}

func (e *RemoteCallError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("remote call to %s failed (HTTP %d): %v", e.Endpoint, e.Code, e.Cause)
	}
	return fmt.Sprintf("remote call to %s failed: %v", e.Endpoint, e.Cause)
}

func (e *RemoteCallError) Unwrap() error { return e.Cause }

func NewRemoteCallError(endpoint string, code int, cause error) *RemoteCallError {
	return &RemoteCallError{Endpoint: endpoint, Code: code, Cause: cause}
}

// ToolCallError wraps a JSON-RPC error returned by the remote tool itself.
type ToolCallError struct {
	Message string
	Code    int
	Data    any
}

func (e *ToolCallError) Error() string {
	return fmt.Sprintf("tool call error %d: %s", e.Code, e.Message)
}

func NewToolCallError(message string, code int, data any) *ToolCallError {
	return &ToolCallError{Message: message, Code: code, Data: data}
}

// ResponseParseError means a registry or proxy response was malformed.
// Non-fatal per heartbeat cycle; existing state is preserved.
type ResponseParseError struct {
	Source string
	Cause  error
}

func (e *ResponseParseError) Error() string {
	return fmt.Sprintf("failed to parse %s response: %v", e.Source, e.Cause)
}

func (e *ResponseParseError) Unwrap() error { return e.Cause }

func NewResponseParseError(source string, cause error) *ResponseParseError {
	return &ResponseParseError{Source: source, Cause: cause}
}

// SessionLostError is raised when a session-affine call is issued after
// the session has been invalidated by a transport failure.
type SessionLostError struct {
	SessionID string
	Cause     error
}

func (e *SessionLostError) Error() string {
	return fmt.Sprintf("session %s lost: %v", e.SessionID, e.Cause)
}

func (e *SessionLostError) Unwrap() error { return e.Cause }

func NewSessionLostError(sessionID string, cause error) *SessionLostError {
	return &SessionLostError{SessionID: sessionID, Cause: cause}
}

// LLMAPIError wraps any failure from the underlying LLM transport call.
type LLMAPIError struct {
	Provider string
	Cause    error
}

func (e *LLMAPIError) Error() string {
	return fmt.Sprintf("llm api error (%s): %v", e.Provider, e.Cause)
}

func (e *LLMAPIError) Unwrap() error { return e.Cause }

func NewLLMAPIError(provider string, cause error) *LLMAPIError {
	return &LLMAPIError{Provider: provider, Cause: cause}
}

// ToolExecutionError wraps a failure invoking a tool proxy from within the
// MeshLlmAgent loop.
type ToolExecutionError struct {
	ToolName string
	Cause    error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool execution failed (%s): %v", e.ToolName, e.Cause)
}

func (e *ToolExecutionError) Unwrap() error { return e.Cause }

func NewToolExecutionError(toolName string, cause error) *ToolExecutionError {
	return &ToolExecutionError{ToolName: toolName, Cause: cause}
}

// MaxIterationsError is raised when a MeshLlmAgent exhausts its iteration
// budget without the LLM producing a final (non-tool-call) response.
type MaxIterationsError struct {
	FunctionID    string
	MaxIterations int
}

func (e *MaxIterationsError) Error() string {
	return fmt.Sprintf("%s: exceeded max_iterations (%d) without a final response", e.FunctionID, e.MaxIterations)
}

func NewMaxIterationsError(functionID string, maxIterations int) *MaxIterationsError {
	return &MaxIterationsError{FunctionID: functionID, MaxIterations: maxIterations}
}

// TemplateError is raised when rendering a system-prompt template fails,
// e.g. a referenced name is missing from the mapping.
type TemplateError struct {
	TemplatePath string
	Cause        error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template %s: %v", e.TemplatePath, e.Cause)
}

func (e *TemplateError) Unwrap() error { return e.Cause }

func NewTemplateError(templatePath string, cause error) *TemplateError {
	return &TemplateError{TemplatePath: templatePath, Cause: cause}
}

// ShutdownInProgress is returned when an operation is rejected because
// the Signal/Cleanup Manager has begun graceful shutdown.
type ShutdownInProgress struct {
	Operation string
}

func (e *ShutdownInProgress) Error() string {
	return fmt.Sprintf("%s rejected: shutdown in progress", e.Operation)
}

func NewShutdownInProgress(operation string) *ShutdownInProgress {
	return &ShutdownInProgress{Operation: operation}
}
