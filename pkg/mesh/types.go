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

// Package mesh defines the data model shared across every mesh component:
// declarations captured at startup, and the resolved graph the registry
// hands back on each heartbeat.
package mesh

import "encoding/json"

// DependencySpec names a capability a tool needs resolved, plus optional
// matching constraints. Order within a ToolDeclaration's Dependencies is
// significant: it drives positional injection.
type DependencySpec struct {
	Capability        string   `json:"capability"`
	Tags              []string `json:"tags,omitempty"`
	VersionConstraint string   `json:"version,omitempty"`
}

// ToolDeclaration captures everything known about a @tool function at
// registration time.
type ToolDeclaration struct {
	FunctionID   string                 `json:"-"`
	FunctionName string                 `json:"function_name"`
	Capability   string                 `json:"capability,omitempty"`
	Tags         []string               `json:"tags,omitempty"`
	Version      string                 `json:"version,omitempty"`
	Dependencies []DependencySpec       `json:"dependencies,omitempty"`
	Description  string                 `json:"description,omitempty"`
	InputSchema  json.RawMessage        `json:"input_schema,omitempty"`
	Kwargs       map[string]any         `json:"kwargs,omitempty"`
}

// AgentDeclaration describes the process-wide agent identity. Exactly one
// is resolved per process; defaults are injected when none was declared.
type AgentDeclaration struct {
	Name             string
	Version          string
	Description      string
	HTTPHost         string
	HTTPPort         int
	EnableHTTP       bool
	Namespace        string
	HealthInterval   int
	AutoRun          bool
	AutoRunInterval  int
}

// FilterMode controls how the registry matches tools against an
// LlmDeclaration's Filter.
type FilterMode string

const (
	FilterModeAll       FilterMode = "all"
	FilterModeBestMatch FilterMode = "best_match"
	FilterModeWildcard  FilterMode = "*"
)

// LlmDeclaration captures an @llm function's binding: the tool filter it
// wants resolved against, the provider/model to drive the agentic loop,
// and the typed output contract.
type LlmDeclaration struct {
	FunctionID    string     `json:"-"`
	Filter        any        `json:"filter,omitempty"`
	FilterMode    FilterMode `json:"filter_mode,omitempty"`
	Provider      string     `json:"provider,omitempty"`
	Model         string     `json:"model,omitempty"`
	APIKey        string     `json:"-"`
	MaxIterations int        `json:"max_iterations,omitempty"`
	SystemPrompt  string     `json:"-"`
	TemplatePath  string     `json:"-"`
	OutputSchema  json.RawMessage `json:"output_schema,omitempty"`
	ParamName     string     `json:"-"`
}

// ResolvedDependency is what the registry hands back for one position in
// a tool's Dependencies array.
type ResolvedDependency struct {
	Capability   string         `json:"capability"`
	FunctionName string         `json:"function_name"`
	Endpoint     string         `json:"endpoint"`
	AgentID      string         `json:"agent_id"`
	Version      string         `json:"version,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	Kwargs       map[string]any `json:"kwargs,omitempty"`
	Status       string         `json:"status,omitempty"`
}

// ResolvedLlmTool is one tool bound into an @llm function's filtered set.
type ResolvedLlmTool struct {
	FunctionName string          `json:"function_name"`
	Capability   string          `json:"capability,omitempty"`
	Tags         []string        `json:"tags,omitempty"`
	Description  string          `json:"description,omitempty"`
	Endpoint     string          `json:"endpoint"`
	InputSchema  json.RawMessage `json:"input_schema,omitempty"`
	Version      string          `json:"version,omitempty"`
}

// TopologyHash is the opaque scalar the registry returns to summarize an
// agent's current resolved graph; compared verbatim between cycles.
type TopologyHash string
