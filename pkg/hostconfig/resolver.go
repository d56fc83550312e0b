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

// Package hostconfig resolves every tunable agent knob with a strict
// precedence: environment variable, then explicit decorator argument,
// then built-in default. Resolution happens once at startup; a second,
// lenient mode is used to re-validate config at runtime without ever
// bringing the process down.
package hostconfig

import (
	"os"
	"strconv"
	"strings"

	"github.com/kadirpekel/mcpmesh/pkg/mesherr"
)

// UpdateStrategy controls how the Dependency Injector applies proxy
// updates delivered by the Heartbeat Pipeline.
type UpdateStrategy string

const (
	StrategyImmediate UpdateStrategy = "immediate"
	StrategyDelayed   UpdateStrategy = "delayed"
	StrategyManual    UpdateStrategy = "manual"
)

// Resolved holds every knob the runtime needs, after precedence and
// validation have been applied.
type Resolved struct {
	RegistryURL           string
	AgentName             string
	HTTPHost              string
	HTTPPort              int
	EnableHTTP            bool
	Namespace             string
	HealthInterval        int
	AutoRun               bool
	AutoRunInterval       int
	UpdateStrategy        UpdateStrategy
	UpdateGracePeriod     int
	DynamicUpdatesEnabled bool
	LLMProvider           string
	LLMModel              string
	LLMAPIKey             string
	LogLevel              string
	RateLimitEnabled      bool
	RateLimitScope        string
	RateLimitTokensPerDay int
	RateLimitCallsPerMin  int
}

// Defaults are the built-in values used when neither an environment
// variable nor a decorator argument supplies one.
var Defaults = Resolved{
	RegistryURL:           "http://localhost:8000",
	AgentName:             "mesh-agent",
	HTTPHost:              "0.0.0.0",
	HTTPPort:              0,
	EnableHTTP:            true,
	Namespace:             "default",
	HealthInterval:        5,
	AutoRun:               false,
	AutoRunInterval:       10,
	UpdateStrategy:        StrategyImmediate,
	UpdateGracePeriod:     30,
	DynamicUpdatesEnabled: true,
	LLMProvider:           "openai",
	LLMModel:              "gpt-4o",
	LogLevel:              "info",
	RateLimitEnabled:      false,
	RateLimitScope:        "session",
	RateLimitTokensPerDay: 100000,
	RateLimitCallsPerMin:  60,
}

// Overrides is the set of explicit decorator arguments supplied by user
// code; any zero-value field defers to the built-in default.
type Overrides struct {
	RegistryURL           *string
	AgentName             *string
	HTTPHost              *string
	HTTPPort              *int
	EnableHTTP            *bool
	Namespace             *string
	HealthInterval        *int
	AutoRun               *bool
	AutoRunInterval       *int
	UpdateStrategy        *UpdateStrategy
	UpdateGracePeriod     *int
	DynamicUpdatesEnabled *bool
	LLMProvider           *string
	LLMModel              *string
	LLMAPIKey             *string
	LogLevel              *string
	RateLimitEnabled      *bool
	RateLimitScope        *string
	RateLimitTokensPerDay *int
	RateLimitCallsPerMin  *int
}

// Recognized environment variables, by knob.
const (
	envRegistryURL      = "MESH_REGISTRY_URL"
	envAgentName        = "MESH_AGENT_NAME"
	envHTTPHost         = "MESH_HTTP_HOST"
	envHTTPPort         = "MESH_HTTP_PORT"
	envEnableHTTP       = "MESH_HTTP_ENABLED"
	envNamespace        = "MESH_NAMESPACE"
	envHealthInterval   = "MESH_HEALTH_INTERVAL"
	envAutoRun          = "MESH_AUTO_RUN"
	envAutoRunInterval  = "MESH_AUTO_RUN_INTERVAL"
	envUpdateStrategy   = "MESH_UPDATE_STRATEGY"
	envUpdateGrace      = "MESH_UPDATE_GRACE_PERIOD"
	envDynamicUpdates   = "MESH_DYNAMIC_UPDATES"
	envLLMProvider      = "MESH_LLM_PROVIDER"
	envLLMModel         = "MESH_LLM_MODEL"
	envLLMAPIKey        = "MESH_LLM_API_KEY"
	envLogLevel         = "MESH_LOG_LEVEL"
	envRateLimitEnabled = "MESH_RATE_LIMIT_ENABLED"
	envRateLimitScope   = "MESH_RATE_LIMIT_SCOPE"
	envRateLimitTokens  = "MESH_RATE_LIMIT_TOKENS_PER_DAY"
	envRateLimitCalls   = "MESH_RATE_LIMIT_CALLS_PER_MIN"
)

// Resolve applies env var > decorator override > built-in default for
// every knob, then validates the result. Invalid values fail fast with a
// *mesherr.ConfigError, per the startup-time strictness in the design.
func Resolve(ov Overrides) (*Resolved, error) {
	r := Defaults

	r.RegistryURL = resolveString(envRegistryURL, ov.RegistryURL, r.RegistryURL)
	r.AgentName = resolveString(envAgentName, ov.AgentName, r.AgentName)
	r.HTTPHost = resolveString(envHTTPHost, ov.HTTPHost, r.HTTPHost)
	r.Namespace = resolveString(envNamespace, ov.Namespace, r.Namespace)
	r.LLMProvider = resolveString(envLLMProvider, ov.LLMProvider, r.LLMProvider)
	r.LLMModel = resolveString(envLLMModel, ov.LLMModel, r.LLMModel)
	r.LLMAPIKey = resolveString(envLLMAPIKey, ov.LLMAPIKey, r.LLMAPIKey)
	if r.LLMAPIKey == "" {
		r.LLMAPIKey = GetProviderAPIKey(r.LLMProvider)
	}
	r.LogLevel = resolveString(envLogLevel, ov.LogLevel, r.LogLevel)

	var err error
	if r.HTTPPort, err = resolveIntValidated(envHTTPPort, ov.HTTPPort, r.HTTPPort, "http_port", func(n int) bool { return n >= 0 && n <= 65535 }); err != nil {
		return nil, err
	}

	if r.EnableHTTP, err = resolveBool(envEnableHTTP, ov.EnableHTTP, r.EnableHTTP, "http_enabled"); err != nil {
		return nil, err
	}

	if r.HealthInterval, err = resolveIntValidated(envHealthInterval, ov.HealthInterval, r.HealthInterval, "health_interval", func(n int) bool { return n >= 1 }); err != nil {
		return nil, err
	}

	if r.AutoRun, err = resolveBool(envAutoRun, ov.AutoRun, r.AutoRun, "auto_run"); err != nil {
		return nil, err
	}

	if r.AutoRunInterval, err = resolveIntValidated(envAutoRunInterval, ov.AutoRunInterval, r.AutoRunInterval, "auto_run_interval", func(n int) bool { return n >= 1 }); err != nil {
		return nil, err
	}

	strategy := resolveString(envUpdateStrategy, strategyPtr(ov.UpdateStrategy), string(r.UpdateStrategy))
	switch UpdateStrategy(strategy) {
	case StrategyImmediate, StrategyDelayed, StrategyManual:
		r.UpdateStrategy = UpdateStrategy(strategy)
	default:
		return nil, mesherr.NewConfigError("update_strategy", strategy, "must be one of immediate|delayed|manual")
	}

	if r.UpdateGracePeriod, err = resolveIntValidated(envUpdateGrace, ov.UpdateGracePeriod, r.UpdateGracePeriod, "update_grace_period", func(n int) bool { return n >= 0 }); err != nil {
		return nil, err
	}

	if r.DynamicUpdatesEnabled, err = resolveBool(envDynamicUpdates, ov.DynamicUpdatesEnabled, r.DynamicUpdatesEnabled, "dynamic_updates_enabled"); err != nil {
		return nil, err
	}

	if r.RateLimitEnabled, err = resolveBool(envRateLimitEnabled, ov.RateLimitEnabled, r.RateLimitEnabled, "rate_limit_enabled"); err != nil {
		return nil, err
	}
	r.RateLimitScope = resolveString(envRateLimitScope, ov.RateLimitScope, r.RateLimitScope)
	if r.RateLimitScope != "session" && r.RateLimitScope != "user" {
		return nil, mesherr.NewConfigError("rate_limit_scope", r.RateLimitScope, "must be 'session' or 'user'")
	}
	if r.RateLimitTokensPerDay, err = resolveIntValidated(envRateLimitTokens, ov.RateLimitTokensPerDay, r.RateLimitTokensPerDay, "rate_limit_tokens_per_day", func(n int) bool { return n >= 0 }); err != nil {
		return nil, err
	}
	if r.RateLimitCallsPerMin, err = resolveIntValidated(envRateLimitCalls, ov.RateLimitCallsPerMin, r.RateLimitCallsPerMin, "rate_limit_calls_per_min", func(n int) bool { return n >= 0 }); err != nil {
		return nil, err
	}

	return &r, nil
}

// RevalidateAtRuntime re-checks a single int knob update arriving outside
// startup (e.g. a config-reload hook). On failure it returns a
// *mesherr.ConfigError and the caller keeps the previous value; it never
// brings the process down.
func RevalidateAtRuntime(key string, value int, valid func(int) bool) error {
	if !valid(value) {
		return mesherr.NewConfigError(key, strconv.Itoa(value), "out of range, keeping previous value")
	}
	return nil
}

func resolveString(envKey string, override *string, def string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if override != nil && *override != "" {
		return *override
	}
	return def
}

func strategyPtr(s *UpdateStrategy) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func resolveIntValidated(envKey string, override *int, def int, key string, valid func(int) bool) (int, error) {
	raw := ""
	if v := os.Getenv(envKey); v != "" {
		raw = v
	} else if override != nil {
		raw = strconv.Itoa(*override)
	} else {
		raw = strconv.Itoa(def)
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, mesherr.NewConfigError(key, raw, "must be an integer")
	}
	if !valid(n) {
		return 0, mesherr.NewConfigError(key, raw, "out of allowed range")
	}
	return n, nil
}

func resolveBool(envKey string, override *bool, def bool, key string) (bool, error) {
	if v := os.Getenv(envKey); v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, mesherr.NewConfigError(key, v, "must be a boolean")
		}
		return b, nil
	}
	if override != nil {
		return *override, nil
	}
	return def, nil
}
