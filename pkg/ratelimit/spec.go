// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ratelimit

import "fmt"

// Spec is the declarative, config-file-facing shape of rate limiting
// settings, decoupled from the runtime Config/LimitRule types so it can
// be unmarshalled directly from YAML/env without pulling in a generic
// config package.
type Spec struct {
	// Enabled controls whether rate limiting is active. A nil pointer
	// means "not set" so defaults can be applied before validation.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// Scope is the rate limiting scope ("session" or "user").
	Scope string `yaml:"scope,omitempty" json:"scope,omitempty"`

	// Limits defines the rate limit rules.
	Limits []SpecRule `yaml:"limits,omitempty" json:"limits,omitempty"`
}

// SpecRule defines a single rate limit rule in config form.
type SpecRule struct {
	Type   string `yaml:"type" json:"type"`
	Window string `yaml:"window" json:"window"`
	Limit  int64  `yaml:"limit" json:"limit"`
}

// IsEnabled returns true if rate limiting is enabled.
func (s *Spec) IsEnabled() bool {
	return s != nil && s.Enabled != nil && *s.Enabled
}

// SetDefaults sets default values for Spec.
func (s *Spec) SetDefaults() {
	if s.Enabled == nil {
		disabled := false
		s.Enabled = &disabled
	}
	if s.IsEnabled() && len(s.Limits) == 0 {
		s.Limits = []SpecRule{
			{Type: "token", Window: "day", Limit: 100000},
			{Type: "count", Window: "minute", Limit: 60},
		}
	}
	if s.Scope == "" {
		s.Scope = "session"
	}
}

// Validate validates the Spec.
func (s *Spec) Validate() error {
	if !s.IsEnabled() {
		return nil
	}

	if s.Scope != "" && s.Scope != "session" && s.Scope != "user" {
		return fmt.Errorf("invalid rate_limiting.scope %q, must be 'session' or 'user'", s.Scope)
	}

	if len(s.Limits) == 0 {
		return fmt.Errorf("rate_limiting.limits is required when rate limiting is enabled")
	}

	for i, limit := range s.Limits {
		if err := validateLimit(i, limit); err != nil {
			return err
		}
	}

	return nil
}

func validateLimit(index int, limit SpecRule) error {
	if limit.Type == "" {
		return fmt.Errorf("rate_limiting.limits[%d].type is required", index)
	}
	if limit.Type != "token" && limit.Type != "count" {
		return fmt.Errorf("invalid rate_limiting.limits[%d].type %q, must be 'token' or 'count'", index, limit.Type)
	}

	if limit.Window == "" {
		return fmt.Errorf("rate_limiting.limits[%d].window is required", index)
	}
	validWindows := map[string]bool{
		"minute": true, "hour": true, "day": true, "week": true, "month": true,
	}
	if !validWindows[limit.Window] {
		return fmt.Errorf("invalid rate_limiting.limits[%d].window %q, must be 'minute', 'hour', 'day', 'week', or 'month'", index, limit.Window)
	}

	if limit.Limit <= 0 {
		return fmt.Errorf("rate_limiting.limits[%d].limit must be positive", index)
	}

	return nil
}

// ScopeFromSpec returns the rate limiting scope from a Spec.
func ScopeFromSpec(s *Spec) Scope {
	if s == nil || s.Scope == "" {
		return ScopeSession
	}
	return ParseScope(s.Scope)
}
