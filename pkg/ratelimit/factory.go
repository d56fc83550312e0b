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

// NewRateLimiterFromSpec creates a RateLimiter from a config-file Spec,
// backed by an in-memory Store. Returns nil if rate limiting is disabled.
//
// Example config:
//
//	rate_limiting:
//	  enabled: true
//	  limits:
//	    - type: token
//	      window: day
//	      limit: 100000
func NewRateLimiterFromSpec(spec *Spec) (RateLimiter, error) {
	if spec == nil || !spec.IsEnabled() {
		return nil, nil
	}

	limits := make([]LimitRule, len(spec.Limits))
	for i, l := range spec.Limits {
		limits[i] = LimitRule{
			Type:   ParseLimitType(l.Type),
			Window: ParseTimeWindow(l.Window),
			Limit:  l.Limit,
		}
	}

	cfg := &Config{
		Enabled: spec.IsEnabled(),
		Limits:  limits,
	}

	return NewRateLimiter(cfg, NewMemoryStore())
}

// NewRateLimiterFromSpecWithStore creates a RateLimiter with a custom store.
// Useful for testing or when you need to share a store across multiple limiters.
func NewRateLimiterFromSpecWithStore(spec *Spec, store Store) (RateLimiter, error) {
	if spec == nil || !spec.IsEnabled() {
		return nil, nil
	}

	if store == nil {
		return nil, fmt.Errorf("store is required")
	}

	limits := make([]LimitRule, len(spec.Limits))
	for i, l := range spec.Limits {
		limits[i] = LimitRule{
			Type:   ParseLimitType(l.Type),
			Window: ParseTimeWindow(l.Window),
			Limit:  l.Limit,
		}
	}

	cfg := &Config{
		Enabled: spec.IsEnabled(),
		Limits:  limits,
	}

	return NewRateLimiter(cfg, store)
}
