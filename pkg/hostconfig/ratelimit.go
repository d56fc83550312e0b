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

package hostconfig

import "github.com/kadirpekel/mcpmesh/pkg/ratelimit"

// RateLimitSpec builds the declarative rate-limiting Spec the Startup
// Pipeline hands to ratelimit.NewRateLimiterFromSpec, from the resolved
// knobs r carries.
func (r *Resolved) RateLimitSpec() *ratelimit.Spec {
	enabled := r.RateLimitEnabled
	spec := &ratelimit.Spec{
		Enabled: &enabled,
		Scope:   r.RateLimitScope,
		Limits: []ratelimit.SpecRule{
			{Type: "token", Window: "day", Limit: int64(r.RateLimitTokensPerDay)},
			{Type: "count", Window: "minute", Limit: int64(r.RateLimitCallsPerMin)},
		},
	}
	spec.SetDefaults()
	return spec
}
