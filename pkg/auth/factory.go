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

package auth

import "fmt"

// Config holds the settings needed to stand up a JWTValidator for the
// mesh's HTTP surface. It is deliberately small and dependency-free so
// any config resolver can populate it without importing this package's
// internals.
type Config struct {
	Enabled  bool
	JWKSURL  string
	Issuer   string
	Audience string
}

// NewValidatorFromConfig creates a JWTValidator from configuration.
// Returns nil if authentication is not enabled.
func NewValidatorFromConfig(cfg *Config) (*JWTValidator, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	if cfg.JWKSURL == "" {
		return nil, fmt.Errorf("auth: jwks_url is required when auth is enabled")
	}

	validator, err := NewJWTValidator(cfg.JWKSURL, cfg.Issuer, cfg.Audience)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT validator: %w", err)
	}

	return validator, nil
}
