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

package llmagent

import (
	"encoding/json"
	"fmt"

	llms "github.com/kadirpekel/mcpmesh/pkg/llm"
	"github.com/kadirpekel/mcpmesh/pkg/mesherr"
)

// ValidateOutput parses content as JSON and checks it against the
// declared output_type schema: required properties must be present, and
// present properties must match their declared JSON type. A schema-less
// declaration (nil/empty) accepts any well-formed JSON.
func ValidateOutput(content string, schema json.RawMessage) (json.RawMessage, error) {
	var parsed any
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, mesherr.NewResponseParseError("llm output", err)
	}

	if len(schema) == 0 {
		return json.RawMessage(content), nil
	}

	var sch llms.JSONSchema
	if err := json.Unmarshal(schema, &sch); err != nil {
		return nil, mesherr.NewResponseParseError("output_type schema", err)
	}

	if sch.Type != "" && sch.Type != "object" {
		if err := checkScalarType(parsed, sch.Type); err != nil {
			return nil, mesherr.NewResponseParseError("llm output", err)
		}
		return json.RawMessage(content), nil
	}

	obj, ok := parsed.(map[string]any)
	if !ok {
		return nil, mesherr.NewResponseParseError("llm output", fmt.Errorf("expected a JSON object, got %T", parsed))
	}

	for _, name := range sch.Required {
		if _, present := obj[name]; !present {
			return nil, mesherr.NewResponseParseError("llm output", fmt.Errorf("missing required field %q", name))
		}
	}

	for name, prop := range sch.Properties {
		val, present := obj[name]
		if !present {
			continue
		}
		if err := checkScalarType(val, prop.Type); err != nil {
			return nil, mesherr.NewResponseParseError("llm output", fmt.Errorf("field %q: %w", name, err))
		}
	}

	return json.RawMessage(content), nil
}

func checkScalarType(val any, wantType string) error {
	switch wantType {
	case "", "any":
		return nil
	case "string":
		if _, ok := val.(string); !ok {
			return fmt.Errorf("expected string, got %T", val)
		}
	case "number", "integer":
		if _, ok := val.(float64); !ok {
			return fmt.Errorf("expected number, got %T", val)
		}
	case "boolean":
		if _, ok := val.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", val)
		}
	case "array":
		if _, ok := val.([]any); !ok {
			return fmt.Errorf("expected array, got %T", val)
		}
	case "object":
		if _, ok := val.(map[string]any); !ok {
			return fmt.Errorf("expected object, got %T", val)
		}
	}
	return nil
}
