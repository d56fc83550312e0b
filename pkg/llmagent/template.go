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
	"os"
	"strings"
	"text/template"

	"github.com/kadirpekel/mcpmesh/pkg/mesherr"
)

// SingleCallRule is appended to every rendered system prompt: the spec
// mandates single-tool-call-per-step behavior via a prompt rule rather
// than a transport-level constraint.
const SingleCallRule = "\n\nCall at most one tool per step. Wait for its result before deciding on the next action."

// RenderSystemPrompt resolves the system prompt for one @llm function:
// a literal string is used as-is; a template path is parsed and executed
// against the given mapping. Missing names fail with TemplateError, per
// text/template's option("missingkey=error").
func RenderSystemPrompt(literal, templatePath string, data map[string]any) (string, error) {
	if templatePath == "" {
		return literal + SingleCallRule, nil
	}

	raw, err := os.ReadFile(templatePath)
	if err != nil {
		return "", mesherr.NewTemplateError(templatePath, err)
	}

	tmpl, err := template.New("system_prompt").Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return "", mesherr.NewTemplateError(templatePath, err)
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", mesherr.NewTemplateError(templatePath, err)
	}

	return sb.String() + SingleCallRule, nil
}
