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

package proxy

import "context"

// Basic is the simplest proxy variant: one JSON-RPC tools/call per
// invocation, no session affinity, no discovery methods.
type Basic struct {
	t            *transport
	functionName string
}

// NewBasic binds a Basic proxy to one remote tool.
func NewBasic(endpoint, functionName string, cfg KwargsConfig) *Basic {
	return &Basic{t: newTransport(endpoint, cfg), functionName: functionName}
}

// Call invokes the bound tool with the given arguments and returns its
// normalized result text.
func (b *Basic) Call(ctx context.Context, args map[string]interface{}) (string, error) {
	params := map[string]interface{}{"name": b.functionName, "arguments": args}
	raw, err := b.t.call(ctx, "tools/call", params, "")
	if err != nil {
		return "", err
	}
	return extractToolResult(raw)
}
