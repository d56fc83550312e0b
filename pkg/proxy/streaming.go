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

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kadirpekel/mcpmesh/pkg/mesherr"
)

// Streaming exposes the remote tool's SSE response as a pull iterator:
// each decoded JSON object is one Next() call. The stream terminates on
// EOF or a "done" event; cancelling ctx closes the underlying response.
type Streaming struct {
	t            *transport
	functionName string
}

// NewStreaming binds a Streaming proxy to one remote tool.
func NewStreaming(endpoint, functionName string, cfg KwargsConfig) *Streaming {
	return &Streaming{t: newTransport(endpoint, cfg), functionName: functionName}
}

// Iterator yields decoded JSON events from one streaming call.
type Iterator struct {
	body   io.ReadCloser
	reader *bufio.Reader
	done   bool
}

// Call starts a streaming tools/call and returns an Iterator over its SSE
// events. The caller must call Close (directly, or by draining to
// completion) to release the connection.
func (s *Streaming) Call(ctx context.Context, args map[string]interface{}) (*Iterator, error) {
	params := map[string]interface{}{"name": s.functionName, "arguments": args}
	req := rpcRequest{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: params}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, mesherr.NewResponseParseError("request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, mesherr.NewRemoteCallError(s.t.endpoint, 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	for k, v := range s.t.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := s.t.client.Do(httpReq)
	if err != nil {
		return nil, mesherr.NewRemoteCallError(s.t.endpoint, 0, err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, mesherr.NewRemoteCallError(s.t.endpoint, resp.StatusCode, fmt.Errorf("%s", string(respBody)))
	}

	return &Iterator{body: resp.Body, reader: bufio.NewReader(resp.Body)}, nil
}

// Next returns the next decoded event, or (nil, false, nil) when the
// stream has ended cleanly.
func (it *Iterator) Next() (json.RawMessage, bool, error) {
	if it.done {
		return nil, false, nil
	}

	var data strings.Builder
	for {
		line, err := it.reader.ReadString('\n')
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "event:") && strings.Contains(trimmed, "done") {
			it.done = true
			return nil, false, nil
		}
		if strings.HasPrefix(trimmed, "data:") {
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(trimmed, "data:")))
		} else if trimmed == "" && data.Len() > 0 {
			var raw json.RawMessage
			if jsonErr := json.Unmarshal([]byte(data.String()), &raw); jsonErr != nil {
				return nil, false, mesherr.NewResponseParseError("sse event", jsonErr)
			}
			return raw, true, nil
		}

		if err != nil {
			it.done = true
			if err == io.EOF {
				return nil, false, nil
			}
			return nil, false, mesherr.NewResponseParseError("sse stream", err)
		}
	}
}

// Close cancels the stream and releases the underlying connection.
func (it *Iterator) Close() error {
	it.done = true
	return it.body.Close()
}
