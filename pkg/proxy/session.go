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
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/kadirpekel/mcpmesh/pkg/mesherr"
)

// SessionAffine wraps a Full-MCP proxy with session lifecycle: calls
// issued under a session id carry it as a request header, so the
// registry's load balancer routes them to the same replica. Once a
// session's transport fails, the session is marked lost and every
// subsequent call against it fails fast rather than silently re-routing.
type SessionAffine struct {
	mcp *FullMCP

	mu       sync.Mutex
	sessions map[string]bool // session id -> lost
}

// NewSessionAffine binds a Session-Affine proxy to one remote agent.
func NewSessionAffine(endpoint, functionName string, cfg KwargsConfig) *SessionAffine {
	return &SessionAffine{
		mcp:      NewFullMCP(endpoint, functionName, cfg),
		sessions: make(map[string]bool),
	}
}

// CreateSession allocates and remembers a new session id. No remote call
// is made: the id is attached to the first request that uses it, and the
// remote agent/load-balancer associates it with a replica from there.
func (s *SessionAffine) CreateSession() string {
	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = false
	s.mu.Unlock()
	return id
}

// CallWithSession invokes the bound tool, pinning the request to the
// given session via the mcp-session-id header. If the session was
// previously marked lost, this returns SessionLostError without issuing
// a request.
func (s *SessionAffine) CallWithSession(ctx context.Context, sessionID string, args map[string]interface{}) (string, error) {
	s.mu.Lock()
	lost, known := s.sessions[sessionID]
	s.mu.Unlock()
	if known && lost {
		return "", mesherr.NewSessionLostError(sessionID, nil)
	}

	params := map[string]interface{}{"name": s.mcp.functionName, "arguments": args}
	raw, err := s.mcp.t.call(ctx, "tools/call", params, sessionID)
	if err != nil {
		if !isTransportFailure(err) {
			return "", err
		}
		s.mu.Lock()
		s.sessions[sessionID] = true
		s.mu.Unlock()
		return "", mesherr.NewSessionLostError(sessionID, err)
	}
	return extractToolResult(raw)
}

// isTransportFailure reports whether err represents a failure to reach or
// get a well-formed response from the remote agent, as opposed to an
// ordinary application-level tool error (a healthy session that just
// returned a JSON-RPC error for this particular call).
func isTransportFailure(err error) bool {
	var remoteErr *mesherr.RemoteCallError
	var parseErr *mesherr.ResponseParseError
	return errors.As(err, &remoteErr) || errors.As(err, &parseErr)
}

// CloseSession issues a best-effort forget of the session id; no further
// calls against it are valid.
func (s *SessionAffine) CloseSession(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}
