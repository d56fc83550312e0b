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
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/mcpmesh/pkg/mesherr"
)

func rpcResultServer(t *testing.T, handler func(w http.ResponseWriter, sessionID string)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler(w, r.Header.Get("mcp-session-id"))
	}))
}

func writeToolResult(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"result": map[string]any{
			"content": []map[string]any{{"type": "text", "text": text}},
		},
	})
}

// TestSessionAffine_PinsRequestsToSameSession is P8: every call issued
// under one session id carries that id as the mcp-session-id header, so
// the registry's load balancer can route them to the same replica.
func TestSessionAffine_PinsRequestsToSameSession(t *testing.T) {
	var seenSessions []string
	server := rpcResultServer(t, func(w http.ResponseWriter, sessionID string) {
		seenSessions = append(seenSessions, sessionID)
		writeToolResult(w, "ok")
	})
	defer server.Close()

	sess := NewSessionAffine(server.URL, "search", KwargsConfig{})
	sessionID := sess.CreateSession()

	for i := 0; i < 3; i++ {
		out, err := sess.CallWithSession(context.Background(), sessionID, map[string]interface{}{"q": "x"})
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
	}

	require.Len(t, seenSessions, 3)
	for _, s := range seenSessions {
		assert.Equal(t, sessionID, s, "every call for this session must carry the same mcp-session-id header")
	}
}

// TestSessionAffine_TransportFailureMarksSessionLost verifies a genuine
// transport failure marks the session lost and every subsequent call
// fails fast without issuing a request. The application-level error case
// is covered by TestSessionAffine_ApplicationErrorDoesNotLoseSession.
func TestSessionAffine_TransportFailureMarksSessionLost(t *testing.T) {
	server := rpcResultServer(t, func(w http.ResponseWriter, sessionID string) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	})
	defer server.Close()

	sess := NewSessionAffine(server.URL, "search", KwargsConfig{})
	sessionID := sess.CreateSession()

	_, err := sess.CallWithSession(context.Background(), sessionID, nil)
	require.Error(t, err)

	var lostErr *mesherr.SessionLostError
	require.True(t, errors.As(err, &lostErr))

	// The session is now lost: a second call must fail fast, without
	// hitting the server again.
	calls := 0
	server.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeToolResult(w, "should not be reached")
	})

	_, err = sess.CallWithSession(context.Background(), sessionID, nil)
	require.Error(t, err)
	require.True(t, errors.As(err, &lostErr))
	assert.Equal(t, 0, calls, "a lost session must not issue another request")
}

// TestSessionAffine_ApplicationErrorDoesNotLoseSession verifies a
// JSON-RPC-level tool error (the remote agent responded, but the tool
// call itself failed) does not mark the session lost.
func TestSessionAffine_ApplicationErrorDoesNotLoseSession(t *testing.T) {
	var callCount int
	server := rpcResultServer(t, func(w http.ResponseWriter, sessionID string) {
		callCount++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"error":   map[string]any{"code": -32000, "message": "tool raised an exception"},
		})
	})
	defer server.Close()

	sess := NewSessionAffine(server.URL, "search", KwargsConfig{})
	sessionID := sess.CreateSession()

	_, err := sess.CallWithSession(context.Background(), sessionID, nil)
	require.Error(t, err)

	var lostErr *mesherr.SessionLostError
	assert.False(t, errors.As(err, &lostErr), "an application-level tool error must not mark the session lost")

	// The session should still be usable: the next call reaches the server.
	server.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		writeToolResult(w, "ok")
	})
	out, err := sess.CallWithSession(context.Background(), sessionID, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 2, callCount)
}
