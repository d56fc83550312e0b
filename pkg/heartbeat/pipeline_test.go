package heartbeat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kadirpekel/mcpmesh/pkg/hostconfig"
	"github.com/kadirpekel/mcpmesh/pkg/inject"
	"github.com/kadirpekel/mcpmesh/pkg/mesh"
	"github.com/kadirpekel/mcpmesh/pkg/registryclient"
)

func newTestPipeline(serverURL string, injector *inject.Injector) *Pipeline {
	client := registryclient.New(serverURL)
	return New(client, "agent-1", "tool-agent", injector, nil, nil, func() []registryclient.ToolPayload {
		return nil
	})
}

// TestPipeline_FastPathResilience is P2: a sequence of fast-heartbeat
// statuses [NO_CHANGES, error, error, TOPOLOGY_CHANGED] hits the full
// heartbeat endpoint exactly once (on the last status), the error cycles
// before it trigger no full heartbeat, and the dependency resolved by that
// one full heartbeat is recorded. NETWORK_ERROR
// itself requires a dropped connection to synthesize honestly over
// httptest; REGISTRY_ERROR exercises the identical "default: skip" branch
// in RunCycle's status switch, so the property holds the same way.
func TestPipeline_FastPathResilience(t *testing.T) {
	var headCount int32
	var fullCount int32

	mux := http.NewServeMux()
	mux.HandleFunc("/heartbeat/agent-1", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&headCount, 1)
		switch n {
		case 1:
			w.WriteHeader(http.StatusOK) // NO_CHANGES
		case 2, 3:
			w.WriteHeader(http.StatusServiceUnavailable) // REGISTRY_ERROR
		default:
			w.WriteHeader(http.StatusAccepted) // TOPOLOGY_CHANGED
		}
	})
	mux.HandleFunc("/heartbeat", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fullCount, 1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":        "ok",
			"topology_hash": "hash-1",
			"dependencies_resolved": map[string]any{
				"fn-x": []map[string]any{
					{"capability": "search", "function_name": "search", "endpoint": "http://remote/mcp"},
				},
			},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	injector := inject.New(hostconfig.StrategyImmediate, 0)
	injector.RegisterWrapper("fn-x", []mesh.DependencySpec{{Capability: "search"}}, []int{0}, func(context.Context, []any, map[string]any) (any, error) {
		return nil, nil
	})
	p := newTestPipeline(server.URL, injector)

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		p.RunCycle(ctx)
	}

	assert.Equal(t, int32(4), atomic.LoadInt32(&headCount))
	assert.Equal(t, int32(1), atomic.LoadInt32(&fullCount), "full heartbeat should fire exactly once, on the final TOPOLOGY_CHANGED status")
	assert.Contains(t, p.currentDeps, "fn-x", "dependency resolved on the final full heartbeat must be recorded")
}

// TestPipeline_TopologyIdempotence is P3: two back-to-back full heartbeats
// returning identical dependencies_resolved must not rebuild the proxy for
// an unchanged dependency on the second pass.
func TestPipeline_TopologyIdempotence(t *testing.T) {
	injector := inject.New(hostconfig.StrategyImmediate, 0)
	p := &Pipeline{
		injector:    injector,
		currentDeps: make(map[string][]mesh.ResolvedDependency),
		agentSlots:  make(map[string]*inject.AgentSlot),
	}

	var observed []any
	w := injector.RegisterWrapper("fn-x", []mesh.DependencySpec{{Capability: "search"}}, []int{0}, func(ctx context.Context, proxies []any, args map[string]any) (any, error) {
		observed = proxies
		return nil, nil
	})

	dep := mesh.ResolvedDependency{Capability: "search", FunctionName: "search", Endpoint: "http://remote/mcp"}
	cc := &cycleContext{fullResponse: &registryclient.HeartbeatResponse{
		DependenciesResolved: map[string][]mesh.ResolvedDependency{"fn-x": {dep}},
	}}

	p.stepDependencyResolution(cc)
	_, err := w.Call(context.Background(), nil)
	assert.NoError(t, err)
	first := observed[0]
	assert.NotNil(t, first)

	p.stepDependencyResolution(cc)
	_, err = w.Call(context.Background(), nil)
	assert.NoError(t, err)
	second := observed[0]

	assert.Same(t, first, second, "identical resolution on the second heartbeat must not rebuild the proxy")
}
