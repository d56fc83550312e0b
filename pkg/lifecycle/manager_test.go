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

package lifecycle

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestManager_ShutdownRunsHandlersLIFOExactlyOnce is P9: registered
// cleanup handlers run in reverse registration order, and a repeated
// Shutdown call is a no-op.
func TestManager_ShutdownRunsHandlersLIFOExactlyOnce(t *testing.T) {
	m := New(0, 0)

	var order []string
	var runCounts [3]int32
	m.RegisterCleanupHandler("first", func(ctx context.Context) error {
		order = append(order, "first")
		atomic.AddInt32(&runCounts[0], 1)
		return nil
	})
	m.RegisterCleanupHandler("second", func(ctx context.Context) error {
		order = append(order, "second")
		atomic.AddInt32(&runCounts[1], 1)
		return nil
	})
	m.RegisterCleanupHandler("third", func(ctx context.Context) error {
		order = append(order, "third")
		atomic.AddInt32(&runCounts[2], 1)
		return nil
	})

	assert.False(t, m.ShuttingDown())

	m.Shutdown(context.Background())
	assert.True(t, m.ShuttingDown())
	assert.Equal(t, []string{"third", "second", "first"}, order)

	// A second Shutdown call must not re-run any handler.
	m.Shutdown(context.Background())
	assert.Equal(t, []string{"third", "second", "first"}, order)
	for i, n := range runCounts {
		assert.Equal(t, int32(1), atomic.LoadInt32(&n), "handler %d ran more than once", i)
	}
}

// TestManager_JoinCompletesWithinDeadline verifies a background loop
// registered via Join is waited on during Shutdown, and Shutdown returns
// once it stops rather than blocking for the full join deadline.
func TestManager_JoinCompletesWithinDeadline(t *testing.T) {
	m := New(0, 500*time.Millisecond)

	var stopped atomic.Bool
	m.Join(func(ctx context.Context) error {
		time.Sleep(10 * time.Millisecond)
		stopped.Store(true)
		return nil
	})

	start := time.Now()
	m.Shutdown(context.Background())
	elapsed := time.Since(start)

	assert.True(t, stopped.Load())
	assert.Less(t, elapsed, 500*time.Millisecond, "Shutdown should return once the joined loop stops, not wait out the full deadline")
}

// TestManager_JoinDeadlineExceededDoesNotBlockShutdown verifies Shutdown
// proceeds once the join deadline elapses even if a joined loop never
// stops.
func TestManager_JoinDeadlineExceededDoesNotBlockShutdown(t *testing.T) {
	m := New(0, 20*time.Millisecond)

	block := make(chan struct{})
	m.Join(func(ctx context.Context) error {
		<-block
		return nil
	})

	done := make(chan struct{})
	go func() {
		m.Shutdown(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Shutdown did not return after the join deadline elapsed")
	}
	close(block)
}
