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

package decorator

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultDebounceWindow is used when the caller does not override it.
const DefaultDebounceWindow = 100 * time.Millisecond

// MinDebounceWindow and MaxDebounceWindow bound the window accepted by
// NewDebouncer; values outside this range are clamped.
const (
	MinDebounceWindow = 50 * time.Millisecond
	MaxDebounceWindow = 250 * time.Millisecond
)

// Debouncer coalesces the burst of registration events emitted while user
// modules are importing into a single Startup Pipeline invocation. It is a
// single-threaded, cooperative timer: every event resets the window, and
// the pipeline fires exactly once, the first time the window elapses with
// no further events.
type Debouncer struct {
	mu       sync.Mutex
	window   time.Duration
	timer    *time.Timer
	fired    bool
	onFire   func()
	lateLogf func(evt RegistrationEvent)
}

// NewDebouncer creates a Debouncer that invokes onFire exactly once, after
// the configured window has elapsed with no intervening events.
func NewDebouncer(window time.Duration, onFire func()) *Debouncer {
	if window < MinDebounceWindow {
		window = MinDebounceWindow
	}
	if window > MaxDebounceWindow {
		window = MaxDebounceWindow
	}
	return &Debouncer{window: window, onFire: onFire}
}

// OnEvent is the Decorator Registry's RegistrationEvent callback. Before
// the pipeline has fired, it resets the window. After the pipeline has
// fired, late registrations are logged and otherwise ignored - the
// Startup Pipeline has already run and will not be invoked again.
func (d *Debouncer) OnEvent(evt RegistrationEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fired {
		slog.Warn("decorator: registration arrived after startup, ignoring",
			"kind", evt.Kind, "function_id", evt.FunctionID)
		return
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	if d.fired {
		d.mu.Unlock()
		return
	}
	d.fired = true
	onFire := d.onFire
	d.mu.Unlock()

	if onFire != nil {
		onFire()
	}
}

// Fired reports whether the pipeline has already been invoked.
func (d *Debouncer) Fired() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fired
}

// ForceFire invokes the pipeline immediately if it has not already fired,
// cancelling any pending timer, so startup does not wait for the debounce
// window once registration is known to be complete.
func (d *Debouncer) ForceFire() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	if d.fired {
		d.mu.Unlock()
		return
	}
	d.fired = true
	onFire := d.onFire
	d.mu.Unlock()

	if onFire != nil {
		onFire()
	}
}
