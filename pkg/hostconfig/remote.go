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

package hostconfig

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/consul"
	"github.com/knadh/koanf/providers/etcd"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// RemoteSourceType names a remote coordination backend a deployment can
// point the Host/Config Resolver at, below env vars and explicit
// decorator arguments but above the built-in defaults.
type RemoteSourceType string

const (
	RemoteSourceFile      RemoteSourceType = "file"
	RemoteSourceConsul    RemoteSourceType = "consul"
	RemoteSourceEtcd      RemoteSourceType = "etcd"
	RemoteSourceZookeeper RemoteSourceType = "zookeeper"
)

// RemoteSource is an optional config layer: when a deployment points it at
// a coordination backend, it supplies soft overrides that fill in any
// decorator argument left unset (environment variables still win in
// Resolve), and - for backends whose provider supports watching - Watch
// re-resolves the config and hands it to a callback when the backend
// value changes. It is not gated on DynamicUpdatesEnabled.
type RemoteSource struct {
	koanf    *koanf.Koanf
	provider koanf.Provider
	parsed   bool
}

// NewRemoteSource connects to the given backend and loads its current
// value once. endpoints is ignored for RemoteSourceFile.
func NewRemoteSource(kind RemoteSourceType, path string, endpoints []string) (*RemoteSource, error) {
	if path == "" {
		return nil, fmt.Errorf("hostconfig: remote source path is required")
	}

	var provider koanf.Provider
	switch kind {
	case RemoteSourceFile:
		provider = file.Provider(path)
	case RemoteSourceConsul:
		if len(endpoints) == 0 {
			endpoints = []string{"localhost:8500"}
		}
		consulConfig := api.DefaultConfig()
		consulConfig.Address = endpoints[0]
		provider = consul.Provider(consul.Config{Cfg: consulConfig, Key: path})
	case RemoteSourceEtcd:
		if len(endpoints) == 0 {
			endpoints = []string{"localhost:2379"}
		}
		provider = etcd.Provider(etcd.Config{Endpoints: endpoints, DialTimeout: 5 * time.Second, Key: path})
	case RemoteSourceZookeeper:
		if len(endpoints) == 0 {
			endpoints = []string{"localhost:2181"}
		}
		zkProvider, err := newZookeeperProvider(endpoints, path)
		if err != nil {
			return nil, err
		}
		provider = zkProvider
	default:
		return nil, fmt.Errorf("hostconfig: unsupported remote source type %q", kind)
	}

	rs := &RemoteSource{koanf: koanf.New("."), provider: provider, parsed: kind != RemoteSourceConsul && kind != RemoteSourceEtcd}
	if err := rs.load(); err != nil {
		return nil, err
	}
	return rs, nil
}

func (rs *RemoteSource) load() error {
	var parser koanf.Parser
	if rs.parsed {
		parser = yaml.Parser()
	}
	k := koanf.New(".")
	if err := k.Load(rs.provider, parser); err != nil {
		return fmt.Errorf("hostconfig: failed to load remote config: %w", err)
	}
	rs.koanf = k
	return nil
}

// ApplyTo fills every field of ov that is still nil from the remote
// source's current values, keyed by snake_case knob names without the
// MESH_ prefix (e.g. http_host -> HTTPHost).
func (rs *RemoteSource) ApplyTo(ov *Overrides) {
	setString(&ov.RegistryURL, rs.koanf, "registry_url")
	setString(&ov.AgentName, rs.koanf, "agent_name")
	setString(&ov.HTTPHost, rs.koanf, "http_host")
	setString(&ov.Namespace, rs.koanf, "namespace")
	setString(&ov.LLMProvider, rs.koanf, "llm_provider")
	setString(&ov.LLMModel, rs.koanf, "llm_model")
	setString(&ov.LogLevel, rs.koanf, "log_level")

	setInt(&ov.HTTPPort, rs.koanf, "http_port")
	setInt(&ov.HealthInterval, rs.koanf, "health_interval")
	setInt(&ov.AutoRunInterval, rs.koanf, "auto_run_interval")
	setInt(&ov.UpdateGracePeriod, rs.koanf, "update_grace_period")

	setBool(&ov.EnableHTTP, rs.koanf, "http_enabled")
	setBool(&ov.AutoRun, rs.koanf, "auto_run")
	setBool(&ov.DynamicUpdatesEnabled, rs.koanf, "dynamic_updates_enabled")
	setBool(&ov.RateLimitEnabled, rs.koanf, "rate_limit_enabled")

	setString(&ov.RateLimitScope, rs.koanf, "rate_limit_scope")
	setInt(&ov.RateLimitTokensPerDay, rs.koanf, "rate_limit_tokens_per_day")
	setInt(&ov.RateLimitCallsPerMin, rs.koanf, "rate_limit_calls_per_min")

	if ov.UpdateStrategy == nil && rs.koanf.Exists("update_strategy") {
		s := UpdateStrategy(rs.koanf.String("update_strategy"))
		ov.UpdateStrategy = &s
	}
}

// Watch blocks, re-loading the backend and re-applying it whenever the
// backend reports a change, invoking onChange with the freshly resolved
// config. Only zookeeper and consul support push notification here; other
// backends return immediately with an error the caller can choose to
// ignore (static file/etcd sources are loaded once at startup).
func (rs *RemoteSource) Watch(base Overrides, onChange func(*Resolved)) error {
	watcher, ok := rs.provider.(interface {
		Watch(func(event interface{}, err error)) error
	})
	if !ok {
		return fmt.Errorf("hostconfig: remote source does not support watching")
	}

	return watcher.Watch(func(event interface{}, err error) {
		if err != nil {
			slog.Warn("hostconfig: remote source watch error", "error", err)
			return
		}
		if loadErr := rs.load(); loadErr != nil {
			slog.Warn("hostconfig: failed to reload remote source", "error", loadErr)
			return
		}
		ov := base
		rs.ApplyTo(&ov)
		resolved, resolveErr := Resolve(ov)
		if resolveErr != nil {
			slog.Warn("hostconfig: remote config change rejected", "error", resolveErr)
			return
		}
		onChange(resolved)
	})
}

func setString(dst **string, k *koanf.Koanf, key string) {
	if *dst != nil || !k.Exists(key) {
		return
	}
	v := k.String(key)
	*dst = &v
}

func setInt(dst **int, k *koanf.Koanf, key string) {
	if *dst != nil || !k.Exists(key) {
		return
	}
	v := k.Int(key)
	*dst = &v
}

func setBool(dst **bool, k *koanf.Koanf, key string) {
	if *dst != nil || !k.Exists(key) {
		return
	}
	v := k.Bool(key)
	*dst = &v
}
