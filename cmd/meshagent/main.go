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

// Command meshagent is the process entrypoint: it loads any .env files,
// resolves host config, wires the optional cross-cutting subsystems
// (auth, observability), runs the Startup Pipeline, and blocks on the
// Signal/Cleanup Manager until an interrupt drives graceful shutdown.
//
// User code registers its @tool, @agent, and @llm declarations against
// decorator.Global by importing its own package for side effects before
// main runs; this binary only wires the runtime around whatever ends up
// registered.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kadirpekel/mcpmesh/pkg/auth"
	"github.com/kadirpekel/mcpmesh/pkg/decorator"
	"github.com/kadirpekel/mcpmesh/pkg/hostconfig"
	"github.com/kadirpekel/mcpmesh/pkg/logger"
	"github.com/kadirpekel/mcpmesh/pkg/observability"
	"github.com/kadirpekel/mcpmesh/pkg/ratelimit"
	"github.com/kadirpekel/mcpmesh/pkg/startup"
)

// sqlDriverNames maps a rate-limit store dialect to the database/sql
// driver name registered by that dialect's blank-imported driver
// package.
var sqlDriverNames = map[string]string{
	"postgres": "postgres",
	"mysql":    "mysql",
	"sqlite":   "sqlite3",
}

func main() {
	if err := run(); err != nil {
		slog.Error("meshagent: fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	if err := hostconfig.LoadEnvFiles(); err != nil {
		return err
	}

	level, _ := logger.ParseLevel(os.Getenv("MESH_LOG_LEVEL"))
	logger.Init(level, os.Stderr, os.Getenv("MESH_LOG_FORMAT"))

	overrides := hostconfig.Overrides{}
	if remotePath := os.Getenv("MESH_REMOTE_CONFIG_PATH"); remotePath != "" {
		kind := hostconfig.RemoteSourceType(envOr("MESH_REMOTE_CONFIG_KIND", "file"))
		remote, err := hostconfig.NewRemoteSource(kind, remotePath, nil)
		if err != nil {
			return fmt.Errorf("connecting remote config source: %w", err)
		}
		remote.ApplyTo(&overrides)
	}

	resolved, err := hostconfig.Resolve(overrides)
	if err != nil {
		return fmt.Errorf("resolving host config: %w", err)
	}

	registry := decorator.Global

	var validator *auth.JWTValidator
	if jwksURL := os.Getenv("MESH_JWKS_URL"); jwksURL != "" {
		validator, err = auth.NewJWTValidator(jwksURL, os.Getenv("MESH_JWT_ISSUER"), os.Getenv("MESH_JWT_AUDIENCE"))
		if err != nil {
			return fmt.Errorf("constructing jwt validator: %w", err)
		}
		defer validator.Close()
	}

	ctx := context.Background()
	var obsManager *observability.Manager
	if os.Getenv("MESH_METRICS_ENABLED") == "true" || os.Getenv("MESH_TRACING_ENABLED") == "true" {
		obsManager, err = observability.NewFromConfig(ctx, &observability.Config{
			Tracing: observability.TracingConfig{
				Enabled:     os.Getenv("MESH_TRACING_ENABLED") == "true",
				ServiceName: resolved.AgentName,
			},
			Metrics: observability.MetricsConfig{
				Enabled:   os.Getenv("MESH_METRICS_ENABLED") == "true",
				Namespace: "mcpmesh",
			},
		})
		if err != nil {
			return fmt.Errorf("constructing observability manager: %w", err)
		}
	}

	var rateLimitStore ratelimit.Store
	if dialect := os.Getenv("MESH_RATE_LIMIT_DB_DIALECT"); dialect != "" {
		driverName, ok := sqlDriverNames[dialect]
		if !ok {
			return fmt.Errorf("unsupported rate limit db dialect %q", dialect)
		}
		db, err := sql.Open(driverName, os.Getenv("MESH_RATE_LIMIT_DB_DSN"))
		if err != nil {
			return fmt.Errorf("opening rate limit database: %w", err)
		}
		defer db.Close()
		rateLimitStore, err = ratelimit.NewSQLStore(db, dialect)
		if err != nil {
			return fmt.Errorf("constructing sql rate limit store: %w", err)
		}
	}

	agent, err := startup.Run(ctx, startup.Config{
		Registry:       registry,
		Resolved:       resolved,
		Auth:           validator,
		Observability:  obsManager,
		RateLimitStore: rateLimitStore,
	})
	if err != nil {
		return fmt.Errorf("starting mesh agent: %w", err)
	}

	slog.Info("meshagent: running", "agent_id", agent.AgentID)
	agent.Lifecycle.InstallSignalHandlers(ctx)
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
