// Copyright 2025 AxonFlow
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

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"reportpilot/platform/agent/circuitbreaker"
	"reportpilot/platform/agent/ratelimit"
	"reportpilot/platform/common/usage"
	"reportpilot/platform/connectors/base"
	secrets "reportpilot/platform/connectors/config"
	"reportpilot/platform/connectors/postgres"
	"reportpilot/platform/orchestrator/access"
	"reportpilot/platform/orchestrator/cost"
	"reportpilot/platform/orchestrator/llm"
	"reportpilot/platform/orchestrator/llm/anthropic"
	"reportpilot/platform/orchestrator/llm/bedrock"
	"reportpilot/platform/orchestrator/sanitizer"
	"reportpilot/platform/shared/logger"
	"reportpilot/platform/shared/telemetry"
)

// App is the fully wired service.
type App struct {
	Server  *Server
	Breaker *circuitbreaker.Breaker

	closers []func() error
}

// Close releases the database and Redis connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build connects to every dependency named in cfg and wires the service.
func Build(ctx context.Context, cfg *Config, version string) (*App, error) {
	log := logger.New("orchestrator")
	app := &App{}
	checks := map[string]HealthCheck{}

	db, err := postgres.Open(ctx, &base.ConnectorConfig{
		Name:          "postgres",
		ConnectionURL: cfg.Database.URL,
		Options:       map[string]interface{}{"max_open_conns": cfg.Database.MaxOpenConns},
	})
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, db.Close)
	checks["database"] = func(ctx context.Context) bool { return postgres.HealthCheck(ctx, db).Healthy }

	schema := cfg.Data
	data := postgres.NewDataStore(db, &schema, "postgres", cfg.Database.QueryTimeout)
	recorder := usage.NewUsageRecorder(db)

	limiter := newLimiter(ctx, cfg, app, checks, log)

	breaker := circuitbreaker.New(cfg.CircuitBreaker,
		circuitbreaker.WithStateChangeHook(func(from, to circuitbreaker.State) {
			ObserveCircuitState(from, to)
			fields := map[string]interface{}{"from": from.String(), "to": to.String()}
			if to == circuitbreaker.StateOpen {
				log.Warn("", "", "LLM circuit breaker opened", fields)
				return
			}
			log.Info("", "", "LLM circuit breaker state changed", fields)
		}),
	)
	app.Breaker = breaker

	client, err := newLLMClient(ctx, cfg.LLM)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	pricing := cost.NewPricingConfig()
	if cfg.LLM.PricingFile != "" {
		if pricing, err = cost.LoadPricingFromFile(cfg.LLM.PricingFile); err != nil {
			_ = app.Close()
			return nil, err
		}
	}

	prompt, err := NewTemplatePrompt(cfg.Prompt.Template, data)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	engine, err := NewEngine(EngineDeps{
		LLM:             client,
		Breaker:         breaker,
		Data:            data,
		Knowledge:       postgres.NewKnowledgeRepository(db),
		Prompt:          prompt,
		Pricing:         pricing,
		Limits:          cfg.Budget,
		Model:           cfg.LLM.Model,
		MaxTokens:       cfg.LLM.MaxTokens,
		ToolParallelism: cfg.Tools.Parallelism,
	})
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	var settings SettingsSource = postgres.NewCustomerRepository(db)
	if cfg.Customers.Static {
		settings = StaticSettings{Enabled: true, DailyCapUSD: cfg.Customers.DailyCapUSD}
	}

	gate, err := NewGatekeeper(GatekeeperDeps{
		Resolver:  access.NewResolver(cfg.Access),
		Settings:  settings,
		Limiter:   limiter,
		DailyCap:  cost.NewDailyCap(recorder),
		Engine:    engine,
		Sanitizer: sanitizer.New(cfg.Sanitizer),
		Usage:     recorder,
	})
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	app.Server = NewServer(gate, breaker, checks, version)
	log.Info("", "", "Report service wired", map[string]interface{}{
		"llm_provider": client.Name(),
		"llm_model":    client.Model(),
		"redis":        cfg.Redis.URL != "",
		"tables":       len(schema.Tables),
	})
	return app, nil
}

// newLimiter uses Redis when configured. An unreachable Redis at startup
// falls back to in-process counters, in keeping with the limiter's
// fail-open policy.
func newLimiter(ctx context.Context, cfg *Config, app *App, checks map[string]HealthCheck, log *logger.Logger) *ratelimit.Limiter {
	var store ratelimit.Store = ratelimit.NewMemoryStore()
	if cfg.Redis.URL != "" {
		client, err := ratelimit.DialRedis(ctx, cfg.Redis.URL)
		if err != nil {
			log.Warn("", "", "Redis unavailable, using in-memory rate limits", map[string]interface{}{"error": err.Error()})
		} else {
			store = ratelimit.NewRedisStore(client)
			app.closers = append(app.closers, client.Close)
			checks["redis"] = func(ctx context.Context) bool { return client.Ping(ctx).Err() == nil }
		}
	}
	return ratelimit.New(store, cfg.RateLimit, ratelimit.WithLogger(logger.New("rate-limiter")))
}

func newLLMClient(ctx context.Context, cfg LLMConfig) (llm.Client, error) {
	switch cfg.Provider {
	case "bedrock":
		p, err := bedrock.New(ctx, cfg.BedrockRegion, cfg.Model, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "anthropic":
		apiKey := cfg.APIKey
		if cfg.APIKeySecretARN != "" {
			sm, err := secrets.NewAWSSecretsManager(ctx, secrets.AWSSecretsManagerOptions{
				Region: getEnv("AWS_REGION", cfg.BedrockRegion),
			})
			if err != nil {
				return nil, err
			}
			if apiKey, err = secrets.ResolveAPIKey(ctx, sm, cfg.APIKeySecretARN); err != nil {
				return nil, fmt.Errorf("failed to resolve Anthropic API key: %w", err)
			}
		}
		p, err := anthropic.NewProvider(anthropic.Config{
			APIKey:    apiKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.Provider)
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, cfg *Config, version string) error {
	logger.SetLevel(cfg.LogLevel)
	log := logger.New("orchestrator")
	log.Info("", "", "Starting report service", map[string]interface{}{"version": version})

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:  ServiceName,
		Version:      version,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		Insecure:     cfg.Telemetry.Insecure,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	app, err := Build(ctx, cfg, version)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           app.Server.Handler(cfg.Server.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("", "", "Report service listening", map[string]interface{}{"port": cfg.Server.Port})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("", "", "Shutting down report service", nil)
	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

var _ SettingsSource = (*postgres.CustomerRepository)(nil)
