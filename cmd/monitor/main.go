package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"pmsbridge/internal/adapters/observability"
	"pmsbridge/internal/adapters/opera"
	redisad "pmsbridge/internal/adapters/redis"
	"pmsbridge/internal/adapters/sandbox"
	"pmsbridge/internal/adapters/secrets"
	"pmsbridge/internal/app"
	"pmsbridge/internal/capability"
	"pmsbridge/internal/domain"
	"pmsbridge/internal/registry"
	"pmsbridge/internal/resilience"
	"pmsbridge/internal/shared"
)

// monitor sweeps HealthCheck across every configured vendor on an
// interval and exports the observed circuit states.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := shared.Load()
	log.Logger = observability.NewLogger(cfg.AppEnv, "monitor")

	observability.Serve()

	log.Info().
		Dur("interval", cfg.MonitorInterval).
		Int("workers", cfg.MonitorWorkers).
		Msg("monitor starting")

	matrix, err := capability.Load(cfg.MatrixPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.MatrixPath).Msg("capability matrix load failed")
	}

	circuits := redisad.NewCircuitStore(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	reg := registry.New(registry.Options{
		Matrix:   matrix,
		Secrets:  secrets.NewEnv(),
		Circuits: circuits,
		Policy: resilience.Policy{
			MaxAttempts:      cfg.RetryMaxAttempts,
			FailureThreshold: cfg.BreakerFailureThreshold,
			RecoveryTimeout:  cfg.BreakerRecoveryTimeout,
		},
		TTL: cfg.ConnectorTTL,
	})
	vendors := registerVendors(reg, cfg)
	defer reg.Close()

	svc := app.NewConnectorService(reg, nil, cfg.CacheTTL)

	ticker := time.NewTicker(cfg.MonitorInterval)
	defer ticker.Stop()

	sweep(ctx, svc, vendors, cfg.MonitorWorkers)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("monitor stopping")
			return
		case <-ticker.C:
			sweep(ctx, svc, vendors, cfg.MonitorWorkers)
		}
	}
}

func sweep(ctx context.Context, svc *app.ConnectorService, vendors map[string]domain.ConnectorConfig, workers int) {
	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup

	for name, cc := range vendors {
		name, cc := name, cc

		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			return
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			hs, err := svc.VendorHealth(ctx, cc)
			if err != nil {
				log.Warn().Str("vendor", name).Err(err).Msg("health check failed")
				observability.SetCircuitState(name, "read", string(hs.CircuitState))
				return
			}
			observability.SetCircuitState(name, "read", string(hs.CircuitState))
			log.Info().
				Str("vendor", name).
				Bool("reachable", hs.Reachable).
				Dur("latency", hs.Latency).
				Str("circuit", string(hs.CircuitState)).
				Msg("health ok")
		}()
	}
	wg.Wait()
}

func registerVendors(reg *registry.Registry, cfg shared.Config) map[string]domain.ConnectorConfig {
	vendors := make(map[string]domain.ConnectorConfig)

	err := reg.Register(sandbox.VendorName, func(_ context.Context, cc domain.ConnectorConfig, spec capability.VendorSpec, creds domain.Credentials) (domain.Connector, error) {
		return sandbox.New(
			sandbox.WithPropertyID(cc.PropertyID),
			sandbox.WithCapabilities(spec.CapabilitySet()),
			sandbox.WithWebhookSecret(creds.WebhookSecret),
		), nil
	})
	if err != nil {
		log.Fatal().Err(err).Msg("register sandbox vendor failed")
	}
	vendors[sandbox.VendorName] = domain.ConnectorConfig{
		Vendor:     sandbox.VendorName,
		PropertyID: cfg.PropertyID,
		Region:     cfg.OperaRegion,
	}

	if cfg.OperaBaseURL == "" {
		return vendors
	}
	err = reg.Register(opera.VendorName, func(_ context.Context, cc domain.ConnectorConfig, spec capability.VendorSpec, creds domain.Credentials) (domain.Connector, error) {
		return opera.New(opera.Config{
			BaseURL:       cc.BaseURL,
			PropertyID:    cc.PropertyID,
			ClientID:      creds.ClientID,
			ClientSecret:  creds.ClientSecret,
			WebhookSecret: creds.WebhookSecret,
			RPS:           spec.RateLimits.RequestsPerSecond,
			Burst:         spec.RateLimits.Burst,
		})
	})
	if err != nil {
		log.Fatal().Err(err).Msg("register opera vendor failed")
	}
	vendors[opera.VendorName] = domain.ConnectorConfig{
		Vendor:        opera.VendorName,
		PropertyID:    cfg.PropertyID,
		CredentialRef: "opera",
		BaseURL:       cfg.OperaBaseURL,
		Region:        cfg.OperaRegion,
	}
	return vendors
}
