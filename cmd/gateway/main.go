package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	server "pmsbridge/internal/adapters/http_server"
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

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, "gateway")

	observability.Serve()

	matrix, err := capability.Load(cfg.MatrixPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.MatrixPath).Msg("capability matrix load failed")
	}
	log.Info().Strs("vendors", matrix.Vendors()).Msg("capability matrix loaded")

	circuits := redisad.NewCircuitStore(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)

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

	svc := app.NewConnectorService(reg, cache, cfg.CacheTTL)

	// http
	srv := server.New(15 * time.Second)
	promReg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(promReg))
	srv.MountHandlers(&server.Handlers{Svc: svc, Reg: reg, Vendors: vendors})

	log.Info().Str("addr", cfg.HTTPAddr).Msg("gateway listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux()}

	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
}

// registerVendors fills the construction table and returns the per-vendor
// connector configs the handlers route on. The sandbox vendor is always
// available; opera joins when a base URL is configured.
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
