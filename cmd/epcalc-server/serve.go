package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/arnauranchal/epcalc-server/internal/auth"
	"github.com/arnauranchal/epcalc-server/internal/breaker"
	"github.com/arnauranchal/epcalc-server/internal/cache"
	"github.com/arnauranchal/epcalc-server/internal/config"
	"github.com/arnauranchal/epcalc-server/internal/coordinator"
	"github.com/arnauranchal/epcalc-server/internal/httpapi"
	"github.com/arnauranchal/epcalc-server/internal/identity"
	"github.com/arnauranchal/epcalc-server/internal/logging"
	"github.com/arnauranchal/epcalc-server/internal/metrics"
	"github.com/arnauranchal/epcalc-server/internal/pool"
	"github.com/arnauranchal/epcalc-server/internal/session"
	"github.com/arnauranchal/epcalc-server/internal/usage"
)

var keysFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP compute service",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&keysFile, "keys-file", "./epcalc-keys.json", "path to the API key store")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	keys, err := identity.LoadKeyStoreFile(keysFile)
	if err != nil {
		return err
	}

	sessions := session.NewStore(session.Config{})
	defer sessions.Close()

	reg := prometheus.NewRegistry()
	metricsReg := metrics.New(reg)

	c := cache.New(cache.Config{
		MaxEntries:  cfg.Cache.MaxEntries,
		MaxAge:      cfg.Cache.MaxAge,
		NegativeTTL: cfg.Cache.NegativeTTL,
		Logger:      &logger,
		Metrics:     metricsReg,
	})

	p := pool.New(cfg.Pool.Workers, cfg.Pool.QueueCap)
	p.Start()
	defer p.Close()

	b := breaker.New(breaker.Config{
		OpenThreshold:     cfg.Breaker.OpenThreshold,
		ShedThreshold:     cfg.Breaker.ShedThreshold,
		RecoverThreshold:  cfg.Breaker.RecoverThreshold,
		ReopenThreshold:   cfg.Breaker.ReopenThreshold,
		HalfOpenCostRatio: cfg.Breaker.HalfOpenCostRatio,
		CoolDown:          cfg.Breaker.CoolDown,
		BaseRetryAfter:    cfg.Breaker.BaseRetryAfter,
	})

	meter := usage.NewMeter(usage.Config{Storage: usage.NewMemoryStorage(), Logger: &logger})
	defer meter.Close()

	coord := coordinator.New(coordinator.Config{
		Cache:            c,
		Pool:             p,
		Breaker:          b,
		Meter:            meter,
		MaxPoints:        cfg.Server.MaxPoints,
		KernelTimeout:    cfg.Server.KernelTimeout,
		MemoryLimitBytes: cfg.Server.MemoryLimitBytes,
		Metrics:          metricsReg,
		Logger:           &logger,
	})

	gate := auth.New(auth.Config{
		Keys:           keys,
		Sessions:       sessions,
		AdminBasicUser: cfg.Auth.AdminBasicUser,
		AdminBasicPass: cfg.Auth.AdminBasicPass,
	})

	srv := httpapi.NewServer(httpapi.Config{
		Coord:             coord,
		Gate:              gate,
		Keys:              keys,
		Sessions:          sessions,
		Cache:             c,
		Pool:              p,
		Breaker:           b,
		KeysFile:          keysFile,
		RequestTimeout:    cfg.Server.RequestTimeout,
		CORSAllowedOrigin: cfg.Server.CORSAllowedOrigin,
		MetricsHandler:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:            logger,
	})

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Handler(),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("epcalc-server: listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return err
	case <-sigC:
		logger.Info().Msg("epcalc-server: shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}
