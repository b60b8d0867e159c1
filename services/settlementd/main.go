package settlementd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"questchain/crypto"
	"questchain/observability/logging"
	telemetry "questchain/observability/otel"
)

// Main initialises and runs the settlement daemon.
func Main() error {
	var (
		cfgPath     string
		exportDir   string
		exportSince time.Duration
	)
	flag.StringVar(&cfgPath, "config", "services/settlementd/config.yaml", "path to settlementd configuration")
	flag.StringVar(&exportDir, "export-dir", "", "write an authorization audit report to this directory and exit")
	flag.DurationVar(&exportSince, "export-since", 24*time.Hour, "window covered by the audit report")
	flag.Parse()

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, logCloser := logging.SetupWithFile("settlementd", cfg.Environment, cfg.Log)
	defer func() { _ = logCloser.Close() }()

	domain, err := cfg.Domain()
	if err != nil {
		return err
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "settlementd",
		Environment: cfg.Environment,
		ChainID:     domain.ChainID.Uint64(),
		Endpoint:    strings.TrimSpace(cfg.Telemetry.Endpoint),
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	db, err := OpenDatabase(cfg.Database)
	if err != nil {
		return err
	}
	store, err := NewStore(db, cfg.MaxBatch)
	if err != nil {
		return err
	}
	if exportDir != "" {
		report, err := ExportAuthorizations(context.Background(), store, time.Now().Add(-exportSince), exportDir)
		if err != nil {
			return err
		}
		logger.Info("audit report written", "csv", report.CSVPath, "parquet", report.ParquetPath, "rows", report.Count)
		return nil
	}
	signer, err := LoadSigner(cfg.Signer, domain)
	if err != nil {
		return err
	}
	var nonces NonceSource
	if strings.TrimSpace(cfg.Node.Endpoint) != "" {
		nonces = NewNodeNonces(cfg.Node)
	}
	server, err := NewServer(store, signer, NewAuthenticator(cfg.Auth, logger), nonces, cfg.RateLimit, logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		logger.Info("settlementd listening",
			"address", cfg.ListenAddress,
			"authority", crypto.FromRaw(signer.Address()).String(),
			"nodeNonces", nonces != nil)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
