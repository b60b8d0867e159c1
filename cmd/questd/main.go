package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"questchain/config"
	"questchain/core/state"
	"questchain/crypto"
	"questchain/native/bank"
	"questchain/native/campaign"
	"questchain/native/common"
	"questchain/native/nft"
	"questchain/observability/logging"
	telemetry "questchain/observability/otel"
	"questchain/rpc"
	"questchain/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	allowMigrate := flag.Bool("allow-migrate", false, "Allow starting with a mismatched state schema (manual migrations only)")
	flag.Parse()

	if err := run(*configFile, *allowMigrate); err != nil {
		fmt.Fprintf(os.Stderr, "questd: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string, allowMigrate bool) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	rt, err := cfg.Runtime()
	if err != nil {
		return err
	}
	logger, logCloser := logging.SetupWithFile("questd", cfg.Environment, cfg.Log)
	defer func() { _ = logCloser.Close() }()

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "questd",
		Environment: cfg.Environment,
		ChainID:     cfg.ChainID,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	manager := state.NewManager(db)
	if err := manager.EnsureStateVersion(allowMigrate); err != nil {
		return err
	}
	ledger := bank.NewLedger(manager)
	nftEngine := nft.NewEngine(manager, ledger, rt.NFTContract, bank.NativeAsset)
	campaignEngine := campaign.NewEngine(manager, ledger, campaign.NFTTiers{Engine: nftEngine}, rt.CampaignContract, rt.ChainID)

	if err := bootstrap(logger, cfg, rt, manager, ledger, nftEngine, campaignEngine); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	server, err := rpc.NewServer(rpc.Backend{
		State:    manager,
		Ledger:   ledger,
		NFT:      nftEngine,
		Campaign: campaignEngine,
	}, rpc.Config{
		RequestsPerSecond: cfg.RPC.RequestsPerSecond,
		Burst:             cfg.RPC.Burst,
		ReadTimeout:       time.Duration(cfg.RPC.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.RPC.WriteTimeout) * time.Second,
		MaxSkew:           time.Duration(cfg.RPC.MaxSkewSeconds) * time.Second,
	}, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() { errs <- server.Start(cfg.ListenAddress) }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errs:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}

// bootstrap initialises both contracts and credits the configured
// allocations the first time the node runs against an empty database.
func bootstrap(logger *slog.Logger, cfg *config.Config, rt *config.Runtime, manager *state.Manager, ledger *bank.Ledger, nftEngine *nft.Engine, campaignEngine *campaign.Engine) error {
	owner, err := nftEngine.Owner()
	if err != nil {
		return err
	}
	if !common.IsZero(owner) {
		return nil
	}
	if !rt.GuardsConfigured() {
		logger.Warn("governance guards not configured; contracts left uninitialised")
		return nil
	}
	operator, err := crypto.KeystoreAccount(cfg.OperatorKeystore)
	if err != nil {
		return fmt.Errorf("read operator keystore: %w", err)
	}

	err = func() error {
		if err := nftEngine.Initialise(operator, rt.Guard1, rt.Guard2); err != nil {
			return err
		}
		if err := campaignEngine.Initialise(operator, rt.Guard1, rt.Guard2, rt.BackendAuthority); err != nil {
			return err
		}
		if rt.CreationFee.Sign() > 0 {
			if err := campaignEngine.SetCreationFee(operator, rt.CreationFee); err != nil {
				return err
			}
		}
		for _, alloc := range rt.Allocations {
			if err := ledger.Mint(alloc.Account, alloc.Asset, alloc.Amount); err != nil {
				return err
			}
		}
		return nil
	}()
	if err != nil {
		manager.Discard()
		return err
	}
	if err := manager.Commit(); err != nil {
		return err
	}
	logger.Info("contracts initialised",
		"owner", crypto.FromRaw(operator).String(),
		"nftContract", crypto.FromRaw(rt.NFTContract).String(),
		"campaignContract", crypto.FromRaw(rt.CampaignContract).String(),
		"allocations", len(rt.Allocations))
	return nil
}
