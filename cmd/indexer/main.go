package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"

	"github.com/synapse-market/synapse-core/internal/adapter"
	"github.com/synapse-market/synapse-core/internal/api"
	"github.com/synapse-market/synapse-core/internal/config"
	"github.com/synapse-market/synapse-core/internal/domain"
	"github.com/synapse-market/synapse-core/internal/gate"
	"github.com/synapse-market/synapse-core/internal/indexer"
	"github.com/synapse-market/synapse-core/internal/ipfs"
	"github.com/synapse-market/synapse-core/internal/logger"
	"github.com/synapse-market/synapse-core/internal/stellar"
	"github.com/synapse-market/synapse-core/internal/storage"
	"github.com/synapse-market/synapse-core/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadIndexerServiceConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "indexer",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Synapse knowledge service",
		zap.String("storage_mode", string(cfg.Storage.Mode)),
	)

	clock := adapter.NewClock()

	// Chain collaborators are only wired outside local mode
	var (
		provider storage.Provider
		mirror   store.MirrorStore
		status   api.StatusReporter
		idx      *indexer.Indexer
	)

	switch cfg.Storage.Mode {
	case domain.StorageModeLocal:
		db, err := store.OpenLocalDB(cfg.Database.LocalDBPath())
		if err != nil {
			logger.FatalCtx(ctx, "Failed to open local database", zap.Error(err))
		}
		provider = storage.NewLocalProvider(db)
		logger.InfoCtx(ctx, "Opened local database", zap.String("path", cfg.Database.LocalDBPath()))

	case domain.StorageModeLedger, domain.StorageModeDual:
		rpc := stellar.NewJSONRPCClient(cfg.Stellar.RPCURL, adapter.NewHTTPClient(cfg.Stellar.SubmitTimeout))
		signer, err := stellar.NewKeypairSigner(cfg.Stellar.SecretKey, cfg.Stellar.NetworkPassphrase, rpc)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to initialize signing key", zap.Error(err))
		}
		contract := stellar.NewClient(rpc, signer, cfg.Stellar.ContractID, clock)
		ipfsClient := ipfs.NewPinataClient(
			cfg.IPFS.APIURL,
			cfg.IPFS.GatewayURL,
			cfg.IPFS.APIKey,
			cfg.IPFS.APISecret,
			adapter.NewHTTPClient(ipfs.DefaultTimeout),
			clock,
		)

		mirrorDB, err := store.OpenMirrorDB(cfg.Database.MirrorDBPath())
		if err != nil {
			logger.FatalCtx(ctx, "Failed to open mirror database", zap.Error(err))
		}
		mirror = store.NewMirrorStore(mirrorDB)

		var cursor store.CursorStore
		if cfg.Storage.Mode == domain.StorageModeLedger {
			cursor = store.NewCursorStore(mirrorDB)
			provider = storage.NewLedgerProvider(mirrorDB, contract, ipfsClient, cfg.Stellar.ContractID, clock)
		} else {
			localDB, err := store.OpenLocalDB(cfg.Database.LocalDBPath())
			if err != nil {
				logger.FatalCtx(ctx, "Failed to open local database", zap.Error(err))
			}
			// The dual provider owns the cursor in the local database so a
			// forced resync is visible to the indexer
			cursor = store.NewCursorStore(localDB)
			provider = storage.NewDualProvider(localDB, contract, ipfsClient, cfg.Stellar.ContractID, clock)
			defer closeDB(ctx, mirrorDB)
		}

		idx = indexer.New(indexer.Config{
			ContractID:     cfg.Stellar.ContractID,
			PollInterval:   cfg.Indexer.PollInterval,
			BackfillWindow: cfg.Indexer.BackfillWindow,
			PageLimit:      cfg.Indexer.PageLimit,
		}, rpc, mirror, cursor, ipfsClient, clock)
		status = idx

		logger.InfoCtx(ctx, "Connected to Soroban RPC",
			zap.String("rpc_url", cfg.Stellar.RPCURL),
			zap.String("contract_id", cfg.Stellar.ContractID),
			zap.String("signer", signer.Address()),
		)
	}
	defer func() {
		if err := provider.Close(); err != nil {
			logger.ErrorCtx(ctx, err)
		}
	}()

	// Initialize the submission gate
	judge := gate.NewCLIJudge(cfg.Gate.JudgeCommand, cfg.Gate.JudgeTimeout)
	submissionGate := gate.New(judge, provider, cfg.Gate)
	logger.InfoCtx(ctx, "Initialized submission gate",
		zap.Bool("enabled", cfg.Gate.Enabled),
		zap.Int("quality_threshold", cfg.Gate.QualityThreshold),
	)

	// Start the indexer in a goroutine
	errChan := make(chan error, 2)
	if idx != nil {
		go func() {
			if err := idx.Start(ctx); err != nil {
				errChan <- err
			}
		}()
	}

	// Start the API server
	server := api.New(api.Config{
		Debug:        cfg.Debug,
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}, api.NewHandler(provider, submissionGate, mirror, status))
	go func() {
		if err := server.Start(); err != nil {
			errChan <- err
		}
	}()

	// Wait for interrupt signal or error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		logger.ErrorCtx(ctx, err)
	}

	// Cancel context to stop background work
	cancel()

	// Give everything time to shut down gracefully
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.ErrorCtx(shutdownCtx, err)
	}
	if idx != nil {
		if err := idx.Stop(shutdownCtx); err != nil {
			logger.ErrorCtx(shutdownCtx, err)
		}
	}

	logger.InfoCtx(shutdownCtx, "Service stopped")
}

func closeDB(ctx context.Context, db *gorm.DB) {
	if err := store.CloseDB(db); err != nil {
		logger.ErrorCtx(ctx, err)
	}
}
