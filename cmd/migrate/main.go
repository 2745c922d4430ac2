// Command migrate promotes every plan in the local knowledge base onto the
// ledger. Runs are idempotent: plans already registered on chain are
// skipped, so a partially failed run can simply be re-run.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/synapse-market/synapse-core/internal/adapter"
	"github.com/synapse-market/synapse-core/internal/config"
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
	cfg, err := config.LoadMigrateConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "migrate",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting local to ledger migration",
		zap.String("contract_id", cfg.Stellar.ContractID),
	)

	// Open the local knowledge base
	db, err := store.OpenLocalDB(cfg.Database.LocalDBPath())
	if err != nil {
		logger.FatalCtx(ctx, "Failed to open local database", zap.Error(err))
	}
	defer func() {
		if err := store.CloseDB(db); err != nil {
			logger.ErrorCtx(ctx, err)
		}
	}()

	// Wire the chain collaborators
	clock := adapter.NewClock()
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

	migrator := storage.NewMigrator(store.NewLocalStore(db), contract, ipfsClient)
	report, err := migrator.Run(ctx)
	if err != nil {
		logger.FatalCtx(ctx, "Migration run failed", zap.Error(err))
	}

	logger.InfoCtx(ctx, "Migration finished",
		zap.Int64("migrated", report.Migrated),
		zap.Int64("skipped", report.Skipped),
		zap.Int64("failed", report.Failed),
	)

	if report.Failed > 0 {
		os.Exit(1)
	}
}
