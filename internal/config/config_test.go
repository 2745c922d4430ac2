package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapse-market/synapse-core/internal/domain"
)

func TestLoadIndexerServiceConfig(t *testing.T) {
	tests := []struct {
		name        string
		configFile  string
		expectError bool
		validate    func(*testing.T, *IndexerServiceConfig)
	}{
		{
			name: "valid config file",
			configFile: `
debug: true
sentry_dsn: "https://sentry.example.com"
storage:
  mode: ledger
database:
  data_dir: "/var/lib/synapse"
stellar:
  rpc_url: "https://soroban-testnet.stellar.org"
  contract_id: "CCKB6PLUKGWIGPMB4MQXGRFGIHO36LJZYXMBRCW2A4ULIGFBAPSKKBIS"
  network_passphrase: "Test SDF Network ; September 2015"
  submit_timeout: "45s"
ipfs:
  api_key: "test-key"
  api_secret: "test-secret"
indexer:
  poll_interval: "10s"
  backfill_window: 500
  page_limit: 50
gate:
  enabled: true
  quality_threshold: 70
server:
  host: "127.0.0.1"
  port: 9090
worker:
  pool_size: 20
  queue_size: 512
`,
			expectError: false,
			validate: func(t *testing.T, cfg *IndexerServiceConfig) {
				assert.True(t, cfg.Debug)
				assert.Equal(t, "https://sentry.example.com", cfg.SentryDSN)
				assert.Equal(t, domain.StorageModeLedger, cfg.Storage.Mode)
				assert.Equal(t, "/var/lib/synapse", cfg.Database.DataDir)
				assert.Equal(t, "CCKB6PLUKGWIGPMB4MQXGRFGIHO36LJZYXMBRCW2A4ULIGFBAPSKKBIS", cfg.Stellar.ContractID)
				assert.Equal(t, 45*time.Second, cfg.Stellar.SubmitTimeout)
				assert.Equal(t, "test-key", cfg.IPFS.APIKey)
				assert.Equal(t, 10*time.Second, cfg.Indexer.PollInterval)
				assert.Equal(t, uint64(500), cfg.Indexer.BackfillWindow)
				assert.Equal(t, 50, cfg.Indexer.PageLimit)
				assert.Equal(t, 70, cfg.Gate.QualityThreshold)
				assert.Equal(t, "127.0.0.1", cfg.Server.Host)
				assert.Equal(t, 9090, cfg.Server.Port)
				assert.Equal(t, 20, cfg.Worker.WorkerPoolSize)
				assert.Equal(t, 512, cfg.Worker.WorkerQueueSize)
			},
		},
		{
			name: "config with defaults",
			configFile: `
storage:
  mode: local
`,
			expectError: false,
			validate: func(t *testing.T, cfg *IndexerServiceConfig) {
				// Check defaults
				assert.Equal(t, domain.StorageModeLocal, cfg.Storage.Mode)
				assert.Equal(t, ".synapse", cfg.Database.DataDir)
				assert.Equal(t, 5*time.Second, cfg.Indexer.PollInterval)
				assert.Equal(t, uint64(1000), cfg.Indexer.BackfillWindow)
				assert.Equal(t, 100, cfg.Indexer.PageLimit)
				assert.True(t, cfg.Gate.Enabled)
				assert.Equal(t, 60, cfg.Gate.QualityThreshold)
				assert.Equal(t, 40, cfg.Gate.ReviewThreshold)
				assert.Equal(t, -5.0, cfg.Gate.SimilarityRankThreshold)
				assert.Equal(t, 70, cfg.Gate.SimilarityScoreThreshold)
				assert.Equal(t, 5, cfg.Gate.ShortlistLimit)
				assert.Equal(t, "0.0.0.0", cfg.Server.Host)
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 10, cfg.Server.ReadTimeout)
				assert.Equal(t, 120, cfg.Server.IdleTimeout)
			},
		},
		{
			name: "ledger mode without contract id",
			configFile: `
storage:
  mode: ledger
`,
			expectError: true,
			validate:    nil,
		},
		{
			name: "invalid storage mode",
			configFile: `
storage:
  mode: galactic
`,
			expectError: true,
			validate:    nil,
		},
		{
			name: "invalid yaml",
			configFile: `
				server:
				  port: invalid
			`,
			expectError: true,
			validate:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			var configFile string

			if tt.configFile != "" {
				configFile = filepath.Join(tmpDir, "config.yaml")
				err := os.WriteFile(configFile, []byte(tt.configFile), 0600)
				require.NoError(t, err)
			} else {
				configFile = filepath.Join(tmpDir, "nonexistent.yaml")
			}

			cfg, err := LoadIndexerServiceConfig(configFile, "")

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, cfg)
			} else {
				if tt.validate != nil {
					require.NoError(t, err)
					require.NotNil(t, cfg)
					tt.validate(t, cfg)
				}
			}
		})
	}
}

func TestLoadMigrateConfig(t *testing.T) {
	tests := []struct {
		name        string
		configFile  string
		expectError bool
		validate    func(*testing.T, *MigrateConfig)
	}{
		{
			name: "valid config file",
			configFile: `
stellar:
  contract_id: "CCKB6PLUKGWIGPMB4MQXGRFGIHO36LJZYXMBRCW2A4ULIGFBAPSKKBIS"
  secret_key: "SCZANGBA5YHTNYVVV4C3U252E2B6P6F5T3U6MM63WBSBZATAQI3EBTQ4"
ipfs:
  api_key: "test-key"
  api_secret: "test-secret"
worker:
  pool_size: 8
`,
			expectError: false,
			validate: func(t *testing.T, cfg *MigrateConfig) {
				assert.Equal(t, "CCKB6PLUKGWIGPMB4MQXGRFGIHO36LJZYXMBRCW2A4ULIGFBAPSKKBIS", cfg.Stellar.ContractID)
				assert.Equal(t, 8, cfg.Worker.WorkerPoolSize)
				// Defaults
				assert.Equal(t, ".synapse", cfg.Database.DataDir)
				assert.Equal(t, "https://soroban-testnet.stellar.org", cfg.Stellar.RPCURL)
				assert.Equal(t, domain.DEFAULT_IPFS_GATEWAY, cfg.IPFS.GatewayURL)
				assert.Equal(t, 64, cfg.Worker.WorkerQueueSize)
			},
		},
		{
			name: "missing contract id",
			configFile: `
stellar:
  secret_key: "SCZANGBA5YHTNYVVV4C3U252E2B6P6F5T3U6MM63WBSBZATAQI3EBTQ4"
`,
			expectError: true,
			validate:    nil,
		},
		{
			name: "missing secret key",
			configFile: `
stellar:
  contract_id: "CCKB6PLUKGWIGPMB4MQXGRFGIHO36LJZYXMBRCW2A4ULIGFBAPSKKBIS"
`,
			expectError: true,
			validate:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configFile := filepath.Join(tmpDir, "config.yaml")
			err := os.WriteFile(configFile, []byte(tt.configFile), 0600)
			require.NoError(t, err)

			cfg, err := LoadMigrateConfig(configFile, "")

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, cfg)
			} else {
				if tt.validate != nil {
					require.NoError(t, err)
					require.NotNil(t, cfg)
					tt.validate(t, cfg)
				}
			}
		})
	}
}

func TestDatabaseConfig_Paths(t *testing.T) {
	cfg := DatabaseConfig{DataDir: "/data/synapse"}
	assert.Equal(t, filepath.Join("/data/synapse", "synapse.db"), cfg.LocalDBPath())
	assert.Equal(t, filepath.Join("/data/synapse", "index.db"), cfg.MirrorDBPath())
}

func TestConfigWithEnvironmentVariables(t *testing.T) {
	tmpDir := t.TempDir()

	envDir := filepath.Join(tmpDir, "env")
	err := os.MkdirAll(envDir, 0750)
	require.NoError(t, err)

	// Note: Viper uses SYNAPSE_ prefix, so env vars need the prefix
	envFile := filepath.Join(envDir, ".env")
	envContent := `SYNAPSE_DEBUG=true
SYNAPSE_STORAGE_MODE=dual
SYNAPSE_DATABASE_DATA_DIR=/env/data
SYNAPSE_STELLAR_CONTRACT_ID=CENVCONTRACT
SYNAPSE_IPFS_API_KEY=env-key
`
	err = os.WriteFile(envFile, []byte(envContent), 0600)
	require.NoError(t, err)

	// Config file carries different values to verify env vars override
	configPath := filepath.Join(tmpDir, "config.yaml")
	configFile := `
debug: false
storage:
  mode: local
database:
  data_dir: /file/data
`
	err = os.WriteFile(configPath, []byte(configFile), 0600)
	require.NoError(t, err)

	cfg, err := LoadIndexerServiceConfig(configPath, envDir)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// The .env file is loaded via godotenv.Overload, which sets actual
	// environment variables; viper's AutomaticEnv picks them up
	assert.True(t, cfg.Debug)
	assert.Equal(t, domain.StorageModeDual, cfg.Storage.Mode)
	assert.Equal(t, "/env/data", cfg.Database.DataDir)
	assert.Equal(t, "CENVCONTRACT", cfg.Stellar.ContractID)
	assert.Equal(t, "env-key", cfg.IPFS.APIKey)
}
