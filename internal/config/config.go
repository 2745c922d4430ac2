package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/synapse-market/synapse-core/internal/domain"
)

// BaseConfig holds base configuration
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// StorageConfig selects the storage provider backing the knowledge base
type StorageConfig struct {
	Mode domain.StorageMode `mapstructure:"mode"`
}

// DatabaseConfig holds embedded database configuration
type DatabaseConfig struct {
	// DataDir is the directory holding the sqlite database files
	DataDir string `mapstructure:"data_dir"`
}

// StellarConfig holds Soroban RPC and contract configuration
type StellarConfig struct {
	RPCURL            string        `mapstructure:"rpc_url"`
	ContractID        string        `mapstructure:"contract_id"`
	NetworkPassphrase string        `mapstructure:"network_passphrase"`
	SecretKey         string        `mapstructure:"secret_key"`
	SubmitTimeout     time.Duration `mapstructure:"submit_timeout"`
}

// IPFSConfig holds pinning service configuration
type IPFSConfig struct {
	APIURL     string `mapstructure:"api_url"`
	APIKey     string `mapstructure:"api_key"`
	APISecret  string `mapstructure:"api_secret"`
	GatewayURL string `mapstructure:"gateway_url"`
}

// IndexerConfig holds event indexer configuration
type IndexerConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	BackfillWindow uint64        `mapstructure:"backfill_window"`
	PageLimit      int           `mapstructure:"page_limit"`
}

// GateConfig holds submission gate configuration
type GateConfig struct {
	Enabled                  bool          `mapstructure:"enabled"`
	JudgeCommand             string        `mapstructure:"judge_command"`
	JudgeTimeout             time.Duration `mapstructure:"judge_timeout"`
	QualityThreshold         int           `mapstructure:"quality_threshold"`
	ReviewThreshold          int           `mapstructure:"review_threshold"`
	SimilarityEnabled        bool          `mapstructure:"similarity_enabled"`
	SimilarityRankThreshold  float64       `mapstructure:"similarity_rank_threshold"`
	SimilarityScoreThreshold int           `mapstructure:"similarity_score_threshold"`
	ShortlistLimit           int           `mapstructure:"shortlist_limit"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // in seconds
	IdleTimeout  int    `mapstructure:"idle_timeout"`  // in seconds
}

// WorkerConfig holds worker pool configuration
type WorkerConfig struct {
	WorkerPoolSize  int `mapstructure:"pool_size"`
	WorkerQueueSize int `mapstructure:"queue_size"`
}

// IndexerServiceConfig holds configuration for the indexer service
type IndexerServiceConfig struct {
	BaseConfig `mapstructure:",squash"`
	Storage    StorageConfig  `mapstructure:"storage"`
	Database   DatabaseConfig `mapstructure:"database"`
	Stellar    StellarConfig  `mapstructure:"stellar"`
	IPFS       IPFSConfig     `mapstructure:"ipfs"`
	Indexer    IndexerConfig  `mapstructure:"indexer"`
	Gate       GateConfig     `mapstructure:"gate"`
	Server     ServerConfig   `mapstructure:"server"`
	Worker     WorkerConfig   `mapstructure:"worker"`
}

// MigrateConfig holds configuration for the migrate program
type MigrateConfig struct {
	BaseConfig `mapstructure:",squash"`
	Database   DatabaseConfig `mapstructure:"database"`
	Stellar    StellarConfig  `mapstructure:"stellar"`
	IPFS       IPFSConfig     `mapstructure:"ipfs"`
	Worker     WorkerConfig   `mapstructure:"worker"`
}

// LoadIndexerServiceConfig loads configuration for the indexer service
func LoadIndexerServiceConfig(configFile string, envPath string) (*IndexerServiceConfig, error) {
	v := configureViper("indexer", configFile, envPath)

	// Set defaults
	v.SetDefault("debug", false)
	v.SetDefault("storage.mode", "local")
	v.SetDefault("database.data_dir", ".synapse")
	v.SetDefault("stellar.rpc_url", "https://soroban-testnet.stellar.org")
	v.SetDefault("stellar.network_passphrase", "Test SDF Network ; September 2015")
	v.SetDefault("stellar.submit_timeout", "30s")
	v.SetDefault("ipfs.api_url", "https://api.pinata.cloud")
	v.SetDefault("ipfs.gateway_url", domain.DEFAULT_IPFS_GATEWAY)
	v.SetDefault("indexer.poll_interval", "5s")
	v.SetDefault("indexer.backfill_window", 1000)
	v.SetDefault("indexer.page_limit", 100)
	v.SetDefault("gate.enabled", true)
	v.SetDefault("gate.judge_command", "claude")
	v.SetDefault("gate.judge_timeout", "60s")
	v.SetDefault("gate.quality_threshold", 60)
	v.SetDefault("gate.review_threshold", 40)
	v.SetDefault("gate.similarity_enabled", true)
	v.SetDefault("gate.similarity_rank_threshold", -5.0)
	v.SetDefault("gate.similarity_score_threshold", 70)
	v.SetDefault("gate.shortlist_limit", 5)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.idle_timeout", 120)
	v.SetDefault("worker.pool_size", 10)
	v.SetDefault("worker.queue_size", 256)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, use environment variables
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg IndexerServiceConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if !domain.IsValidStorageMode(cfg.Storage.Mode) {
		return nil, fmt.Errorf("invalid storage mode: %s", cfg.Storage.Mode)
	}
	if cfg.Storage.Mode != domain.StorageModeLocal && cfg.Stellar.ContractID == "" {
		return nil, errors.New("stellar.contract_id is required outside local mode")
	}

	return &cfg, nil
}

// LoadMigrateConfig loads configuration for the migrate program
func LoadMigrateConfig(configFile string, envPath string) (*MigrateConfig, error) {
	v := configureViper("migrate", configFile, envPath)

	// Set defaults
	v.SetDefault("database.data_dir", ".synapse")
	v.SetDefault("stellar.rpc_url", "https://soroban-testnet.stellar.org")
	v.SetDefault("stellar.network_passphrase", "Test SDF Network ; September 2015")
	v.SetDefault("stellar.submit_timeout", "30s")
	v.SetDefault("ipfs.api_url", "https://api.pinata.cloud")
	v.SetDefault("ipfs.gateway_url", domain.DEFAULT_IPFS_GATEWAY)
	v.SetDefault("worker.pool_size", 4)
	v.SetDefault("worker.queue_size", 64)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, use environment variables
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg MigrateConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate required fields
	if cfg.Stellar.ContractID == "" {
		return nil, errors.New("stellar.contract_id is required")
	}
	if cfg.Stellar.SecretKey == "" {
		return nil, errors.New("stellar.secret_key is required")
	}

	return &cfg, nil
}

// configureViper returns a viper instance with the config file and environment variables set
func configureViper(service string, configFile string, envPath string) *viper.Viper {
	v := viper.New()

	// Load environment variables
	loadEnv(envPath, service)

	// Set config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		// Search for config.yaml in multiple locations:
		// 1. Current directory
		v.AddConfigPath(".")
		// 2. Service-specific directory (e.g., cmd/indexer/, cmd/migrate/)
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		// 3. Config directory
		v.AddConfigPath("config/")
	}

	// Set environment variables
	v.SetEnvPrefix("SYNAPSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind all environment variables
	bindAllEnvVars(v)
	return v
}

// bindAllEnvVars explicitly binds all possible environment variables
// This is required for viper to map env vars to config struct fields when no config file exists
func bindAllEnvVars(v *viper.Viper) {
	commonKeys := []string{
		"debug",
		"sentry_dsn",
		// Storage
		"storage.mode",
		// Database
		"database.data_dir",
		// Stellar
		"stellar.rpc_url",
		"stellar.contract_id",
		"stellar.network_passphrase",
		"stellar.secret_key",
		"stellar.submit_timeout",
		// IPFS
		"ipfs.api_url",
		"ipfs.api_key",
		"ipfs.api_secret",
		"ipfs.gateway_url",
		// Indexer
		"indexer.poll_interval",
		"indexer.backfill_window",
		"indexer.page_limit",
		// Gate
		"gate.enabled",
		"gate.judge_command",
		"gate.judge_timeout",
		"gate.quality_threshold",
		"gate.review_threshold",
		"gate.similarity_enabled",
		"gate.similarity_rank_threshold",
		"gate.similarity_score_threshold",
		"gate.shortlist_limit",
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		"server.idle_timeout",
		// Worker
		"worker.pool_size",
		"worker.queue_size",
	}

	for _, key := range commonKeys {
		_ = v.BindEnv(key)
	}
}

// loadEnv loads environment variables from the config directory
func loadEnv(envPath string, service string) {
	// Always try shared base first, then local, then optional per-service local.
	envFiles := []string{".env", ".env.local"}
	if service != "" {
		envFiles = append(envFiles, ".env."+service+".local")
	}

	// Default to config directory
	if envPath == "" {
		envPath = "config/"
	}

	for _, envFile := range envFiles {
		candidate := filepath.Join(envPath, envFile)
		_ = godotenv.Overload(candidate) // Overload lets later files override earlier ones
	}
}

// ChdirRepoRoot changes the current working directory to the repository root
func ChdirRepoRoot() {
	cwd, _ := os.Getwd()
	for range 5 {
		if _, err := os.Stat(filepath.Join(cwd, "config")); err == nil {
			_ = os.Chdir(cwd)
			return
		}
		cwd = filepath.Dir(cwd)
	}
}

// LocalDBPath returns the path of the local knowledge base database file
func (c *DatabaseConfig) LocalDBPath() string {
	return filepath.Join(c.DataDir, "synapse.db")
}

// MirrorDBPath returns the path of the ledger mirror database file
func (c *DatabaseConfig) MirrorDBPath() string {
	return filepath.Join(c.DataDir, "index.db")
}
