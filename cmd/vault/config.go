package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	pg "github.com/code-payments/code-vault/pkg/database/postgres"
	"github.com/code-payments/code-vault/pkg/metrics"
	"github.com/code-payments/code-vault/pkg/solana/runtime"
	"github.com/code-payments/code-vault/pkg/solana/runtime/leveldb"
)

const (
	ledgerLevelDB  = "leveldb"
	ledgerPostgres = "postgres"
	ledgerMemory   = "memory"
	ledgerRPC      = "rpc"

	envPrefix = "VAULT_"
)

// Config is the CLI configuration, read from an optional config file and the
// environment, then overridden by global flags.
type Config struct {
	LogLevel string `mapstructure:"log_level"`

	AppName            string `mapstructure:"app_name"`
	NewRelicLicenseKey string `mapstructure:"new_relic_license_key"`

	// Ledger is one of leveldb, postgres, memory or rpc.
	Ledger      string `mapstructure:"ledger"`
	LedgerPath  string `mapstructure:"ledger_path"`
	RPCEndpoint string `mapstructure:"rpc_endpoint"`

	// Keypair is the default owner key file.
	Keypair string `mapstructure:"keypair"`

	LevelDB  leveldb.Options `mapstructure:"leveldb"`
	Postgres pg.Config       `mapstructure:"postgres"`
	Runtime  runtime.Config  `mapstructure:"runtime"`
}

func defaultConfig() *Config {
	dir := defaultDataDir()
	return &Config{
		LogLevel: "warn",
		AppName:  "code-vault",

		Ledger:     ledgerLevelDB,
		LedgerPath: filepath.Join(dir, "ledger"),
		Keypair:    filepath.Join(dir, "id.json"),

		Postgres: pg.Config{
			Host:   "localhost",
			Port:   5432,
			DbName: "vault",
		},
		Runtime: *runtime.DefaultConfig(),
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".code-vault"
	}
	return filepath.Join(home, ".code-vault")
}

var configKeys = []string{
	"log_level",
	"app_name",
	"ledger",
	"ledger_path",
	"rpc_endpoint",
	"keypair",

	"leveldb.cache_size",
	"leveldb.open_files_cache_capacity",
	"leveldb.account_cache_size",

	"postgres.user",
	"postgres.host",
	"postgres.password",
	"postgres.port",
	"postgres.db_name",
	"postgres.ssl_mode",
	"postgres.max_open_connections",
	"postgres.max_idle_connections",

	"runtime.lamports_per_signature",
	"runtime.lamports_per_byte_year",
	"runtime.exemption_threshold",
	"runtime.max_blockhash_age",
	"runtime.max_invoke_depth",
	"runtime.lock_stripes",
	"runtime.status_cache_capacity",
	"runtime.max_airdrop_lamports",
	"runtime.airdrops_per_second",
}

// loadConfig layers the config file at path, if it exists, and VAULT_*
// environment variables over the defaults.
func loadConfig(path string) (*Config, error) {
	v := viper.New()

	for _, key := range configKeys {
		_ = v.BindEnv(key, envPrefix+strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
	}
	_ = v.BindEnv("new_relic_license_key", "NEW_RELIC_LICENSE_KEY")

	// viper.ReadInConfig doesn't report a missing file that was set
	// explicitly, so only set it when it exists.
	if len(path) > 0 {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, errors.Wrap(err, "failed to load config")
			}
		} else if !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "failed to check if config exists")
		}
	}

	config := defaultConfig()
	if err := v.Unmarshal(config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	if err := config.Runtime.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid runtime config")
	}
	return config, nil
}

func configureLogger(config *Config, metricsProvider *newrelic.Application) {
	var formatter logrus.Formatter = &logrus.TextFormatter{}
	if metricsProvider != nil {
		formatter = metrics.NewLogFormatter(metricsProvider, &logrus.JSONFormatter{})
	}
	logrus.SetFormatter(formatter)

	level, err := logrus.ParseLevel(strings.ToLower(config.LogLevel))
	if err != nil {
		logrus.StandardLogger().WithField("log_level", config.LogLevel).Warn("unknown log level, ignoring")
	} else {
		logrus.SetLevel(level)
	}

	logrus.SetOutput(os.Stderr)
}
