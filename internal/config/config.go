package config

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	HubSoft    HubSoftConfig    `yaml:"hubsoft" mapstructure:"hubsoft"`
	Ledgers    LedgersConfig    `yaml:"ledgers" mapstructure:"ledgers"`
	Commission CommissionConfig `yaml:"commission" mapstructure:"commission"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Export     ExportConfig     `yaml:"export" mapstructure:"export"`
	Watch      WatchConfig      `yaml:"watch" mapstructure:"watch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures where overrides and run history are kept.
// Driver is "sqlite" or "postgres".
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// HubSoftConfig holds the ticketing API settings shared by all accounts.
type HubSoftConfig struct {
	ItemsPerPage int                       `yaml:"items_per_page" mapstructure:"items_per_page"`
	MaxPages     int                       `yaml:"max_pages" mapstructure:"max_pages"`
	RatePerSec   float64                   `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Accounts     map[string]HubSoftAccount `yaml:"accounts" mapstructure:"accounts"`
}

// HubSoftAccount holds OAuth credentials for one provider account.
type HubSoftAccount struct {
	APIBase      string `yaml:"api_base" mapstructure:"api_base"`
	TokenURL     string `yaml:"token_url" mapstructure:"token_url"`
	ClientID     string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string `yaml:"client_secret" mapstructure:"client_secret"`
	User         string `yaml:"user" mapstructure:"user"`
	Password     string `yaml:"password" mapstructure:"password"`
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// LedgersConfig points at the ledger schema file.
type LedgersConfig struct {
	Config string `yaml:"config" mapstructure:"config"`
}

// CommissionConfig points at a rate table. Empty uses the embedded one.
type CommissionConfig struct {
	Rates string `yaml:"rates" mapstructure:"rates"`
}

// RetryConfig bounds retries for ledger reads and API pages.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// ExportConfig sets the default report format and directory.
type ExportConfig struct {
	Format string `yaml:"format" mapstructure:"format"`
	Dir    string `yaml:"dir" mapstructure:"dir"`
}

// WatchConfig configures ledger file watching.
type WatchConfig struct {
	DebounceMs int `yaml:"debounce_ms" mapstructure:"debounce_ms"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Account returns the credentials for the named account.
func (c *Config) Account(name string) (HubSoftAccount, error) {
	acct, ok := c.HubSoft.Accounts[strings.ToLower(name)]
	if !ok {
		return HubSoftAccount{}, eris.Errorf("config: unknown hubsoft account %q", name)
	}
	return acct, nil
}

// Validate checks the settings a command mode depends on and reports every
// problem at once. Modes: "reconcile", "fetch", "serve", "store".
func (c *Config) Validate(mode string) error {
	var errs []string
	need := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, msg)
		}
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	need(c.Store.DatabaseURL != "", "store.database_url is required")

	switch mode {
	case "reconcile":
		need(c.Ledgers.Config != "", "ledgers.config is required")
		switch c.Export.Format {
		case "csv", "xlsx", "json":
		default:
			errs = append(errs, "export.format must be csv, xlsx or json")
		}
	case "fetch":
		need(len(c.HubSoft.Accounts) > 0, "hubsoft.accounts is required")
		for name, a := range c.HubSoft.Accounts {
			need(a.APIBase != "", "hubsoft.accounts."+name+".api_base is required")
			need(a.ClientID != "", "hubsoft.accounts."+name+".client_id is required")
		}
	case "serve":
		need(c.Server.Port > 0 && c.Server.Port < 65536, "server.port must be between 1 and 65535")
		need(c.Ledgers.Config != "", "ledgers.config is required")
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PAYOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "payout.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("hubsoft.items_per_page", 100)
	v.SetDefault("hubsoft.max_pages", 200)
	v.SetDefault("hubsoft.rate_per_sec", 2.0)
	v.SetDefault("ledgers.config", "ledgers.yaml")
	v.SetDefault("commission.rates", "")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 15000)
	v.SetDefault("export.format", "xlsx")
	v.SetDefault("export.dir", ".")
	v.SetDefault("watch.debounce_ms", 2000)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
