package config

import (
	"errors"
	"io/fs"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/lead-miner/internal/provider"
	"github.com/sells-group/lead-miner/internal/resilience"
)

// EnvPrefix prefixes every environment override, e.g. LEADMINER_PROVIDER_PRIMARY_KEY.
const EnvPrefix = "LEADMINER"

// DefaultPath is where Set writes when no path is given.
const DefaultPath = "config.yaml"

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Provider   ProviderConfig   `yaml:"provider" mapstructure:"provider"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Mining     MiningConfig     `yaml:"mining" mapstructure:"mining"`
	Identity   IdentityConfig   `yaml:"identity" mapstructure:"identity"`
	Remote     RemoteConfig     `yaml:"remote" mapstructure:"remote"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig locates the two replicas. An empty RemoteURL runs local-only.
type StoreConfig struct {
	LocalPath string `yaml:"local_path" mapstructure:"local_path"`
	RemoteURL string `yaml:"remote_url" mapstructure:"remote_url"`
	MaxConns  int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns  int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ProviderConfig selects the search provider and holds its keys.
type ProviderConfig struct {
	Active       string `yaml:"active" mapstructure:"active"`
	PrimaryKey   string `yaml:"primary_key" mapstructure:"primary_key"`
	SecondaryKey string `yaml:"secondary_key" mapstructure:"secondary_key"`
}

// PerplexityConfig tunes the primary provider.
type PerplexityConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Model       string `yaml:"model" mapstructure:"model"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AnthropicConfig tunes the secondary provider.
type AnthropicConfig struct {
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// MiningConfig configures the mining loop.
type MiningConfig struct {
	PacingMs   int  `yaml:"pacing_ms" mapstructure:"pacing_ms"`
	DeepSearch bool `yaml:"deep_search" mapstructure:"deep_search"`
}

// IdentityConfig controls lead id derivation.
type IdentityConfig struct {
	IncludeNeighborhood bool `yaml:"include_neighborhood" mapstructure:"include_neighborhood"`
}

// RemoteConfig tunes replication to the remote replica.
type RemoteConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
	OpTimeoutSecs    int `yaml:"op_timeout_secs" mapstructure:"op_timeout_secs"`
}

// NotionConfig holds the Notion token and the lead database.
type NotionConfig struct {
	Token     string  `yaml:"token" mapstructure:"token"`
	LeadDB    string  `yaml:"lead_db" mapstructure:"lead_db"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// SalesforceConfig holds Salesforce auth settings. AccessToken skips the
// JWT flow.
type SalesforceConfig struct {
	ClientID    string  `yaml:"client_id" mapstructure:"client_id"`
	Username    string  `yaml:"username" mapstructure:"username"`
	KeyPath     string  `yaml:"key_path" mapstructure:"key_path"`
	LoginURL    string  `yaml:"login_url" mapstructure:"login_url"`
	AccessToken string  `yaml:"access_token" mapstructure:"access_token"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.local_path", "leads.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("provider.active", string(provider.Primary))
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar")
	v.SetDefault("perplexity.timeout_secs", 120)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("mining.pacing_ms", 4000)
	v.SetDefault("mining.deep_search", false)
	v.SetDefault("identity.include_neighborhood", false)
	v.SetDefault("remote.max_attempts", 3)
	v.SetDefault("remote.initial_backoff_ms", 500)
	v.SetDefault("remote.max_backoff_ms", 5000)
	v.SetDefault("remote.failure_threshold", 5)
	v.SetDefault("remote.reset_timeout_secs", 30)
	v.SetDefault("remote.op_timeout_secs", 30)
	v.SetDefault("notion.rate_limit", 3)
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.rate_limit", 5)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads .env, config.yaml in the working directory, and LEADMINER_*
// environment variables, in increasing precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: read .env")
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated values.
func (c *Config) Validate() error {
	if _, err := parseProvider(c.Provider.Active); err != nil {
		return err
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return eris.Errorf("config: log.format must be json or console, got %q", c.Log.Format)
	}
	return nil
}

// parseProvider accepts the role names and the service names.
func parseProvider(s string) (provider.Name, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "primary", "perplexity":
		return provider.Primary, nil
	case "secondary", "anthropic":
		return provider.Secondary, nil
	}
	return "", eris.Errorf("config: unknown provider %q", s)
}

// ProviderSettings builds the per-call provider settings.
func (c *Config) ProviderSettings() provider.Settings {
	name, err := parseProvider(c.Provider.Active)
	if err != nil {
		name = provider.Primary
	}
	return provider.Settings{
		Provider:     name,
		PrimaryKey:   c.Provider.PrimaryKey,
		SecondaryKey: c.Provider.SecondaryKey,
	}
}

// Pacing is the delay between neighborhood searches.
func (c *Config) Pacing() time.Duration {
	return time.Duration(c.Mining.PacingMs) * time.Millisecond
}

// RetryConfig is the retry policy for remote writes.
func (c *Config) RetryConfig() resilience.RetryConfig {
	return resilience.FromRetryConfig(c.Remote.MaxAttempts, c.Remote.InitialBackoffMs, c.Remote.MaxBackoffMs)
}

// CircuitConfig is the breaker policy for remote writes.
func (c *Config) CircuitConfig() resilience.CircuitBreakerConfig {
	return resilience.FromCircuitConfig(c.Remote.FailureThreshold, c.Remote.ResetTimeoutSecs)
}

// OpTimeout bounds a single remote write.
func (c *Config) OpTimeout() time.Duration {
	return time.Duration(c.Remote.OpTimeoutSecs) * time.Second
}

// settable lists the keys Set accepts.
var settable = map[string]bool{
	"provider.active":               true,
	"provider.primary_key":          true,
	"provider.secondary_key":        true,
	"store.local_path":              true,
	"store.remote_url":              true,
	"perplexity.model":              true,
	"anthropic.model":               true,
	"mining.pacing_ms":              true,
	"mining.deep_search":            true,
	"identity.include_neighborhood": true,
	"notion.token":                  true,
	"notion.lead_db":                true,
	"salesforce.client_id":          true,
	"salesforce.username":           true,
	"salesforce.key_path":           true,
	"salesforce.login_url":          true,
	"salesforce.access_token":       true,
	"server.port":                   true,
	"log.level":                     true,
	"log.format":                    true,
}

// SettableKeys lists the keys accepted by Set, sorted.
func SettableKeys() []string {
	return slices.Sorted(maps.Keys(settable))
}

// Set persists one key into the YAML file at path, keeping the other keys.
// The file is created when missing.
func Set(path, key, value string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	if !settable[key] {
		return eris.Errorf("config: %q cannot be set", key)
	}
	if key == "provider.active" {
		name, err := parseProvider(value)
		if err != nil {
			return err
		}
		value = string(name)
	}
	if path == "" {
		path = DefaultPath
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return eris.Wrapf(err, "config: read %s", path)
		}
	}
	v.Set(key, value)
	if err := v.WriteConfigAs(path); err != nil {
		return eris.Wrapf(err, "config: write %s", path)
	}
	return nil
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
