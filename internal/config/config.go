// File: internal/config/config.go
package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment override, e.g. DIALTONE_ENGINE_CONCURRENT_REQUESTS.
const EnvPrefix = "DIALTONE"

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Engine() EngineConfig
	Fetch() FetchConfig
	Network() NetworkConfig
	Phone() PhoneConfig
	Sources() SourcesConfig
	Risk() RiskConfig
	Patterns() PatternsConfig
	LLM() LLMConfig
	Metrics() MetricsConfig
	Tracing() TracingConfig
	Scan() ScanConfig
	SetScanConfig(sc ScanConfig)

	// Engine Setters
	SetEngineConcurrentRequests(int)
	SetEngineScanTimeout(time.Duration)

	// LLM Setters
	SetLLMAPIKey(string)
}

// Config holds the entire application configuration. Sections are exported
// for viper's decoder and read through the Interface getters.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	EngineCfg   EngineConfig   `mapstructure:"engine" yaml:"engine"`
	FetchCfg    FetchConfig    `mapstructure:"fetch" yaml:"fetch"`
	NetworkCfg  NetworkConfig  `mapstructure:"network" yaml:"network"`
	PhoneCfg    PhoneConfig    `mapstructure:"phone" yaml:"phone"`
	SourcesCfg  SourcesConfig  `mapstructure:"sources" yaml:"sources"`
	RiskCfg     RiskConfig     `mapstructure:"risk" yaml:"risk"`
	PatternsCfg PatternsConfig `mapstructure:"patterns" yaml:"patterns"`
	LLMCfg      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	MetricsCfg  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	TracingCfg  TracingConfig  `mapstructure:"tracing" yaml:"tracing"`
	// ScanCfg gets its marching orders from CLI flags, not the config file.
	ScanCfg ScanConfig `mapstructure:"-" yaml:"-"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Engine() EngineConfig     { return c.EngineCfg }
func (c *Config) Fetch() FetchConfig       { return c.FetchCfg }
func (c *Config) Network() NetworkConfig   { return c.NetworkCfg }
func (c *Config) Phone() PhoneConfig       { return c.PhoneCfg }
func (c *Config) Sources() SourcesConfig   { return c.SourcesCfg }
func (c *Config) Risk() RiskConfig         { return c.RiskCfg }
func (c *Config) Patterns() PatternsConfig { return c.PatternsCfg }
func (c *Config) LLM() LLMConfig           { return c.LLMCfg }
func (c *Config) Metrics() MetricsConfig   { return c.MetricsCfg }
func (c *Config) Tracing() TracingConfig   { return c.TracingCfg }
func (c *Config) Scan() ScanConfig         { return c.ScanCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetScanConfig(sc ScanConfig) { c.ScanCfg = sc }

func (c *Config) SetEngineConcurrentRequests(n int)    { c.EngineCfg.ConcurrentRequests = n }
func (c *Config) SetEngineScanTimeout(d time.Duration) { c.EngineCfg.ScanTimeout = d }
func (c *Config) SetLLMAPIKey(key string)              { c.LLMCfg.APIKey = key }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// EngineConfig configures source dispatch.
type EngineConfig struct {
	ConcurrentRequests int           `mapstructure:"concurrent_requests" yaml:"concurrent_requests"`
	ScanTimeout        time.Duration `mapstructure:"scan_timeout" yaml:"scan_timeout"`
}

// FetchConfig is the per-source retry, timeout and cache policy.
type FetchConfig struct {
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries" yaml:"max_retries"`
	BackoffInitial    time.Duration `mapstructure:"backoff_initial" yaml:"backoff_initial"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier" yaml:"backoff_multiplier"`
	BackoffMax        time.Duration `mapstructure:"backoff_max" yaml:"backoff_max"`
	CacheEnabled      bool          `mapstructure:"cache_enabled" yaml:"cache_enabled"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

// NetworkConfig tunes the outbound HTTP client.
type NetworkConfig struct {
	UserAgent           string            `mapstructure:"user_agent" yaml:"user_agent"`
	Headers             map[string]string `mapstructure:"headers" yaml:"headers"`
	IgnoreTLSErrors     bool              `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	EnableHTTP2         bool              `mapstructure:"enable_http2" yaml:"enable_http2"`
	MaxIdleConnsPerHost int               `mapstructure:"max_idle_conns_per_host" yaml:"max_idle_conns_per_host"`
	MaxResponseBytes    int64             `mapstructure:"max_response_bytes" yaml:"max_response_bytes"`
}

// PhoneConfig drives normalization of numbers without a country code.
type PhoneConfig struct {
	DefaultRegion string `mapstructure:"default_region" yaml:"default_region"`
	// DefaultCountryCode overrides the code derived from DefaultRegion when non-zero.
	DefaultCountryCode int    `mapstructure:"default_country_code" yaml:"default_country_code"`
	Language           string `mapstructure:"language" yaml:"language"`
	// StrictValidation requires numbers to be assigned in the numbering plan.
	// Off, any number of a possible length for its region is accepted.
	StrictValidation bool `mapstructure:"strict_validation" yaml:"strict_validation"`
}

// SourcesConfig customizes the source catalog.
type SourcesConfig struct {
	CatalogFile string             `mapstructure:"catalog_file" yaml:"catalog_file"`
	Endpoints   map[string]string  `mapstructure:"endpoints" yaml:"endpoints"`
	Trust       map[string]float64 `mapstructure:"trust" yaml:"trust"`
	Disabled    []string           `mapstructure:"disabled" yaml:"disabled"`
}

// RiskConfig holds factor weights and the carrier watch list.
type RiskConfig struct {
	Weights          map[string]float64 `mapstructure:"weights" yaml:"weights"`
	HighRiskCarriers []string           `mapstructure:"high_risk_carriers" yaml:"high_risk_carriers"`
}

// DimensionConfig parameterizes density clustering for one dimension.
type DimensionConfig struct {
	Eps    float64 `mapstructure:"eps" yaml:"eps"`
	MinPts int     `mapstructure:"min_pts" yaml:"min_pts"`
}

// PatternsConfig holds the per-dimension clustering parameters.
type PatternsConfig struct {
	Geographic DimensionConfig `mapstructure:"geographic" yaml:"geographic"`
	Temporal   DimensionConfig `mapstructure:"temporal" yaml:"temporal"`
	Behavioral DimensionConfig `mapstructure:"behavioral" yaml:"behavioral"`
}

// LLMConfig configures the narrative model routing.
type LLMConfig struct {
	APIKey               string            `mapstructure:"api_key" yaml:"-"`
	Endpoint             string            `mapstructure:"endpoint" yaml:"endpoint"`
	DefaultFastModel     string            `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string            `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	APITimeout           time.Duration     `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature          float32           `mapstructure:"temperature" yaml:"temperature"`
	TopP                 float32           `mapstructure:"top_p" yaml:"top_p"`
	TopK                 int               `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens            int               `mapstructure:"max_tokens" yaml:"max_tokens"`
	SafetyFilters        map[string]string `mapstructure:"safety_filters" yaml:"safety_filters"`
}

// MetricsConfig controls the Prometheus registry.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
	// TextfilePath, when set, receives the registry in text exposition format after the run.
	TextfilePath string `mapstructure:"textfile_path" yaml:"textfile_path"`
}

// TracingConfig controls the OpenTelemetry trace pipeline. Spans are written
// as JSON lines to Output, or to stderr when Output is empty.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	Output      string  `mapstructure:"output" yaml:"output"`
	ServiceName string  `mapstructure:"service_name" yaml:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio" yaml:"sample_ratio"`
}

// ScanConfig holds settings populated from CLI flags for a specific scan job.
type ScanConfig struct {
	Subjects []string
	Tier     string
	Output   string
	Format   string
	// Narrate requests an LLM narrative when an API key is configured.
	Narrate bool
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "dialtone")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Engine --
	v.SetDefault("engine.concurrent_requests", 5)
	v.SetDefault("engine.scan_timeout", "60s")

	// -- Fetch --
	v.SetDefault("fetch.timeout", "10s")
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.backoff_initial", "250ms")
	v.SetDefault("fetch.backoff_multiplier", 2.0)
	v.SetDefault("fetch.backoff_max", "5s")
	v.SetDefault("fetch.cache_enabled", true)
	v.SetDefault("fetch.cache_ttl", "15m")

	// -- Network --
	v.SetDefault("network.user_agent", "dialtone/"+defaultVersionTag)
	v.SetDefault("network.ignore_tls_errors", false)
	v.SetDefault("network.enable_http2", true)
	v.SetDefault("network.max_idle_conns_per_host", 10)
	v.SetDefault("network.max_response_bytes", 4<<20)

	// -- Phone --
	v.SetDefault("phone.default_region", "US")
	v.SetDefault("phone.default_country_code", 0)
	v.SetDefault("phone.language", "en")
	v.SetDefault("phone.strict_validation", false)

	// -- Risk --
	v.SetDefault("risk.high_risk_carriers", []string{"bandwidth", "twilio", "textnow", "google voice", "onvoy", "pinger"})

	// -- Patterns --
	v.SetDefault("patterns.geographic.eps", 25.0)
	v.SetDefault("patterns.geographic.min_pts", 1)
	v.SetDefault("patterns.temporal.eps", 1.5)
	v.SetDefault("patterns.temporal.min_pts", 1)
	v.SetDefault("patterns.behavioral.eps", 1.0)
	v.SetDefault("patterns.behavioral.min_pts", 1)

	// -- LLM --
	v.SetDefault("llm.default_fast_model", "gemini-2.5-flash")
	v.SetDefault("llm.default_powerful_model", "gemini-2.5-pro")
	v.SetDefault("llm.api_timeout", "90s")
	v.SetDefault("llm.temperature", 0.4)
	v.SetDefault("llm.max_tokens", 2048)

	// -- Metrics --
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "dialtone")

	// -- Tracing --
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.output", "")
	v.SetDefault("tracing.service_name", "dialtone")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

const defaultVersionTag = "dev"

// NewViper returns a viper instance with defaults, env binding and the
// optional config file applied. A .env file next to the working directory
// is loaded first so secrets can live outside config.yaml.
func NewViper(cfgFile string) (*viper.Viper, error) {
	// A missing .env is the common case.
	_ = godotenv.Load()

	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		expanded, err := homedir.Expand(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("failed to expand config path %q: %w", cfgFile, err)
		}
		v.SetConfigFile(expanded)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home + "/.dialtone")
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}
	return v, nil
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("llm.api_key", EnvPrefix+"_LLM_API_KEY", "GEMINI_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load the key if Unmarshal didn't pick it up
	if cfg.LLMCfg.APIKey == "" {
		cfg.LLMCfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	if cfg.SourcesCfg.CatalogFile != "" {
		expanded, err := homedir.Expand(cfg.SourcesCfg.CatalogFile)
		if err != nil {
			return nil, fmt.Errorf("failed to expand sources.catalog_file: %w", err)
		}
		cfg.SourcesCfg.CatalogFile = expanded
	}
	if cfg.TracingCfg.Output != "" {
		expanded, err := homedir.Expand(cfg.TracingCfg.Output)
		if err != nil {
			return nil, fmt.Errorf("failed to expand tracing.output: %w", err)
		}
		cfg.TracingCfg.Output = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.EngineCfg.ConcurrentRequests <= 0 {
		return fmt.Errorf("engine.concurrent_requests must be a positive integer")
	}
	if c.EngineCfg.ScanTimeout <= 0 {
		return fmt.Errorf("engine.scan_timeout must be a positive duration")
	}
	if err := c.FetchCfg.Validate(); err != nil {
		return fmt.Errorf("fetch configuration invalid: %w", err)
	}
	if c.PhoneCfg.DefaultRegion == "" && c.PhoneCfg.DefaultCountryCode <= 0 {
		return fmt.Errorf("phone.default_region or phone.default_country_code is required")
	}
	for id, trust := range c.SourcesCfg.Trust {
		if math.IsNaN(trust) || trust < 0 || trust > 1 {
			return fmt.Errorf("sources.trust.%s must be between 0.0 and 1.0", id)
		}
	}
	for name, w := range c.RiskCfg.Weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("risk.weights.%s must be a finite, non-negative number", name)
		}
	}
	if r := c.TracingCfg.SampleRatio; math.IsNaN(r) || r < 0 || r > 1 {
		return fmt.Errorf("tracing.sample_ratio must be between 0.0 and 1.0")
	}
	if err := c.PatternsCfg.Validate(); err != nil {
		return fmt.Errorf("patterns configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the FetchConfig settings.
func (f *FetchConfig) Validate() error {
	if f.Timeout <= 0 {
		return fmt.Errorf("timeout must be a positive duration")
	}
	if f.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if f.BackoffInitial <= 0 || f.BackoffMax < f.BackoffInitial {
		return fmt.Errorf("backoff_initial must be positive and not exceed backoff_max")
	}
	if f.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff_multiplier must be at least 1.0")
	}
	if f.CacheEnabled && f.CacheTTL <= 0 {
		return fmt.Errorf("cache_ttl must be a positive duration when the cache is enabled")
	}
	return nil
}

// Validate checks the PatternsConfig settings.
func (p *PatternsConfig) Validate() error {
	dims := map[string]DimensionConfig{
		"geographic": p.Geographic,
		"temporal":   p.Temporal,
		"behavioral": p.Behavioral,
	}
	for name, d := range dims {
		if d.Eps <= 0 {
			return fmt.Errorf("%s.eps must be positive", name)
		}
		if d.MinPts < 1 {
			return fmt.Errorf("%s.min_pts must be at least 1", name)
		}
	}
	return nil
}
