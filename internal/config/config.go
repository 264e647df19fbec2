// Package config handles configuration loading for agrodash.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Sources   SourcesConfig   `mapstructure:"sources"   yaml:"sources"`
	Cache     CacheConfig     `mapstructure:"cache"     yaml:"cache"`
	Redis     RedisConfig     `mapstructure:"redis"     yaml:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"  yaml:"database"`
	LLM       LLMConfig       `mapstructure:"llm"       yaml:"llm"`
	Report    ReportConfig    `mapstructure:"report"    yaml:"report"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	API       APIConfig       `mapstructure:"api"       yaml:"api"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
}

// SourcesConfig holds upstream endpoints and per-call limits.
type SourcesConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"           yaml:"timeout"`
	UserAgent       string        `mapstructure:"user_agent"        yaml:"user_agent"`
	BCBBaseURL      string        `mapstructure:"bcb_base_url"      yaml:"bcb_base_url"`
	BCBSeries       int           `mapstructure:"bcb_series"        yaml:"bcb_series"` // 1 = USD/BRL PTAX venda
	GeocodingURL    string        `mapstructure:"geocoding_url"     yaml:"geocoding_url"`
	ForecastURL     string        `mapstructure:"forecast_url"      yaml:"forecast_url"`
	YahooBaseURL    string        `mapstructure:"yahoo_base_url"    yaml:"yahoo_base_url"`
	ExchangeBaseURL string        `mapstructure:"exchange_base_url" yaml:"exchange_base_url"`
	CepeaBaseURL    string        `mapstructure:"cepea_base_url"    yaml:"cepea_base_url"`
	Sentiment       bool          `mapstructure:"sentiment"         yaml:"sentiment"`
	Feeds           []FeedConfig  `mapstructure:"feeds"             yaml:"feeds"`
}

// FeedConfig is a single RSS news feed.
type FeedConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
	URL  string `mapstructure:"url"  yaml:"url"`
}

// CacheConfig selects the cache backend and per-query TTLs.
type CacheConfig struct {
	Backend       string        `mapstructure:"backend"        yaml:"backend"` // "memory" or "redis"
	SweepInterval  time.Duration `mapstructure:"sweep_interval"  yaml:"sweep_interval"`
	ComputeTimeout time.Duration `mapstructure:"compute_timeout" yaml:"compute_timeout"` // bounds a shared cache fill
	TTL            TTLConfig     `mapstructure:"ttl"             yaml:"ttl"`
}

// TTLConfig holds the revalidation window of each aggregated query.
type TTLConfig struct {
	News          time.Duration `mapstructure:"news"           yaml:"news"`
	Quotes        time.Duration `mapstructure:"quotes"         yaml:"quotes"`
	QuoteHistory  time.Duration `mapstructure:"quote_history"  yaml:"quote_history"`
	Weather       time.Duration `mapstructure:"weather"        yaml:"weather"`
	CitySearch    time.Duration `mapstructure:"city_search"    yaml:"city_search"`
	International time.Duration `mapstructure:"international"  yaml:"international"`
	ReferenceRate time.Duration `mapstructure:"reference_rate" yaml:"reference_rate"`
}

// RedisConfig holds the shared cache/quota/lock backend connection.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"     yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db"       yaml:"db"`
	Prefix   string `mapstructure:"prefix"   yaml:"prefix"`
}

// DatabaseConfig holds the quote repository connection. An empty DSN
// selects the in-memory repository.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Primary      string        `mapstructure:"primary"       yaml:"primary"` // "openai", "anthropic", "gemini"
	OpenAIKey    string        `mapstructure:"openai_key"    yaml:"openai_key"`
	AnthropicKey string        `mapstructure:"anthropic_key" yaml:"anthropic_key"`
	GeminiKey    string        `mapstructure:"gemini_key"    yaml:"gemini_key"`
	FastModel    string        `mapstructure:"fast_model"    yaml:"fast_model"`
	QualityModel string        `mapstructure:"quality_model" yaml:"quality_model"`
	Temperature  float64       `mapstructure:"temperature"   yaml:"temperature"`
	MaxTokens    int           `mapstructure:"max_tokens"    yaml:"max_tokens"`
	Timeout      time.Duration `mapstructure:"timeout"       yaml:"timeout"`
}

// ReportConfig holds AI report lifecycle and quota settings.
type ReportConfig struct {
	TTL               time.Duration `mapstructure:"ttl"                 yaml:"ttl"`
	Retention         time.Duration `mapstructure:"retention"           yaml:"retention"`
	GenerationTimeout time.Duration `mapstructure:"generation_timeout"  yaml:"generation_timeout"`
	MaxReportsPerDay  int           `mapstructure:"max_reports_per_day" yaml:"max_reports_per_day"`
	MaxTokensPerDay   int           `mapstructure:"max_tokens_per_day"  yaml:"max_tokens_per_day"`
	NewsLimit         int           `mapstructure:"news_limit"          yaml:"news_limit"`
	DistributedLock   bool          `mapstructure:"distributed_lock"    yaml:"distributed_lock"`
}

// SchedulerConfig holds cron triggers.
type SchedulerConfig struct {
	Enabled         bool   `mapstructure:"enabled"           yaml:"enabled"`
	Timezone        string `mapstructure:"timezone"          yaml:"timezone"`
	DailyReportCron string `mapstructure:"daily_report_cron" yaml:"daily_report_cron"`
	IngestCron      string `mapstructure:"ingest_cron"       yaml:"ingest_cron"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host           string        `mapstructure:"host"            yaml:"host"`
	Port           int           `mapstructure:"port"            yaml:"port"`
	CORSOrigins    []string      `mapstructure:"cors_origins"    yaml:"cors_origins"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// DefaultFeeds lists the Brazilian agribusiness news feeds aggregated by default.
var DefaultFeeds = []FeedConfig{
	{Name: "Canal Rural", URL: "https://www.canalrural.com.br/feed/"},
	{Name: "Globo Rural", URL: "https://globorural.globo.com/rss/globorural/"},
	{Name: "Notícias Agrícolas", URL: "https://www.noticiasagricolas.com.br/rss/noticias.xml"},
	{Name: "Agrolink", URL: "https://www.agrolink.com.br/rss/noticias.xml"},
	{Name: "Portal DBO", URL: "https://www.portaldbo.com.br/feed/"},
	{Name: "Compre Rural", URL: "https://www.comprerural.com/feed/"},
	{Name: "Money Times Agro", URL: "https://www.moneytimes.com.br/agro/feed/"},
	{Name: "Agência Brasil", URL: "https://agenciabrasil.ebc.com.br/rss/economia/feed.xml"},
	{Name: "Portal do Agronegócio", URL: "https://www.portaldoagronegocio.com.br/feed"},
	{Name: "AgFeed", URL: "https://agfeed.com.br/feed/"},
	{Name: "Estadão Agro", URL: "https://agro.estadao.com.br/feed"},
	{Name: "Revista Cultivar", URL: "https://revistacultivar.com.br/feed"},
	{Name: "Mais Soja", URL: "https://maissoja.com.br/feed/"},
	{Name: "Sucesso no Campo", URL: "https://sucessonocampo.com.br/feed/"},
	{Name: "Agro em Dia", URL: "https://agroemdia.com.br/feed/"},
	{Name: "Farmnews", URL: "https://www.farmnews.com.br/feed/"},
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml
//  2. ~/.agrodash/config.yaml
//  3. /etc/agrodash/config.yaml
//
// Environment variables override config file values.
// Format: AGRODASH_<SECTION>_<KEY>, e.g., AGRODASH_LLM_OPENAI_KEY
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".agrodash"))
	v.AddConfigPath("/etc/agrodash")

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return decode(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("AGRODASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if len(cfg.Sources.Feeds) == 0 {
		cfg.Sources.Feeds = DefaultFeeds
	}

	// Override sensitive values from environment
	overrideFromEnv(&cfg)
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// Sources
	v.SetDefault("sources.timeout", 10*time.Second)
	v.SetDefault("sources.user_agent", "agrodash/1.0 (+https://github.com/geraldosnetto/agro-sub002)")
	v.SetDefault("sources.bcb_base_url", "https://api.bcb.gov.br")
	v.SetDefault("sources.bcb_series", 1)
	v.SetDefault("sources.geocoding_url", "https://geocoding-api.open-meteo.com/v1/search")
	v.SetDefault("sources.forecast_url", "https://api.open-meteo.com/v1/forecast")
	v.SetDefault("sources.yahoo_base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("sources.exchange_base_url", "https://www.noticiasagricolas.com.br")
	v.SetDefault("sources.cepea_base_url", "https://www.cepea.esalq.usp.br")
	v.SetDefault("sources.sentiment", true)

	// Cache
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.sweep_interval", 5*time.Minute)
	v.SetDefault("cache.compute_timeout", 30*time.Second)
	v.SetDefault("cache.ttl.news", time.Hour)
	v.SetDefault("cache.ttl.quotes", time.Hour)
	v.SetDefault("cache.ttl.quote_history", time.Hour)
	v.SetDefault("cache.ttl.weather", 30*time.Minute)
	v.SetDefault("cache.ttl.city_search", 24*time.Hour)
	v.SetDefault("cache.ttl.international", 15*time.Minute)
	v.SetDefault("cache.ttl.reference_rate", time.Hour)

	// Redis
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "agrodash:")

	// LLM
	v.SetDefault("llm.primary", "openai")
	v.SetDefault("llm.fast_model", "gpt-4o-mini")
	v.SetDefault("llm.quality_model", "gpt-4o")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.timeout", 90*time.Second)

	// Report
	v.SetDefault("report.ttl", 6*time.Hour)
	v.SetDefault("report.retention", 7*24*time.Hour)
	v.SetDefault("report.generation_timeout", 2*time.Minute)
	v.SetDefault("report.max_reports_per_day", 10)
	v.SetDefault("report.max_tokens_per_day", 50000)
	v.SetDefault("report.news_limit", 15)
	v.SetDefault("report.distributed_lock", false)

	// Scheduler
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.timezone", "America/Sao_Paulo")
	v.SetDefault("scheduler.daily_report_cron", "0 7 * * *")
	v.SetDefault("scheduler.ingest_cron", "@every 30m")

	// API
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("api.request_timeout", 30*time.Second)

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// overrideFromEnv explicitly reads sensitive keys from environment variables.
func overrideFromEnv(cfg *Config) {
	if key := os.Getenv("AGRODASH_LLM_OPENAI_KEY"); key != "" {
		cfg.LLM.OpenAIKey = key
	}
	if key := os.Getenv("AGRODASH_LLM_ANTHROPIC_KEY"); key != "" {
		cfg.LLM.AnthropicKey = key
	}
	if key := os.Getenv("AGRODASH_LLM_GEMINI_KEY"); key != "" {
		cfg.LLM.GeminiKey = key
	}
	if pw := os.Getenv("AGRODASH_REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
	if dsn := os.Getenv("AGRODASH_DATABASE_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
