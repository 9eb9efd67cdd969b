package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"invoicerecon/internal/invoice"
	"invoicerecon/internal/reconcile"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	DB        DBConfig
	S3        S3Config
	Log       LogConfig
	CORS      CORSConfig
	Parser    ParserConfig
	Assistant AssistantConfig
	Reconcile ReconcileConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
	MaxUploadMB  int64         `mapstructure:"max_upload_mb"`
}

// MaxUploadBytes returns the upload limit in bytes.
func (s *ServerConfig) MaxUploadBytes() int64 {
	return s.MaxUploadMB * 1024 * 1024
}

// DBConfig holds PostgreSQL connection settings. When Enabled is false runs
// are kept in memory.
type DBConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// DSN returns the PostgreSQL connection string.
func (d *DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// S3Config holds the upload archive settings.
type S3Config struct {
	Enabled   bool   `mapstructure:"enabled"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// ParserProviderConfig holds settings for a single LLM extraction provider.
type ParserProviderConfig struct {
	Provider     string `mapstructure:"provider"`
	APIKey       string `mapstructure:"api_key"`
	DefaultModel string `mapstructure:"default_model"`
	MaxRetries   int    `mapstructure:"max_retries"`
	TimeoutSecs  int    `mapstructure:"timeout_secs"`
}

// ParserConfig holds structured extraction settings with multi-provider support.
type ParserConfig struct {
	// Legacy flat fields
	Provider     string `mapstructure:"provider"`
	APIKey       string `mapstructure:"api_key"`
	DefaultModel string `mapstructure:"default_model"`
	MaxRetries   int    `mapstructure:"max_retries"`
	TimeoutSecs  int    `mapstructure:"timeout_secs"`

	Primary   ParserProviderConfig `mapstructure:"primary"`
	Secondary ParserProviderConfig `mapstructure:"secondary"`
	Tertiary  ParserProviderConfig `mapstructure:"tertiary"`

	// Merge runs primary and secondary side by side and merges their output
	// instead of falling back.
	Merge bool `mapstructure:"merge"`
}

// PrimaryConfig returns the primary provider config, falling back to the legacy flat fields.
func (p *ParserConfig) PrimaryConfig() *ParserProviderConfig {
	if p.Primary.Provider != "" {
		return &p.Primary
	}
	return &ParserProviderConfig{
		Provider:     p.Provider,
		APIKey:       p.APIKey,
		DefaultModel: p.DefaultModel,
		MaxRetries:   p.MaxRetries,
		TimeoutSecs:  p.TimeoutSecs,
	}
}

// SecondaryConfig returns the secondary provider config, or nil if not configured.
func (p *ParserConfig) SecondaryConfig() *ParserProviderConfig {
	if p.Secondary.Provider != "" {
		return &p.Secondary
	}
	return nil
}

// TertiaryConfig returns the tertiary provider config, or nil if not configured.
func (p *ParserConfig) TertiaryConfig() *ParserProviderConfig {
	if p.Tertiary.Provider != "" {
		return &p.Tertiary
	}
	return nil
}

// AssistantConfig holds the chat assistant settings.
type AssistantConfig struct {
	Provider    string  `mapstructure:"provider"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	TimeoutSecs int     `mapstructure:"timeout_secs"`
}

// ReconcileConfig holds the matching and comparison policy.
type ReconcileConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	AmountTieTolerance  string  `mapstructure:"amount_tie_tolerance"`
	AmountTolerance     string  `mapstructure:"amount_tolerance"`
	PercentTolerance    string  `mapstructure:"percent_tolerance"`
	Prefilter           bool    `mapstructure:"prefilter"`
	ConsistencyCheck    bool    `mapstructure:"consistency_check"`
	BatchConcurrency    int     `mapstructure:"batch_concurrency"`
	DefaultSheet        string  `mapstructure:"default_sheet"`
	// Synonyms is a comma separated list of key=field pairs.
	Synonyms string `mapstructure:"synonyms"`
}

// MatcherConfig converts the settings into the matcher's config.
func (r *ReconcileConfig) MatcherConfig() (reconcile.MatcherConfig, error) {
	tie, err := decimal.NewFromString(r.AmountTieTolerance)
	if err != nil {
		return reconcile.MatcherConfig{}, fmt.Errorf("reconcile.amount_tie_tolerance: %w", err)
	}
	return reconcile.MatcherConfig{
		SimilarityThreshold: r.SimilarityThreshold,
		AmountTieTolerance:  tie,
	}, nil
}

// ToleranceConfig converts the settings into comparator tolerances.
func (r *ReconcileConfig) ToleranceConfig() (reconcile.ToleranceConfig, error) {
	amount, err := decimal.NewFromString(r.AmountTolerance)
	if err != nil {
		return reconcile.ToleranceConfig{}, fmt.Errorf("reconcile.amount_tolerance: %w", err)
	}
	percent, err := decimal.NewFromString(r.PercentTolerance)
	if err != nil {
		return reconcile.ToleranceConfig{}, fmt.Errorf("reconcile.percent_tolerance: %w", err)
	}
	return reconcile.ToleranceConfig{
		Amount:           amount,
		PercentPoints:    percent,
		ConsistencyCheck: r.ConsistencyCheck,
	}, nil
}

// NormalizerConfig parses the extra synonym list.
func (r *ReconcileConfig) NormalizerConfig() (invoice.NormalizerConfig, error) {
	cfg := invoice.NormalizerConfig{Synonyms: map[string]invoice.Field{}}
	for _, pair := range strings.Split(r.Synonyms, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, field, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return invoice.NormalizerConfig{}, fmt.Errorf("reconcile.synonyms: malformed pair %q", pair)
		}
		f, err := invoice.ParseField(field)
		if err != nil {
			return invoice.NormalizerConfig{}, fmt.Errorf("reconcile.synonyms: %w", err)
		}
		cfg.Synonyms[strings.TrimSpace(key)] = f
	}
	return cfg, nil
}

// Engine builds a reconciliation engine from the settings.
func (r *ReconcileConfig) Engine() (*reconcile.Engine, error) {
	ncfg, err := r.NormalizerConfig()
	if err != nil {
		return nil, err
	}
	mcfg, err := r.MatcherConfig()
	if err != nil {
		return nil, err
	}
	tcfg, err := r.ToleranceConfig()
	if err != nil {
		return nil, err
	}
	return reconcile.NewEngine(ncfg, mcfg, tcfg), nil
}

// Load reads configuration from environment variables with the INVOICERECON_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INVOICERECON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.max_upload_mb", 20)

	// DB defaults
	v.SetDefault("db.enabled", false)
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "invoicerecon")
	v.SetDefault("db.password", "invoicerecon_secret")
	v.SetDefault("db.name", "invoicerecon_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 10)
	v.SetDefault("db.max_idle", 5)

	// S3 defaults
	v.SetDefault("s3.enabled", false)
	v.SetDefault("s3.region", "eu-west-3")
	v.SetDefault("s3.bucket", "invoicerecon-uploads")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.prefix", "uploads")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("cors.allowed_origins", "http://localhost:3000,http://127.0.0.1:3000,http://localhost:8501")

	// Parser defaults (legacy flat)
	v.SetDefault("parser.provider", "gemini")
	v.SetDefault("parser.api_key", "")
	v.SetDefault("parser.default_model", "gemini-2.0-flash")
	v.SetDefault("parser.max_retries", 2)
	v.SetDefault("parser.timeout_secs", 120)
	v.SetDefault("parser.merge", false)
	for _, tier := range []string{"primary", "secondary", "tertiary"} {
		v.SetDefault("parser."+tier+".provider", "")
		v.SetDefault("parser."+tier+".api_key", "")
		v.SetDefault("parser."+tier+".default_model", "")
		v.SetDefault("parser."+tier+".max_retries", 2)
		v.SetDefault("parser."+tier+".timeout_secs", 120)
	}

	// Assistant defaults
	v.SetDefault("assistant.provider", "gemini")
	v.SetDefault("assistant.api_key", "")
	v.SetDefault("assistant.model", "gemini-2.0-flash")
	v.SetDefault("assistant.temperature", 0.3)
	v.SetDefault("assistant.timeout_secs", 60)

	// Reconcile defaults
	v.SetDefault("reconcile.similarity_threshold", 90.0)
	v.SetDefault("reconcile.amount_tie_tolerance", "0.0001")
	v.SetDefault("reconcile.amount_tolerance", "0.01")
	v.SetDefault("reconcile.percent_tolerance", "0.1")
	v.SetDefault("reconcile.prefilter", false)
	v.SetDefault("reconcile.consistency_check", true)
	v.SetDefault("reconcile.batch_concurrency", 4)
	v.SetDefault("reconcile.default_sheet", "")
	v.SetDefault("reconcile.synonyms", "")

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"server.port":                    "INVOICERECON_SERVER_PORT",
		"server.read_timeout":            "INVOICERECON_SERVER_READ_TIMEOUT",
		"server.write_timeout":           "INVOICERECON_SERVER_WRITE_TIMEOUT",
		"server.environment":             "INVOICERECON_SERVER_ENVIRONMENT",
		"server.max_upload_mb":           "INVOICERECON_SERVER_MAX_UPLOAD_MB",
		"db.enabled":                     "INVOICERECON_DB_ENABLED",
		"db.host":                        "INVOICERECON_DB_HOST",
		"db.port":                        "INVOICERECON_DB_PORT",
		"db.user":                        "INVOICERECON_DB_USER",
		"db.password":                    "INVOICERECON_DB_PASSWORD",
		"db.name":                        "INVOICERECON_DB_NAME",
		"db.sslmode":                     "INVOICERECON_DB_SSLMODE",
		"db.max_open":                    "INVOICERECON_DB_MAX_OPEN",
		"db.max_idle":                    "INVOICERECON_DB_MAX_IDLE",
		"s3.enabled":                     "INVOICERECON_S3_ENABLED",
		"s3.region":                      "INVOICERECON_S3_REGION",
		"s3.bucket":                      "INVOICERECON_S3_BUCKET",
		"s3.endpoint":                    "INVOICERECON_S3_ENDPOINT",
		"s3.access_key":                  "INVOICERECON_S3_ACCESS_KEY",
		"s3.secret_key":                  "INVOICERECON_S3_SECRET_KEY",
		"s3.prefix":                      "INVOICERECON_S3_PREFIX",
		"log.level":                      "INVOICERECON_LOG_LEVEL",
		"log.format":                     "INVOICERECON_LOG_FORMAT",
		"cors.allowed_origins":           "INVOICERECON_CORS_ALLOWED_ORIGINS",
		"parser.provider":                "INVOICERECON_PARSER_PROVIDER",
		"parser.api_key":                 "INVOICERECON_PARSER_API_KEY",
		"parser.default_model":           "INVOICERECON_PARSER_DEFAULT_MODEL",
		"parser.max_retries":             "INVOICERECON_PARSER_MAX_RETRIES",
		"parser.timeout_secs":            "INVOICERECON_PARSER_TIMEOUT_SECS",
		"parser.merge":                   "INVOICERECON_PARSER_MERGE",
		"parser.primary.provider":        "INVOICERECON_PARSER_PRIMARY_PROVIDER",
		"parser.primary.api_key":         "INVOICERECON_PARSER_PRIMARY_API_KEY",
		"parser.primary.default_model":   "INVOICERECON_PARSER_PRIMARY_DEFAULT_MODEL",
		"parser.primary.max_retries":     "INVOICERECON_PARSER_PRIMARY_MAX_RETRIES",
		"parser.primary.timeout_secs":    "INVOICERECON_PARSER_PRIMARY_TIMEOUT_SECS",
		"parser.secondary.provider":      "INVOICERECON_PARSER_SECONDARY_PROVIDER",
		"parser.secondary.api_key":       "INVOICERECON_PARSER_SECONDARY_API_KEY",
		"parser.secondary.default_model": "INVOICERECON_PARSER_SECONDARY_DEFAULT_MODEL",
		"parser.secondary.max_retries":   "INVOICERECON_PARSER_SECONDARY_MAX_RETRIES",
		"parser.secondary.timeout_secs":  "INVOICERECON_PARSER_SECONDARY_TIMEOUT_SECS",
		"parser.tertiary.provider":       "INVOICERECON_PARSER_TERTIARY_PROVIDER",
		"parser.tertiary.api_key":        "INVOICERECON_PARSER_TERTIARY_API_KEY",
		"parser.tertiary.default_model":  "INVOICERECON_PARSER_TERTIARY_DEFAULT_MODEL",
		"parser.tertiary.max_retries":    "INVOICERECON_PARSER_TERTIARY_MAX_RETRIES",
		"parser.tertiary.timeout_secs":   "INVOICERECON_PARSER_TERTIARY_TIMEOUT_SECS",
		"assistant.provider":             "INVOICERECON_ASSISTANT_PROVIDER",
		"assistant.api_key":              "INVOICERECON_ASSISTANT_API_KEY",
		"assistant.model":                "INVOICERECON_ASSISTANT_MODEL",
		"assistant.temperature":          "INVOICERECON_ASSISTANT_TEMPERATURE",
		"assistant.timeout_secs":         "INVOICERECON_ASSISTANT_TIMEOUT_SECS",
		"reconcile.similarity_threshold": "INVOICERECON_RECONCILE_SIMILARITY_THRESHOLD",
		"reconcile.amount_tie_tolerance": "INVOICERECON_RECONCILE_AMOUNT_TIE_TOLERANCE",
		"reconcile.amount_tolerance":     "INVOICERECON_RECONCILE_AMOUNT_TOLERANCE",
		"reconcile.percent_tolerance":    "INVOICERECON_RECONCILE_PERCENT_TOLERANCE",
		"reconcile.prefilter":            "INVOICERECON_RECONCILE_PREFILTER",
		"reconcile.consistency_check":    "INVOICERECON_RECONCILE_CONSISTENCY_CHECK",
		"reconcile.batch_concurrency":    "INVOICERECON_RECONCILE_BATCH_CONCURRENCY",
		"reconcile.default_sheet":        "INVOICERECON_RECONCILE_DEFAULT_SHEET",
		"reconcile.synonyms":             "INVOICERECON_RECONCILE_SYNONYMS",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}

	// Hosting platforms set PORT. Use it unless the prefixed variable is set.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("INVOICERECON_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:         serverPort,
		ReadTimeout:  v.GetDuration("server.read_timeout"),
		WriteTimeout: v.GetDuration("server.write_timeout"),
		Environment:  v.GetString("server.environment"),
		MaxUploadMB:  v.GetInt64("server.max_upload_mb"),
	}
	cfg.DB = DBConfig{
		Enabled:  v.GetBool("db.enabled"),
		Host:     v.GetString("db.host"),
		Port:     v.GetInt("db.port"),
		User:     v.GetString("db.user"),
		Password: v.GetString("db.password"),
		Name:     v.GetString("db.name"),
		SSLMode:  v.GetString("db.sslmode"),
		MaxOpen:  v.GetInt("db.max_open"),
		MaxIdle:  v.GetInt("db.max_idle"),
	}
	cfg.S3 = S3Config{
		Enabled:   v.GetBool("s3.enabled"),
		Region:    v.GetString("s3.region"),
		Bucket:    v.GetString("s3.bucket"),
		Endpoint:  v.GetString("s3.endpoint"),
		AccessKey: v.GetString("s3.access_key"),
		SecretKey: v.GetString("s3.secret_key"),
		Prefix:    v.GetString("s3.prefix"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}

	var corsOrigins []string
	for _, o := range strings.Split(v.GetString("cors.allowed_origins"), ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			corsOrigins = append(corsOrigins, o)
		}
	}
	cfg.CORS = CORSConfig{AllowedOrigins: corsOrigins}

	cfg.Parser = ParserConfig{
		Provider:     v.GetString("parser.provider"),
		APIKey:       v.GetString("parser.api_key"),
		DefaultModel: v.GetString("parser.default_model"),
		MaxRetries:   v.GetInt("parser.max_retries"),
		TimeoutSecs:  v.GetInt("parser.timeout_secs"),
		Primary:      providerConfig(v, "parser.primary"),
		Secondary:    providerConfig(v, "parser.secondary"),
		Tertiary:     providerConfig(v, "parser.tertiary"),
		Merge:        v.GetBool("parser.merge"),
	}

	cfg.Assistant = AssistantConfig{
		Provider:    v.GetString("assistant.provider"),
		APIKey:      v.GetString("assistant.api_key"),
		Model:       v.GetString("assistant.model"),
		Temperature: v.GetFloat64("assistant.temperature"),
		TimeoutSecs: v.GetInt("assistant.timeout_secs"),
	}
	// Fall back to the extraction key so one Gemini key serves both.
	if cfg.Assistant.APIKey == "" && cfg.Parser.PrimaryConfig().Provider == cfg.Assistant.Provider {
		cfg.Assistant.APIKey = cfg.Parser.PrimaryConfig().APIKey
	}

	cfg.Reconcile = ReconcileConfig{
		SimilarityThreshold: v.GetFloat64("reconcile.similarity_threshold"),
		AmountTieTolerance:  v.GetString("reconcile.amount_tie_tolerance"),
		AmountTolerance:     v.GetString("reconcile.amount_tolerance"),
		PercentTolerance:    v.GetString("reconcile.percent_tolerance"),
		Prefilter:           v.GetBool("reconcile.prefilter"),
		ConsistencyCheck:    v.GetBool("reconcile.consistency_check"),
		BatchConcurrency:    v.GetInt("reconcile.batch_concurrency"),
		DefaultSheet:        v.GetString("reconcile.default_sheet"),
		Synonyms:            v.GetString("reconcile.synonyms"),
	}

	if cfg.Reconcile.SimilarityThreshold < 0 || cfg.Reconcile.SimilarityThreshold > 100 {
		return nil, fmt.Errorf("reconcile.similarity_threshold must be within 0-100, got %v", cfg.Reconcile.SimilarityThreshold)
	}
	if cfg.Reconcile.BatchConcurrency < 1 {
		cfg.Reconcile.BatchConcurrency = 1
	}

	return cfg, nil
}

func providerConfig(v *viper.Viper, prefix string) ParserProviderConfig {
	return ParserProviderConfig{
		Provider:     v.GetString(prefix + ".provider"),
		APIKey:       v.GetString(prefix + ".api_key"),
		DefaultModel: v.GetString(prefix + ".default_model"),
		MaxRetries:   v.GetInt(prefix + ".max_retries"),
		TimeoutSecs:  v.GetInt(prefix + ".timeout_secs"),
	}
}
