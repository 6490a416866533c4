package config

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML file at configPath, applies SMARTBRIEF_* environment
// overrides and validates the result.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	cfg, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML content on top of the defaults.
func Parse(content []byte) (*AppConfig, error) {
	cfg := defaultAppConfig()
	if len(bytes.TrimSpace(content)) > 0 {
		decoder := yaml.NewDecoder(bytes.NewReader(content))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse: %w", err)
		}
	}

	var env envOverrides
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	applyEnvOverrides(&cfg, env)
	normalize(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Port: defaultPort,
		Env:  defaultEnv,
		Storage: StorageConfig{
			Driver:      defaultStorageDriver,
			AutoMigrate: true,
		},
		Database: DatabaseRuntimeConfig{
			Host:      defaultDBHost,
			Port:      defaultDBPort,
			User:      defaultDBUser,
			Password:  defaultDBPassword,
			Name:      defaultDBName,
			Charset:   defaultDBCharset,
			ParseTime: true,
			Loc:       defaultDBLoc,
		},
		Mongo: MongoRuntimeConfig{
			URI:      defaultMongoURI,
			Database: defaultMongoDatabase,
		},
		Redis: RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		AI: AIConfig{
			DefaultProvider: defaultAIProvider,
			TimeoutSeconds:  defaultAITimeoutSeconds,
			Gemini:          ProviderConfig{BaseURL: defaultGeminiBaseURL, DefaultModel: defaultGeminiModel},
			OpenAI:          ProviderConfig{DefaultModel: defaultOpenAIModel},
			Anthropic:       ProviderConfig{DefaultModel: defaultAnthropicModel},
		},
		UploadArchive: UploadArchiveConfig{Prefix: defaultArchivePrefix},
		RateLimit:     RateLimitConfig{PerMinute: defaultRateLimitPerMin},
		Metrics:       MetricsConfig{Enabled: true},
	}
}

func applyEnvOverrides(cfg *AppConfig, env envOverrides) {
	if env.Port != 0 {
		cfg.Port = env.Port
	}
	setIf(&cfg.Env, env.Env)
	setIf(&cfg.JWTSecret, env.JWTSecret)
	setIf(&cfg.Storage.Driver, env.StorageDriver)
	setIf(&cfg.Database.DSN, env.DatabaseDSN)
	setIf(&cfg.Mongo.URI, env.MongoURI)
	if strings.TrimSpace(env.RedisURL) != "" {
		cfg.Redis.URL = env.RedisURL
		cfg.Redis.Enable = true
	}
	setIf(&cfg.AI.DefaultProvider, env.AIDefaultProvider)
	setIf(&cfg.AI.Gemini.APIKey, env.GeminiAPIKey)
	setIf(&cfg.AI.Gemini.BaseURL, env.GeminiBaseURL)
	setIf(&cfg.AI.OpenAI.APIKey, env.OpenAIAPIKey)
	setIf(&cfg.AI.OpenAI.BaseURL, env.OpenAIBaseURL)
	setIf(&cfg.AI.Anthropic.APIKey, env.AnthropicAPIKey)
	setIf(&cfg.AI.Anthropic.BaseURL, env.AnthropicBaseURL)
	setIf(&cfg.UploadArchive.AccessKeyID, env.ArchiveAccessKeyID)
	setIf(&cfg.UploadArchive.SecretAccessKey, env.ArchiveSecretKey)
}

func setIf(dst *string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		*dst = v
	}
}

func normalize(cfg *AppConfig) {
	cfg.Env = normalizeEnv(cfg.Env)
	cfg.JWTSecret = strings.TrimSpace(cfg.JWTSecret)
	cfg.AllowedOrigins = normalizeOrigins(cfg.AllowedOrigins)
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	cfg.Database = normalizeDatabaseConfig(cfg.Database)
	cfg.Mongo = normalizeMongoConfig(cfg.Mongo)
	cfg.Redis = normalizeRedisConfig(cfg.Redis)
	cfg.AI = normalizeAIConfig(cfg.AI)
	cfg.UploadArchive = normalizeArchiveConfig(cfg.UploadArchive)
	if cfg.RateLimit.PerMinute < 0 {
		cfg.RateLimit.PerMinute = 0
	}
}

// Validate reports the first invalid setting.
func (c *AppConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d, expected 1-65535", c.Port)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	switch c.Storage.Driver {
	case StorageMySQL:
		if c.Database.DSN == "" && (c.Database.Port < 1 || c.Database.Port > 65535) {
			return fmt.Errorf("invalid database.port %d, expected 1-65535", c.Database.Port)
		}
	case StorageMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("mongo.uri is required when storage.driver is mongo")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q, expected mysql or mongo", c.Storage.Driver)
	}
	if c.Redis.Enable && c.Redis.URL == "" && (c.Redis.Port < 1 || c.Redis.Port > 65535) {
		return fmt.Errorf("invalid redis.port %d, expected 1-65535", c.Redis.Port)
	}
	if !slices.Contains(KnownProviders, c.AI.DefaultProvider) {
		return fmt.Errorf("unknown ai.default_provider %q, expected one of %s", c.AI.DefaultProvider, strings.Join(KnownProviders, ", "))
	}
	if c.AI.TimeoutSeconds < 1 || c.AI.TimeoutSeconds > maxAITimeoutSeconds {
		return fmt.Errorf("invalid ai.timeout_seconds %d, expected 1-%d", c.AI.TimeoutSeconds, maxAITimeoutSeconds)
	}
	if c.UploadArchive.Enable && c.UploadArchive.Bucket == "" {
		return fmt.Errorf("upload_archive.bucket is required when upload_archive is enabled")
	}
	return nil
}

func (c *AppConfig) IsDev() bool {
	return c.Env == "development" || c.Env == "dev"
}
