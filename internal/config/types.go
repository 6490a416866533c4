package config

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int                   `yaml:"port"`
	Env            string                `yaml:"env"` // "development" | "production"
	JWTSecret      string                `yaml:"jwt_secret"`
	AllowedOrigins []string              `yaml:"allowed_origins"`
	Storage        StorageConfig         `yaml:"storage"`
	Database       DatabaseRuntimeConfig `yaml:"database"`
	Mongo          MongoRuntimeConfig    `yaml:"mongo"`
	Redis          RedisRuntimeConfig    `yaml:"redis"`
	AI             AIConfig              `yaml:"ai"`
	UploadArchive  UploadArchiveConfig   `yaml:"upload_archive"`
	RateLimit      RateLimitConfig       `yaml:"rate_limit"`
	Metrics        MetricsConfig         `yaml:"metrics"`
}

type StorageConfig struct {
	Driver      string `yaml:"driver"` // "mysql" | "mongo"
	AutoMigrate bool   `yaml:"auto_migrate"`
}

type DatabaseRuntimeConfig struct {
	DSN       string            `yaml:"dsn"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	Charset   string            `yaml:"charset"`
	ParseTime bool              `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	Params    map[string]string `yaml:"params"`
}

type MongoRuntimeConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type RedisRuntimeConfig struct {
	Enable   bool              `yaml:"enable"`
	URL      string            `yaml:"url"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	DB       int               `yaml:"db"`
	TLS      bool              `yaml:"tls"`
	Params   map[string]string `yaml:"params"`
}

// AIConfig configures the summarization providers.
type AIConfig struct {
	DefaultProvider string         `yaml:"default_provider"`
	TimeoutSeconds  int            `yaml:"timeout_seconds"`
	Gemini          ProviderConfig `yaml:"gemini"`
	OpenAI          ProviderConfig `yaml:"openai"`
	Anthropic       ProviderConfig `yaml:"anthropic"`
}

type ProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
}

// Provider returns the section for name, or false for an unknown provider.
func (a AIConfig) Provider(name string) (ProviderConfig, bool) {
	switch name {
	case "gemini":
		return a.Gemini, true
	case "openai":
		return a.OpenAI, true
	case "anthropic":
		return a.Anthropic, true
	}
	return ProviderConfig{}, false
}

// UploadArchiveConfig configures optional S3 archival of uploaded files.
type UploadArchiveConfig struct {
	Enable          bool   `yaml:"enable"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Prefix          string `yaml:"prefix"`
	PathStyle       bool   `yaml:"path_style"`
}

type RateLimitConfig struct {
	PerMinute int `yaml:"per_minute"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// envOverrides are read from SMARTBRIEF_* variables and win over the file.
type envOverrides struct {
	Port               int    `envconfig:"PORT"`
	Env                string `envconfig:"ENV"`
	JWTSecret          string `envconfig:"JWT_SECRET"`
	StorageDriver      string `envconfig:"STORAGE_DRIVER"`
	DatabaseDSN        string `envconfig:"DATABASE_DSN"`
	MongoURI           string `envconfig:"MONGO_URI"`
	RedisURL           string `envconfig:"REDIS_URL"`
	AIDefaultProvider  string `envconfig:"AI_DEFAULT_PROVIDER"`
	GeminiAPIKey       string `envconfig:"GEMINI_API_KEY"`
	GeminiBaseURL      string `envconfig:"GEMINI_BASE_URL"`
	OpenAIAPIKey       string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL      string `envconfig:"OPENAI_BASE_URL"`
	AnthropicAPIKey    string `envconfig:"ANTHROPIC_API_KEY"`
	AnthropicBaseURL   string `envconfig:"ANTHROPIC_BASE_URL"`
	ArchiveAccessKeyID string `envconfig:"ARCHIVE_ACCESS_KEY_ID"`
	ArchiveSecretKey   string `envconfig:"ARCHIVE_SECRET_ACCESS_KEY"`
}
