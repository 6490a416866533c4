package config

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"

	defaultPort              = 2333
	defaultEnv               = "development"
	defaultStorageDriver     = StorageMySQL
	defaultDBHost            = "127.0.0.1"
	defaultDBPort            = 3306
	defaultDBUser            = "root"
	defaultDBPassword        = "password"
	defaultDBName            = "smartbrief"
	defaultDBCharset         = "utf8mb4"
	defaultDBLoc             = "Local"
	defaultMongoURI          = "mongodb://localhost:27017"
	defaultMongoDatabase     = "smartbrief"
	defaultRedisHost         = "localhost"
	defaultRedisPort         = 6379
	defaultRedisDB           = 0
	defaultAIProvider        = "gemini"
	defaultAITimeoutSeconds  = 30
	maxAITimeoutSeconds      = 30
	defaultGeminiBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel       = "gemini-1.5-flash-latest"
	defaultOpenAIModel       = "gpt-4o-mini"
	defaultAnthropicModel    = "claude-haiku-4-5-20251001"
	defaultRateLimitPerMin   = 30
	defaultArchivePrefix     = "uploads"
	envPrefix                = "smartbrief"
	StorageMySQL             = "mysql"
	StorageMongo             = "mongo"
)

// KnownProviders lists the provider names accepted by the ai section.
var KnownProviders = []string{"gemini", "openai", "anthropic"}
