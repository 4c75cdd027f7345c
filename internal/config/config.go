package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	R2        R2Config
	Engine    EngineConfig
	Ledger    LedgerConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	SubmitPerHour int
	VerifyPerMin  int
	LedgerPerHour int
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type EngineConfig struct {
	ServiceURL string
	Timeout    int // seconds
}

type LedgerConfig struct {
	NodeURL    string
	Timeout    int // seconds
	MaxRetries int
	ProjectID  string // default project for artifact logging
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("JWT_SECRET")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("engine.service_url", "ENGINE_SERVICE_URL")
	_ = viper.BindEnv("engine.timeout", "ENGINE_TIMEOUT")
	_ = viper.BindEnv("ledger.node_url", "LEDGER_NODE_URL")
	_ = viper.BindEnv("ledger.timeout", "LEDGER_TIMEOUT")
	_ = viper.BindEnv("ledger.max_retries", "LEDGER_MAX_RETRIES")
	_ = viper.BindEnv("ledger.project_id", "LEDGER_PROJECT_ID")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.submit_per_hour", 20)
	viper.SetDefault("ratelimit.verify_per_min", 30)
	viper.SetDefault("ratelimit.ledger_per_hour", 30)

	// Engine defaults
	viper.SetDefault("engine.timeout", 120)

	// Ledger defaults
	viper.SetDefault("ledger.timeout", 30)
	viper.SetDefault("ledger.max_retries", 3)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			SubmitPerHour: viper.GetInt("ratelimit.submit_per_hour"),
			VerifyPerMin:  viper.GetInt("ratelimit.verify_per_min"),
			LedgerPerHour: viper.GetInt("ratelimit.ledger_per_hour"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		Engine: EngineConfig{
			ServiceURL: viper.GetString("engine.service_url"),
			Timeout:    viper.GetInt("engine.timeout"),
		},
		Ledger: LedgerConfig{
			NodeURL:    viper.GetString("ledger.node_url"),
			Timeout:    viper.GetInt("ledger.timeout"),
			MaxRetries: viper.GetInt("ledger.max_retries"),
			ProjectID:  viper.GetString("ledger.project_id"),
		},
	}

	return cfg, nil
}
