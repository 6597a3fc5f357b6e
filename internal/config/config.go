// Package config resolves exectrack settings from .env, the environment
// and an optional YAML file, in that order of precedence.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/ignatij/exectrack/pkg/service"
	"github.com/ignatij/exectrack/pkg/storage"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	RESTBackend     = "rest"
	DynamoDBBackend = "dynamodb"
)

// Config holds the resolved settings.
type Config struct {
	// Execution source
	Backend   string
	BaseURL   string
	Table     string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string

	// Session persistence
	Store string
	Slot  string

	// Polling
	PollInterval time.Duration
	MaxRetries   int
	FetchTimeout time.Duration

	Port      string
	LogLevel  string
	LogFormat string
}

// fileConfig mirrors the YAML layout of EXECTRACK_CONFIG.
type fileConfig struct {
	Backend  string `yaml:"backend"`
	BaseURL  string `yaml:"baseUrl"`
	Table    string `yaml:"table"`
	Region   string `yaml:"region"`
	DynamoDB struct {
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"accessKey"`
		SecretKey string `yaml:"secretKey"`
	} `yaml:"dynamodb"`
	Store string `yaml:"store"`
	Slot  string `yaml:"slot"`
	Poll  struct {
		IntervalMS     int `yaml:"intervalMs"`
		MaxRetries     int `yaml:"maxRetries"`
		FetchTimeoutMS int `yaml:"fetchTimeoutMs"`
	} `yaml:"poll"`
	Port      string `yaml:"port"`
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
}

// Load reads .env when present, then resolves every setting from the
// environment, falling back to the YAML file at path (or EXECTRACK_CONFIG
// when path is empty) and finally to the defaults.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("EXECTRACK_CONFIG")
	}
	var file fileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}

	cfg := &Config{
		Backend:      getEnv("EXECTRACK_BACKEND", or(file.Backend, RESTBackend)),
		BaseURL:      getEnv("EXECTRACK_BASE_URL", or(file.BaseURL, "http://localhost:3000/api")),
		Table:        getEnv("EXECTRACK_TABLE", or(file.Table, "executions-table")),
		Region:       getEnv("AWS_REGION", or(file.Region, "us-east-1")),
		Endpoint:     getEnv("DYNAMODB_ENDPOINT", file.DynamoDB.Endpoint),
		AccessKey:    getEnv("DYNAMODB_ACCESS_KEY", file.DynamoDB.AccessKey),
		SecretKey:    getEnv("DYNAMODB_SECRET_KEY", file.DynamoDB.SecretKey),
		Store:        getEnv("EXECTRACK_STORE", or(file.Store, "memory")),
		Slot:         getEnv("EXECTRACK_SLOT", or(file.Slot, storage.DefaultSlot)),
		PollInterval: time.Duration(getEnvInt("POLL_INTERVAL_MS", orInt(file.Poll.IntervalMS, int(service.DefaultPollInterval/time.Millisecond)))) * time.Millisecond,
		MaxRetries:   getEnvInt("POLL_MAX_RETRIES", orInt(file.Poll.MaxRetries, service.DefaultMaxRetries)),
		FetchTimeout: time.Duration(getEnvInt("FETCH_TIMEOUT_MS", orInt(file.Poll.FetchTimeoutMS, int(service.DefaultFetchTimeout/time.Millisecond)))) * time.Millisecond,
		Port:         getEnv("PORT", or(file.Port, "8080")),
		LogLevel:     getEnv("LOG_LEVEL", or(file.LogLevel, "INFO")),
		LogFormat:    getEnv("LOG_FORMAT", or(file.LogFormat, "text")),
	}
	return cfg, nil
}

// Validate checks the settings the selected backend needs.
func (c *Config) Validate() error {
	switch c.Backend {
	case RESTBackend:
		if c.BaseURL == "" {
			return errors.New("base URL is required for the rest backend")
		}
	case DynamoDBBackend:
		if c.Table == "" {
			return errors.New("table is required for the dynamodb backend")
		}
	default:
		return errors.Errorf("unknown backend %q", c.Backend)
	}
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if c.MaxRetries <= 0 {
		return errors.New("max retries must be positive")
	}
	if c.FetchTimeout <= 0 {
		return errors.New("fetch timeout must be positive")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func or(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

func orInt(val, defaultVal int) int {
	if val != 0 {
		return val
	}
	return defaultVal
}
