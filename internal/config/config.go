package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	NATS       NATSConfig       `yaml:"nats"`
	MinIO      MinIOConfig      `yaml:"minio"`
	FaceEngine FaceEngineConfig `yaml:"face_engine"`
	Matching   MatchingConfig   `yaml:"matching"`
	Events     EventsConfig     `yaml:"events"`
	Worker     WorkerConfig     `yaml:"worker"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	// PublicURL is the externally reachable base for stored objects.
	// Defaults to http(s)://endpoint/bucket.
	PublicURL string `yaml:"public_url"`
}

type FaceEngineConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// MatchingConfig centralizes the confidence scale and every threshold.
// All call paths share these values; there is exactly one scale.
type MatchingConfig struct {
	Scale       float64 `yaml:"scale"`
	Strong      int     `yaml:"strong"`
	Good        int     `yaml:"good"`
	Possible    int     `yaml:"possible"`
	MaxDistance float64 `yaml:"max_distance"`
}

type EventsConfig struct {
	Expiry      time.Duration `yaml:"expiry"`
	FrontendURL string        `yaml:"frontend_url"`
}

type WorkerConfig struct {
	Count           int           `yaml:"count"`
	RequeueAfter    time.Duration `yaml:"requeue_after"`
	RequeueInterval time.Duration `yaml:"requeue_interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.FaceEngine.Timeout == 0 {
		cfg.FaceEngine.Timeout = 90 * time.Second
	}
	if cfg.Matching.Scale == 0 {
		cfg.Matching.Scale = 0.8
	}
	if cfg.Matching.Strong == 0 {
		cfg.Matching.Strong = 70
	}
	if cfg.Matching.Good == 0 {
		cfg.Matching.Good = 55
	}
	if cfg.Matching.Possible == 0 {
		cfg.Matching.Possible = 20
	}
	if cfg.Matching.MaxDistance == 0 {
		cfg.Matching.MaxDistance = 0.6
	}
	if cfg.Events.Expiry == 0 {
		cfg.Events.Expiry = 24 * time.Hour
	}
	if cfg.Events.FrontendURL == "" {
		cfg.Events.FrontendURL = "http://localhost:5173"
	}
	if cfg.Worker.Count == 0 {
		cfg.Worker.Count = 6
	}
	if cfg.Worker.RequeueAfter == 0 {
		cfg.Worker.RequeueAfter = 10 * time.Minute
	}
	if cfg.Worker.RequeueInterval == 0 {
		cfg.Worker.RequeueInterval = 5 * time.Minute
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SS_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("SS_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("SS_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("SS_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("SS_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("SS_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("SS_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("SS_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("SS_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("SS_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("SS_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("SS_FACE_ENGINE_URL"); v != "" {
		cfg.FaceEngine.URL = v
	}
	if v := os.Getenv("SS_FRONTEND_URL"); v != "" {
		cfg.Events.FrontendURL = v
	}
	if v := os.Getenv("SS_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Worker.Count = n
		}
	}
}
