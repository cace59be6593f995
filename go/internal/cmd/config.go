package main

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/quizduel/go/internal/anchor"
	"github.com/mcdev12/quizduel/go/internal/content"
	"github.com/mcdev12/quizduel/go/internal/events"
	"github.com/mcdev12/quizduel/go/internal/gateway"
)

const (
	backendMemory   = "memory"
	backendPostgres = "postgres"
	backendNATS     = "nats"
)

// AppConfig is read from the environment.
type AppConfig struct {
	Port         string        `env:"PORT" envDefault:"8080"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`
	ConfigPath   string        `env:"QUIZDUEL_CONFIG" envDefault:"config.yaml"`
	StoreBackend string        `env:"STORE_BACKEND" envDefault:"memory"`
	TickInterval time.Duration `env:"CONTROLLER_TICK" envDefault:"200ms"`

	// Session store tuning.
	NotifyChannel    string        `env:"PG_NOTIFY_CHANNEL" envDefault:"quiz_session_changes"`
	FallbackInterval time.Duration `env:"PG_FALLBACK_INTERVAL" envDefault:"5s"`
	KVBucket         string        `env:"KV_BUCKET" envDefault:"QUIZ_SESSIONS"`
	KVTTL            time.Duration `env:"KV_TTL" envDefault:"24h"`
	KVMaxAttempts    int           `env:"KV_MAX_ATTEMPTS" envDefault:"16"`

	ResultsEnabled bool `env:"RESULTS_ENABLED" envDefault:"false"`
	EventsEnabled  bool `env:"EVENTS_ENABLED" envDefault:"false"`

	Windows    anchor.Windows
	Seeder     content.SeederConfig
	Connection gateway.ConnectionConfig
	JetStream  events.JetStreamConfig
	Consumer   events.ConsumerConfig
}

// Config is the YAML file naming the content source and its settings.
type Config struct {
	Content struct {
		Source  string                       `yaml:"source"`
		Sources map[string]map[string]string `yaml:"sources"`
	} `yaml:"content"`
}

func loadAppConfig() (AppConfig, error) {
	cfg, err := env.ParseAs[AppConfig]()
	if err != nil {
		return AppConfig{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	switch cfg.StoreBackend {
	case backendMemory, backendPostgres, backendNATS:
	default:
		return AppConfig{}, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
	return cfg, nil
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if config.Content.Source == "" {
		return nil, fmt.Errorf("config has no content source")
	}

	return &config, nil
}

// sourceSettings returns the enabled source's block with ${VAR} references
// expanded from the environment.
func (c *Config) sourceSettings() map[string]string {
	out := make(map[string]string)
	for k, v := range c.Content.Sources[c.Content.Source] {
		out[k] = os.ExpandEnv(v)
	}
	return out
}
