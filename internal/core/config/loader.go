package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/vietddude/ivawatch/internal/core/domain"
	redisclient "github.com/vietddude/ivawatch/internal/infra/redis"
	"github.com/vietddude/ivawatch/internal/infra/rpc/routing"
)

// Defaults applied by Load.
const (
	DefaultPort         = 8080
	DefaultNetwork      = "pwr"
	DefaultRPCTimeout   = 10 * time.Second
	DefaultHeadCacheTTL = 500 * time.Millisecond
)

// LoadEnv loads variables from the given .env files, or ./.env when none
// are given. A missing default file is not an error.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); errors.Is(err, os.ErrNotExist) {
			return nil
		}
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML content, expanding environment variables and applying defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *AppConfig) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.RPC.Network == "" {
		cfg.RPC.Network = DefaultNetwork
	}
	if cfg.RPC.Timeout == 0 {
		cfg.RPC.Timeout = DefaultRPCTimeout
	}
	if cfg.RPC.Retry.MaxAttempts == 0 {
		cfg.RPC.Retry = routing.DefaultRetryConfig
	}
	for i := range cfg.RPC.Providers {
		if cfg.RPC.Providers[i].Name == "" {
			cfg.RPC.Providers[i].Name = fmt.Sprintf("%s-%d", cfg.RPC.Network, i)
		}
	}
	if cfg.HeadCacheTTL == 0 {
		cfg.HeadCacheTTL = DefaultHeadCacheTTL
	}
	if cfg.Checkpoint.Backend == "" {
		cfg.Checkpoint.Backend = domain.CheckpointMemory
	}
	if cfg.Redis.URL != "" && cfg.Redis.LeaseTTL == 0 {
		cfg.Redis.LeaseTTL = redisclient.DefaultLeaseTTL
	}

	// Poll interval stays as configured; zero is resolved by the engine
	for i := range cfg.Subscriptions {
		if len(cfg.Subscriptions[i].Sinks) == 0 {
			cfg.Subscriptions[i].Sinks = []domain.SinkType{domain.SinkLog}
		}
	}
}

// Validate reports configuration that cannot be run.
func (cfg *AppConfig) Validate() error {
	var errs []error

	if len(cfg.RPC.Providers) == 0 {
		errs = append(errs, errors.New("rpc: at least one provider is required"))
	}
	for i, p := range cfg.RPC.Providers {
		if p.URL == "" {
			errs = append(errs, fmt.Errorf("rpc.providers[%d]: url is required", i))
		}
	}

	switch cfg.Checkpoint.Backend {
	case domain.CheckpointMemory:
	case domain.CheckpointRedis:
		if cfg.Redis.URL == "" {
			errs = append(errs, errors.New("checkpoint: redis backend requires redis.url"))
		}
	case domain.CheckpointPostgres:
		if cfg.Database.URL == "" {
			errs = append(errs, errors.New("checkpoint: postgres backend requires database.url"))
		}
	default:
		errs = append(errs, fmt.Errorf("checkpoint: unknown backend %q", cfg.Checkpoint.Backend))
	}

	seen := make(map[uint64]bool)
	for i, sub := range cfg.Subscriptions {
		if seen[sub.VMID] {
			errs = append(errs, fmt.Errorf("subscriptions[%d]: duplicate vm_id %d", i, sub.VMID))
		}
		seen[sub.VMID] = true

		if sub.PollInterval < 0 {
			errs = append(errs, fmt.Errorf("subscriptions[%d]: poll_interval must not be negative", i))
		}
		for _, sink := range sub.Sinks {
			switch sink {
			case domain.SinkLog:
			case domain.SinkStore:
				if cfg.Database.URL == "" {
					errs = append(errs, fmt.Errorf("subscriptions[%d]: store sink requires database.url", i))
				}
			default:
				errs = append(errs, fmt.Errorf("subscriptions[%d]: unknown sink %q", i, sink))
			}
		}
		if sub.RetentionPeriod > 0 && !sub.HasSink(domain.SinkStore) {
			errs = append(errs, fmt.Errorf("subscriptions[%d]: retention_period requires the store sink", i))
		}
	}

	return errors.Join(errs...)
}
