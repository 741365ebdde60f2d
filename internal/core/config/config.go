package config

import (
	"time"

	"github.com/vietddude/ivawatch/internal/core/domain"
	redisclient "github.com/vietddude/ivawatch/internal/infra/redis"
	"github.com/vietddude/ivawatch/internal/infra/rpc/routing"
	"github.com/vietddude/ivawatch/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server        ServerConfig         `yaml:"server"`
	Logging       LoggingConfig        `yaml:"logging"`
	RPC           RPCConfig            `yaml:"rpc"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
	Checkpoint    CheckpointConfig     `yaml:"checkpoint"`
	Redis         redisclient.Config   `yaml:"redis"`
	Database      postgres.Config      `yaml:"database"`
	HeadCacheTTL  time.Duration        `yaml:"head_cache_ttl"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// RPCConfig holds the PWR RPC endpoints.
type RPCConfig struct {
	Network   string              `yaml:"network"`
	Timeout   time.Duration       `yaml:"timeout"`
	Providers []ProviderConfig    `yaml:"providers"`
	Retry     routing.RetryConfig `yaml:"retry"`
}

// ProviderConfig holds settings for an RPC provider.
type ProviderConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// SubscriptionConfig holds settings for one VM id subscription.
type SubscriptionConfig struct {
	VMID            uint64            `yaml:"vm_id"`
	StartingBlock   uint64            `yaml:"starting_block"`
	PollInterval    time.Duration     `yaml:"poll_interval"`
	Sinks           []domain.SinkType `yaml:"sinks"`
	RetentionPeriod time.Duration     `yaml:"retention_period"` // 0 = infinite
	Resume          *bool             `yaml:"resume"`           // default true
	BatchSize       int               `yaml:"batch_size"`
	Senders         []string          `yaml:"senders"` // empty = all senders
}

// ShouldResume reports whether a stored checkpoint overrides StartingBlock.
func (c SubscriptionConfig) ShouldResume() bool {
	return c.Resume == nil || *c.Resume
}

// HasSink reports whether the subscription delivers to sink.
func (c SubscriptionConfig) HasSink(sink domain.SinkType) bool {
	for _, s := range c.Sinks {
		if s == sink {
			return true
		}
	}
	return false
}

// CheckpointConfig selects the checkpoint backend.
type CheckpointConfig struct {
	Backend domain.CheckpointBackend `yaml:"backend"`
}
