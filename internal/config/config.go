// Package config loads the daemon configuration from a YAML file (JSON
// accepted as a fallback), expands ${VAR} references against the
// environment, and lets VERDANDI_* variables override the secret-bearing
// fields so credentials can stay out of the file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/user/verdandi/internal/notification"
	"github.com/user/verdandi/pkg/queue"
	"github.com/user/verdandi/pkg/secrets"
)

// Duration decodes "90s" style strings and bare integers (seconds) from
// YAML and JSON.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		return d.parse(s)
	}
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	return fmt.Errorf("invalid duration %q", value.Value)
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return d.parse(s)
	}
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	return fmt.Errorf("invalid duration %s", data)
}

func (d *Duration) parse(s string) error {
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	Queue     queue.Config    `yaml:"queue" json:"queue"`
	Scheduler SchedulerConfig `yaml:"scheduler" json:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	OTLP      OTLPConfig      `yaml:"otlp" json:"otlp"`
	Crypto    CryptoConfig    `yaml:"crypto" json:"crypto"`
	Secrets   secrets.Config  `yaml:"secrets" json:"secrets"`
	AI        AIConfig        `yaml:"ai" json:"ai"`
	Files     FilesConfig     `yaml:"files" json:"files"`

	Notifications notification.Config `yaml:"notifications" json:"notifications"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" json:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn" json:"dsn"`
}

type SchedulerConfig struct {
	PollInterval       Duration `yaml:"poll_interval" json:"poll_interval"`
	CleanupInterval    Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
	RevalidateInterval Duration `yaml:"revalidate_interval" json:"revalidate_interval"`
	Retention          Duration `yaml:"retention" json:"retention"`
	KeepRecent         int      `yaml:"keep_recent" json:"keep_recent"`
	Workers            int      `yaml:"workers" json:"workers"`
	RatePerSecond      float64  `yaml:"rate_per_second" json:"rate_per_second"`
	Burst              int      `yaml:"burst" json:"burst"`
}

type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

type OTLPConfig struct {
	Endpoint    string            `yaml:"endpoint" json:"endpoint"` // empty disables export
	Protocol    string            `yaml:"protocol" json:"protocol"` // "grpc" or "http"
	Insecure    bool              `yaml:"insecure" json:"insecure"`
	ServiceName string            `yaml:"service_name" json:"service_name"`
	Headers     map[string]string `yaml:"headers" json:"headers"`
}

type CryptoConfig struct {
	MasterKey string `yaml:"master_key" json:"master_key"`
}

type AIConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	Model   string `yaml:"model" json:"model"`
}

type FilesConfig struct {
	BaseDir string `yaml:"base_dir" json:"base_dir"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Addr: ":8080"},
		Storage: StorageConfig{Driver: "sqlite", DSN: "verdandi.db"},
		Queue:   queue.Config{Kind: "memory", Buffer: 64},
		Scheduler: SchedulerConfig{
			PollInterval:       Duration(time.Minute),
			CleanupInterval:    Duration(24 * time.Hour),
			RevalidateInterval: Duration(time.Hour),
			Retention:          Duration(30 * 24 * time.Hour),
			KeepRecent:         1000,
			Workers:            4,
			RatePerSecond:      5,
			Burst:              10,
		},
		Logging: LoggingConfig{Level: "info"},
		OTLP:    OTLPConfig{Protocol: "grpc", ServiceName: "verdandi"},
	}
}

// Load reads the file at path. An empty path or a missing file yields the
// defaults; either way VERDANDI_* environment overrides apply last.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else {
			content := []byte(SubstituteEnvVars(string(data)))
			if err := yaml.Unmarshal(content, cfg); err != nil {
				// Try JSON if YAML fails
				if jsonErr := json.Unmarshal(content, cfg); jsonErr != nil {
					return nil, fmt.Errorf("failed to decode config file (tried YAML and JSON): %w", err)
				}
			}
		}
	}
	cfg.normalize()
	cfg.applyEnv()
	return cfg, nil
}

// normalize fills zero-valued fields back in with their defaults so a
// partial file stays usable.
func (c *Config) normalize() {
	def := Default()
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = def.Storage.Driver
	}
	if c.Storage.DSN == "" {
		c.Storage.DSN = def.Storage.DSN
	}
	if c.Queue.Kind == "" {
		c.Queue.Kind = def.Queue.Kind
	}
	if c.Queue.Buffer <= 0 {
		c.Queue.Buffer = def.Queue.Buffer
	}
	if c.Scheduler.PollInterval <= 0 {
		c.Scheduler.PollInterval = def.Scheduler.PollInterval
	}
	if c.Scheduler.CleanupInterval <= 0 {
		c.Scheduler.CleanupInterval = def.Scheduler.CleanupInterval
	}
	if c.Scheduler.RevalidateInterval <= 0 {
		c.Scheduler.RevalidateInterval = def.Scheduler.RevalidateInterval
	}
	if c.Scheduler.Retention <= 0 {
		c.Scheduler.Retention = def.Scheduler.Retention
	}
	if c.Scheduler.KeepRecent <= 0 {
		c.Scheduler.KeepRecent = def.Scheduler.KeepRecent
	}
	if c.Scheduler.Workers <= 0 {
		c.Scheduler.Workers = def.Scheduler.Workers
	}
	if c.Scheduler.RatePerSecond <= 0 {
		c.Scheduler.RatePerSecond = def.Scheduler.RatePerSecond
	}
	if c.Scheduler.Burst <= 0 {
		c.Scheduler.Burst = def.Scheduler.Burst
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.OTLP.Protocol == "" {
		c.OTLP.Protocol = def.OTLP.Protocol
	}
	if c.OTLP.ServiceName == "" {
		c.OTLP.ServiceName = def.OTLP.ServiceName
	}
}

// applyEnv gives VERDANDI_* variables the last word on secret-bearing and
// deployment-specific fields.
func (c *Config) applyEnv() {
	if v := os.Getenv("VERDANDI_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("VERDANDI_DB_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("VERDANDI_DB_DSN"); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv("VERDANDI_MASTER_KEY"); v != "" {
		c.Crypto.MasterKey = v
	}
	if v := os.Getenv("VERDANDI_VAULT_TOKEN"); v != "" {
		c.Secrets.Vault.Token = v
		c.Secrets.OpenBao.Token = v
	}
	if v := os.Getenv("VERDANDI_REDIS_ADDR"); v != "" {
		c.Queue.Addr = v
	}
	if v := os.Getenv("VERDANDI_REDIS_PASSWORD"); v != "" {
		c.Queue.Password = v
	}
	if v := os.Getenv("VERDANDI_OTLP_ENDPOINT"); v != "" {
		c.OTLP.Endpoint = v
	}
}

var envVarRe = regexp.MustCompile(`\$\{(\w+)\}`)

// SubstituteEnvVars expands ${VAR} references. Unset variables expand to
// the empty string.
func SubstituteEnvVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(envVarRe.FindStringSubmatch(m)[1])
	})
}
