package kpirewardd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"auxrewards/crypto"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

const (
	ReplayBackendMemory  = "memory"
	ReplayBackendLevelDB = "leveldb"
	ReplayBackendRedis   = "redis"
)

// Config captures the runtime configuration for kpirewardd.
type Config struct {
	ListenAddress   string          `yaml:"listen"`
	DataDir         string          `yaml:"data_dir"`
	LogLevel        string          `yaml:"log_level"`
	PauseOnStart    bool            `yaml:"pause"`
	ShutdownTimeout Duration        `yaml:"shutdown_timeout"`
	Program         ProgramConfig   `yaml:"program"`
	Token           TokenConfig     `yaml:"token"`
	Replay          ReplayConfig    `yaml:"replay"`
	Admin           AdminConfig     `yaml:"admin"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
	Batch           BatchConfig     `yaml:"batch"`
	Telemetry       TelemetryConfig `yaml:"telemetry"`
}

// ProgramConfig seeds the program record on first start. Existing records are
// never overwritten.
type ProgramConfig struct {
	Authority string `yaml:"authority"`
	Signer    string `yaml:"signer"`
}

// TokenConfig describes the reward token ledger.
type TokenConfig struct {
	Symbol        string `yaml:"symbol"`
	MintAuthority string `yaml:"mint_authority"`
}

// ReplayConfig selects where seen claim digests are remembered.
type ReplayConfig struct {
	Backend       string      `yaml:"backend"`
	Path          string      `yaml:"path"`
	PruneSchedule string      `yaml:"prune_schedule"`
	Redis         RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr        string `yaml:"addr"`
	Password    string `yaml:"password"`
	PasswordEnv string `yaml:"password_env"`
	DB          int    `yaml:"db"`
	Prefix      string `yaml:"prefix"`
}

// AdminConfig captures security settings for the admin API.
type AdminConfig struct {
	BearerToken     string `yaml:"bearer_token"`
	BearerTokenFile string `yaml:"bearer_token_file"`
	BearerTokenEnv  string `yaml:"bearer_token_env"`
}

// RateLimitConfig throttles claim submission per client address.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

type BatchConfig struct {
	MaxClaims int `yaml:"max_claims"`
	Workers   int `yaml:"workers"`
}

type TelemetryConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	Traces      bool    `yaml:"traces"`
	Metrics     bool    `yaml:"metrics"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// LoadConfig reads configuration from the supplied path.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Admin.normalise(); err != nil {
		return cfg, fmt.Errorf("admin security: %w", err)
	}
	if err := cfg.Replay.Redis.normalise(); err != nil {
		return cfg, fmt.Errorf("replay redis: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8088"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./kpireward-data"
	}
	if cfg.ShutdownTimeout.Duration == 0 {
		cfg.ShutdownTimeout.Duration = 10 * time.Second
	}
	cfg.Token.Symbol = strings.ToUpper(strings.TrimSpace(cfg.Token.Symbol))
	if cfg.Token.Symbol == "" {
		cfg.Token.Symbol = "AUX"
	}
	if strings.TrimSpace(cfg.Token.MintAuthority) == "" {
		cfg.Token.MintAuthority = cfg.Program.Authority
	}
	cfg.Replay.Backend = strings.ToLower(strings.TrimSpace(cfg.Replay.Backend))
	if cfg.Replay.Backend == "" {
		cfg.Replay.Backend = ReplayBackendLevelDB
	}
	if cfg.Replay.Path == "" {
		cfg.Replay.Path = filepath.Join(cfg.DataDir, "replay")
	}
	if cfg.Replay.PruneSchedule == "" {
		cfg.Replay.PruneSchedule = "@every 1m"
	}
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit.RequestsPerMinute = 120
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 20
	}
	if cfg.Batch.MaxClaims <= 0 {
		cfg.Batch.MaxClaims = 50
	}
	if cfg.Batch.Workers <= 0 {
		cfg.Batch.Workers = 8
	}
}

func validateConfig(cfg Config) error {
	if _, err := crypto.ParseIdentity(cfg.Program.Authority); err != nil {
		return fmt.Errorf("program.authority: %w", err)
	}
	if strings.TrimSpace(cfg.Program.Signer) != "" {
		if _, err := crypto.ParseIdentity(cfg.Program.Signer); err != nil {
			return fmt.Errorf("program.signer: %w", err)
		}
	}
	if _, err := crypto.ParseIdentity(cfg.Token.MintAuthority); err != nil {
		return fmt.Errorf("token.mint_authority: %w", err)
	}
	switch cfg.Replay.Backend {
	case ReplayBackendMemory, ReplayBackendLevelDB:
	case ReplayBackendRedis:
		if strings.TrimSpace(cfg.Replay.Redis.Addr) == "" {
			return fmt.Errorf("replay.redis.addr must be configured for the redis backend")
		}
	default:
		return fmt.Errorf("unknown replay backend %q", cfg.Replay.Backend)
	}
	if _, err := cron.NewParser(cronParseOptions).Parse(cfg.Replay.PruneSchedule); err != nil {
		return fmt.Errorf("replay.prune_schedule: %w", err)
	}
	if cfg.Admin.BearerToken == "" {
		return fmt.Errorf("admin bearer token must be configured")
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0,1]")
	}
	return nil
}

func (a *AdminConfig) normalise() error {
	if a == nil {
		return fmt.Errorf("admin configuration missing")
	}
	token := strings.TrimSpace(a.BearerToken)
	switch {
	case strings.TrimSpace(a.BearerTokenFile) != "":
		contents, err := os.ReadFile(strings.TrimSpace(a.BearerTokenFile))
		if err != nil {
			return fmt.Errorf("read bearer_token_file: %w", err)
		}
		token = strings.TrimSpace(string(contents))
	case strings.TrimSpace(a.BearerTokenEnv) != "":
		token = strings.TrimSpace(os.Getenv(strings.TrimSpace(a.BearerTokenEnv)))
		if token == "" {
			return fmt.Errorf("bearer_token_env %s is empty", a.BearerTokenEnv)
		}
	}
	a.BearerToken = token
	return nil
}

func (r *RedisConfig) normalise() error {
	r.Addr = strings.TrimSpace(r.Addr)
	if env := strings.TrimSpace(r.PasswordEnv); env != "" && r.Password == "" {
		r.Password = os.Getenv(env)
	}
	if r.DB < 0 {
		return fmt.Errorf("db must not be negative")
	}
	return nil
}
