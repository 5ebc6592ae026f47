package config

import (
	"context"
	"time"
)

// Config is the complete, immutable runtime configuration of the bot. It is
// built once at startup and passed to constructors.
type Config struct {
	Discord    DiscordConfig    `koanf:"discord"`
	Registry   RegistryConfig   `koanf:"registry"`
	Store      StoreConfig      `koanf:"store"`
	Cooldown   CooldownConfig   `koanf:"cooldown"`
	Server     ServerConfig     `koanf:"server"`
	Commands   CommandsConfig   `koanf:"commands"`
	Keys       KeysConfig       `koanf:"keys"`
	Script     ScriptConfig     `koanf:"script"`
	Jobs       JobsConfig       `koanf:"jobs"`
	Monitoring MonitoringConfig `koanf:"monitoring"`
	Runtime    RuntimeConfig    `koanf:"runtime"`
}

// DiscordConfig contains gateway credentials and the guild-scoped identifiers.
type DiscordConfig struct {
	Enabled        bool            `koanf:"enabled"          env:"DISCORD_ENABLED"`
	Token          SensitiveString `koanf:"token"            env:"TOKEN"          expect:"required_if=Enabled true" sensitive:"true"`
	ApplicationID  string          `koanf:"application_id"   env:"CLIENT_ID"      expect:"required_if=Enabled true" validate:"omitempty,snowflake"`
	GuildID        string          `koanf:"guild_id"         env:"GUILD_ID"       expect:"required"                 validate:"omitempty,snowflake"`
	BenefitRoleID  string          `koanf:"benefit_role_id"  env:"BUYER_ROLE_ID"  expect:"required"                 validate:"omitempty,snowflake"`
	AdminID        string          `koanf:"admin_id"         env:"OWNER_ID"       expect:"required"                 validate:"omitempty,snowflake"`
	AuditChannelID string          `koanf:"audit_channel_id" env:"LOG_CHANNEL_ID" expect:"required"                 validate:"omitempty,snowflake"`
}

// RegistryConfig selects and configures the remote key registry.
type RegistryConfig struct {
	Driver        string          `koanf:"driver"         env:"REGISTRY_DRIVER"         validate:"oneof=github file"`
	Token         SensitiveString `koanf:"token"          env:"GITHUB_TOKEN"            expect:"required_if=Driver github" sensitive:"true"`
	Owner         string          `koanf:"owner"          env:"GITHUB_REPO_OWNER"       expect:"required_if=Driver github"`
	Repo          string          `koanf:"repo"           env:"GITHUB_REPO_NAME"        expect:"required_if=Driver github"`
	Path          string          `koanf:"path"           env:"GITHUB_KEYS_PATH"        expect:"required_if=Driver github"`
	Branch        string          `koanf:"branch"         env:"GITHUB_BRANCH"`
	BaseURL       string          `koanf:"base_url"       env:"GITHUB_API_URL"          validate:"omitempty,url"`
	FilePath      string          `koanf:"file_path"      env:"REGISTRY_FILE"           validate:"required_if=Driver file"`
	MaxRetries    uint64          `koanf:"max_retries"    env:"REGISTRY_MAX_RETRIES"    validate:"max=10"`
	RetryBackoff  time.Duration   `koanf:"retry_backoff"  env:"REGISTRY_RETRY_BACKOFF"  validate:"min=0"`
	WriteInterval time.Duration   `koanf:"write_interval" env:"REGISTRY_WRITE_INTERVAL" validate:"min=0"`
	CacheTTL      time.Duration   `koanf:"cache_ttl"      env:"REGISTRY_CACHE_TTL"      validate:"min=0"`
	Timeout       time.Duration   `koanf:"timeout"        env:"REGISTRY_TIMEOUT"        validate:"min=0"`
}

// StoreConfig locates the local ledger and redemption files.
type StoreConfig struct {
	DataDir         string `koanf:"data_dir"         env:"DATA_DIR"         validate:"required"`
	LedgerFile      string `koanf:"ledger_file"      env:"LEDGER_FILE"      validate:"required"`
	RedemptionsFile string `koanf:"redemptions_file" env:"REDEMPTIONS_FILE" validate:"required"`
	LockFile        string `koanf:"lock_file"        env:"LOCK_FILE"        validate:"required"`
}

// CooldownConfig selects where reset cooldowns are tracked.
type CooldownConfig struct {
	Driver   string          `koanf:"driver"    env:"COOLDOWN_DRIVER"    validate:"oneof=memory redis"`
	RedisURL SensitiveString `koanf:"redis_url" env:"COOLDOWN_REDIS_URL" expect:"required_if=Driver redis" sensitive:"true"`
	Prefix   string          `koanf:"prefix"    env:"COOLDOWN_PREFIX"`
}

// ServerConfig contains the uptime/health HTTP server configuration.
type ServerConfig struct {
	Enabled bool   `koanf:"enabled" env:"SERVER_ENABLED"`
	Host    string `koanf:"host"    env:"SERVER_HOST"`
	Port    int    `koanf:"port"    env:"PORT"           validate:"min=1,max=65535"`
}

// CommandsConfig tunes the command dispatcher.
type CommandsConfig struct {
	RevokeRequiresAdmin bool          `koanf:"revoke_requires_admin" env:"REVOKE_REQUIRES_ADMIN"`
	RateLimit           int64         `koanf:"rate_limit"            env:"COMMAND_RATE_LIMIT"    validate:"min=0"`
	RatePeriod          time.Duration `koanf:"rate_period"           env:"COMMAND_RATE_PERIOD"   validate:"min=0"`
}

// KeysConfig shapes generated keys.
type KeysConfig struct {
	Prefix string `koanf:"prefix" env:"KEY_PREFIX"`
	Length int    `koanf:"length" env:"KEY_LENGTH" validate:"min=8,max=64"`
}

// ScriptConfig holds the personal script template served by get_script.
type ScriptConfig struct {
	Template string `koanf:"template" env:"SCRIPT_TEMPLATE" validate:"required"`
}

// JobsConfig holds cron schedules for background jobs. An empty schedule
// disables the job.
type JobsConfig struct {
	DriftCheck    string `koanf:"drift_check"    env:"DRIFT_CHECK_SCHEDULE"`
	CooldownPrune string `koanf:"cooldown_prune" env:"COOLDOWN_PRUNE_SCHEDULE"`
}

// MonitoringConfig controls the metrics exporter served by the HTTP server.
type MonitoringConfig struct {
	Enabled bool   `koanf:"enabled" env:"MONITORING_ENABLED"`
	Path    string `koanf:"path"    env:"MONITORING_PATH"    validate:"required,startswith=/,excludes=?"`
}

// RuntimeConfig contains process-level settings.
type RuntimeConfig struct {
	Environment string `koanf:"environment" env:"RUNTIME_ENVIRONMENT" validate:"oneof=development production"`
	LogLevel    string `koanf:"log_level"   env:"LOG_LEVEL"           validate:"oneof=debug info warn error"`
	LogJSON     bool   `koanf:"log_json"    env:"LOG_JSON"`
}

// DefaultScriptTemplate reproduces the loader snippet handed to redeemers.
const DefaultScriptTemplate = `script_key="{{ .Key }}"
loadstring(game:HttpGet("https://pastebin.com/raw/EAKCqKag"))()`

// Service defines the configuration loading interface.
type Service interface {
	// Load builds a Config from defaults, the given sources and the process
	// environment, then validates it.
	Load(ctx context.Context, sources ...Source) (*Config, error)
	// Validate checks hard constraints; missing optional values are reported
	// by Warnings instead.
	Validate(config *Config) error
}

// Source defines the interface for configuration sources.
type Source interface {
	// Load reads configuration from the source as a nested map keyed by koanf paths.
	Load() (map[string]any, error)
	// Type returns the source type identifier.
	Type() SourceType
}

// SourceType identifies the type of configuration source.
type SourceType string

const (
	SourceCLI     SourceType = "cli"
	SourceYAML    SourceType = "yaml"
	SourceDotenv  SourceType = "dotenv"
	SourceEnv     SourceType = "env"
	SourceDefault SourceType = "default"
)

// Load loads configuration using the default service.
func Load(ctx context.Context, sources ...Source) (*Config, error) {
	return NewService().Load(ctx, sources...)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Discord: DiscordConfig{
			Enabled: true,
		},
		Registry: RegistryConfig{
			Driver:        "github",
			Path:          "keys.json",
			FilePath:      "registry.json",
			MaxRetries:    3,
			RetryBackoff:  500 * time.Millisecond,
			WriteInterval: time.Second,
			CacheTTL:      30 * time.Second,
			Timeout:       15 * time.Second,
		},
		Store: StoreConfig{
			DataDir:         ".",
			LedgerFile:      "keys.txt",
			RedemptionsFile: "redeemedKeys.json",
			LockFile:        ".keybot.lock",
		},
		Cooldown: CooldownConfig{
			Driver: "memory",
			Prefix: "keybot:cooldown:",
		},
		Server: ServerConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    3000,
		},
		Commands: CommandsConfig{
			RevokeRequiresAdmin: true,
			RateLimit:           20,
			RatePeriod:          time.Minute,
		},
		Keys: KeysConfig{
			Prefix: "|Aethra|",
			Length: 16,
		},
		Script: ScriptConfig{
			Template: DefaultScriptTemplate,
		},
		Jobs: JobsConfig{
			DriftCheck:    "@every 1h",
			CooldownPrune: "@every 10m",
		},
		Monitoring: MonitoringConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Runtime: RuntimeConfig{
			Environment: "development",
			LogLevel:    "info",
		},
	}
}
