package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/KevinKickass/OpenStimCore/internal/stimulation"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "WSS"

type Config struct {
	Stimulation StimulationConfig `mapstructure:"stimulation"`
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Journal     JournalConfig     `mapstructure:"journal"`
}

type StimulationConfig struct {
	SerialPort     string `mapstructure:"serial_port"`
	ConfigPath     string `mapstructure:"config_path"`
	TestMode       bool   `mapstructure:"test_mode"`
	MaxSetupTries  int    `mapstructure:"max_setup_tries"`
	TickIntervalMS int    `mapstructure:"tick_interval_ms"`
}

type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	GRPCPort        int           `mapstructure:"grpc_port"`
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig: File leer = nur stderr, "auto" = wss_<timestamp>.log
type LogConfig struct {
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	Development bool   `mapstructure:"development"`
}

// Auth Configuration
type AuthConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	JWTSecretEnv         string        `mapstructure:"jwt_secret_env"`
	AccessTokenTTL       time.Duration `mapstructure:"access_token_ttl"`
	OperatorUsername     string        `mapstructure:"operator_username"`
	OperatorPasswordHash string        `mapstructure:"operator_password_hash"`
	MachineTokenHashes   []string      `mapstructure:"machine_token_hashes"`
}

type JournalConfig struct {
	Driver         string `mapstructure:"driver"`
	Path           string `mapstructure:"path"`
	DSN            string `mapstructure:"dsn"`
	MaxConnections int    `mapstructure:"max_connections"`
	QueueSize      int    `mapstructure:"queue_size"`
}

// NewFlagSet defines the command-line flags understood by Load.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("serial", "", "Fully qualified serial device (auto-detect when empty)")
	fs.String("config", stimulation.DefaultConfigDir, "Config directory path")
	fs.Int("max-retries", stimulation.DefaultMaxSetupTries, "Max setup retries")
	fs.Int("tick", int(stimulation.DefaultTickInterval/time.Millisecond), "Tick interval in milliseconds")
	fs.Bool("test", false, "Enable simulated transport")
	fs.String("config-file", "", "Optional YAML service config")
	return fs
}

// Load merges defaults, the optional YAML file, WSS_ environment variables
// and the flags in fs (may be nil). An empty path skips the file.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Environment Variables mit Prefix WSS_, "stimulation.test_mode" -> WSS_STIMULATION_TEST_MODE
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if fs != nil {
		if err := bindFlags(v, fs); err != nil {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Defaults setzen
	v.SetDefault("stimulation.serial_port", "")
	v.SetDefault("stimulation.config_path", stimulation.DefaultConfigDir)
	v.SetDefault("stimulation.test_mode", false)
	v.SetDefault("stimulation.max_setup_tries", stimulation.DefaultMaxSetupTries)
	v.SetDefault("stimulation.tick_interval_ms", int(stimulation.DefaultTickInterval/time.Millisecond))

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.development", false)

	// Auth Defaults
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_secret_env", "WSS_JWT_SECRET")
	v.SetDefault("auth.access_token_ttl", "60m")
	v.SetDefault("auth.operator_username", "operator")
	v.SetDefault("auth.operator_password_hash", "")
	v.SetDefault("auth.machine_token_hashes", []string{})

	v.SetDefault("journal.driver", "none")
	v.SetDefault("journal.path", "journal.db")
	v.SetDefault("journal.dsn", "")
	v.SetDefault("journal.max_connections", 4)
	v.SetDefault("journal.queue_size", 256)
}

// bindFlags lets explicitly set flags win over file and env. Non-positive
// --max-retries and --tick keep whatever the lower sources provide.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for key, name := range map[string]string{
		"stimulation.serial_port": "serial",
		"stimulation.config_path": "config",
		"stimulation.test_mode":   "test",
	} {
		if f := fs.Lookup(name); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	for key, name := range map[string]string{
		"stimulation.max_setup_tries":  "max-retries",
		"stimulation.tick_interval_ms": "tick",
	} {
		if !fs.Changed(name) {
			continue
		}
		n, err := fs.GetInt(name)
		if err != nil {
			return fmt.Errorf("failed to read flag %s: %w", name, err)
		}
		if n > 0 {
			v.Set(key, n)
		}
	}
	return nil
}

// ConfigFileFlag returns --config-file, or "" when fs is nil.
func ConfigFileFlag(fs *pflag.FlagSet) string {
	if fs == nil {
		return ""
	}
	path, _ := fs.GetString("config-file")
	return path
}

// Options converts the section into controller options. Validation is left
// to stimulation.Options.Validate.
func (s StimulationConfig) Options() stimulation.Options {
	return stimulation.Options{
		SerialPort:    s.SerialPort,
		TestMode:      s.TestMode,
		MaxSetupTries: s.MaxSetupTries,
		ConfigPath:    s.ConfigPath,
		TickInterval:  time.Duration(s.TickIntervalMS) * time.Millisecond,
	}
}

// JWT Secret aus Environment Variable laden
func (a *AuthConfig) GetJWTSecret() string {
	envVar := a.JWTSecretEnv
	if envVar == "" {
		envVar = "WSS_JWT_SECRET" // Fallback
	}

	secret := os.Getenv(envVar)
	if secret == "" {
		// Development Fallback (MIT WARNING!)
		return devSecret
	}
	return secret
}

const devSecret = "dev-secret-change-in-production-min-32-chars"

// Helper um zu prüfen ob Production-Ready
func (a *AuthConfig) IsProductionReady() bool {
	secret := a.GetJWTSecret()
	return secret != devSecret && len(secret) >= 32
}
