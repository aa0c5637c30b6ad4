package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const (
	DefaultPort        = 18789
	DefaultBackendPort = 18790
	DefaultTimeout     = "120s"
	DefaultHost        = "127.0.0.1"

	// BackendHost is fixed: the gateway always runs on the same machine.
	BackendHost = "127.0.0.1"
)

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
}

type BackendConfig struct {
	Port          int    `mapstructure:"port"`
	Timeout       string `mapstructure:"timeout"`
	ProbeInterval string `mapstructure:"probe_interval"`
}

type StaticConfig struct {
	Page string `mapstructure:"page"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type MetricsConfig struct {
	ReportInterval string `mapstructure:"report_interval"`
}

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Backend BackendConfig `mapstructure:"backend"`
	Static  StaticConfig  `mapstructure:"static"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// SetDefaults registers every key with its default on v. Keys must be
// registered for AutomaticEnv to reach them through Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", DefaultHost)
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("backend.port", DefaultBackendPort)
	v.SetDefault("backend.timeout", DefaultTimeout)
	v.SetDefault("backend.probe_interval", "15s")
	v.SetDefault("static.page", "public/index.html")
	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("metrics.report_interval", "1m")
}

// Load reads configuration from an optional config.yaml, the environment
// and whatever flags have been bound to v, in increasing precedence.
// configFile, when non-empty, replaces the search path.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Short names the gateway's service units already export.
	aliases := map[string][]string{
		"server.port":  {"SERVER_PORT", "PORT"},
		"backend.port": {"BACKEND_PORT", "GATEWAY_PORT"},
		"static.page":  {"STATIC_PAGE", "CHAT_PAGE"},
	}
	for key, names := range aliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Debug("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Host,
						validation.Required,
						validation.By(validateLoopback),
					),
					validation.Field(&sc.Port,
						validation.Required,
						validation.Min(1),
						validation.Max(65535),
						validation.NotIn(c.Backend.Port).Error("must differ from the backend port"),
					),
				)
			}),
		),
		validation.Field(&c.Backend,
			validation.Required,
			validation.By(func(value interface{}) error {
				bc, ok := value.(BackendConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a BackendConfig")
				}
				return validation.ValidateStruct(&bc,
					validation.Field(&bc.Port,
						validation.Required,
						validation.Min(1),
						validation.Max(65535),
					),
					validation.Field(&bc.Timeout,
						validation.Required,
						validation.By(validatePositiveDuration),
					),
					validation.Field(&bc.ProbeInterval,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.Static,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(StaticConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a StaticConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Page, validation.Required),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.Metrics,
			validation.By(func(value interface{}) error {
				mc, ok := value.(MetricsConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a MetricsConfig")
				}
				return validation.ValidateStruct(&mc,
					validation.Field(&mc.ReportInterval,
						validation.By(validateDuration),
					),
				)
			}),
		),
	)
}

// ListenAddr is the front door address, always on the loopback interface.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// BackendAddr is the gateway's loopback host:port.
func (c *Config) BackendAddr() string {
	return net.JoinHostPort(BackendHost, strconv.Itoa(c.Backend.Port))
}

func (c *Config) BackendTimeout() time.Duration {
	return mustDuration(c.Backend.Timeout)
}

// ProbeInterval returns zero when gateway probing is disabled.
func (c *Config) ProbeInterval() time.Duration {
	return mustDuration(c.Backend.ProbeInterval)
}

// ReportInterval returns zero when periodic metrics reports are disabled.
func (c *Config) ReportInterval() time.Duration {
	return mustDuration(c.Metrics.ReportInterval)
}

// mustDuration is only called on validated values; empty means disabled.
func mustDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

func validateLoopback(value interface{}) error {
	host, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if host == "localhost" {
		return nil
	}

	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return validation.NewError("validation_not_loopback", "must be a loopback address")
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if durationStr == "" {
		return nil
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}

	if d < 0 {
		return validation.NewError("validation_negative_duration", "must not be negative")
	}

	return nil
}

func validatePositiveDuration(value interface{}) error {
	if err := validateDuration(value); err != nil {
		return err
	}

	if d, _ := time.ParseDuration(value.(string)); d <= 0 {
		return validation.NewError("validation_invalid_timeout", "must be greater than zero")
	}

	return nil
}
