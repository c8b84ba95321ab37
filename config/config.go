// Package config loads worker settings from an optional TOML file and
// WORKER_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "WORKER_"

// Settings holds the worker configuration.
type Settings struct {
	RedisHost     string `toml:"redis_host"`
	RedisPort     int    `toml:"redis_port"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`

	// MaxLabels bounds the affinity cache. Must be > 0.
	MaxLabels int `toml:"max_labels"`

	// ResultTTL is how long a published result stays retrievable, in seconds.
	ResultTTL int `toml:"result_ttl"`

	LogLevel string `toml:"log_level"`

	// Bus selects the pub/sub backend: redis, nats or memory.
	Bus     string `toml:"bus"`
	NATSURL string `toml:"nats_url"`

	// HeartbeatInterval in seconds. Zero disables heartbeats.
	HeartbeatInterval int `toml:"heartbeat_interval"`

	// Simulated label acquisition cost, in seconds.
	AcquireMean   float64 `toml:"acquire_mean"`
	AcquireStdDev float64 `toml:"acquire_stddev"`
	AcquireMin    float64 `toml:"acquire_min"`

	ShutdownTimeout int `toml:"shutdown_timeout"`

	// OTLP span export. Tracing is disabled when OTelEndpoint is empty.
	OTelEndpoint string `toml:"otel_endpoint"`
	OTelProtocol string `toml:"otel_protocol"`
	OTelInsecure bool   `toml:"otel_insecure"`
}

// Default returns the settings used when nothing is configured.
func Default() Settings {
	return Settings{
		RedisHost:         "localhost",
		RedisPort:         6379,
		MaxLabels:         2,
		ResultTTL:         1800,
		LogLevel:          "info",
		Bus:               "redis",
		NATSURL:           "nats://127.0.0.1:4222",
		HeartbeatInterval: 10,
		AcquireMean:       2.0,
		AcquireStdDev:     0.25,
		AcquireMin:        0.2,
		ShutdownTimeout:   30,
		OTelProtocol:      "grpc",
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Settings, error) {
	s := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &s); err != nil {
			return s, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := s.applyEnv(os.LookupEnv); err != nil {
		return s, err
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// applyEnv overrides fields from WORKER_<NAME> variables.
func (s *Settings) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	integer := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}
	float := func(name string, dst *float64) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = f
		return nil
	}

	str("REDIS_HOST", &s.RedisHost)
	str("REDIS_PASSWORD", &s.RedisPassword)
	str("LOG_LEVEL", &s.LogLevel)
	str("BUS", &s.Bus)
	str("NATS_URL", &s.NATSURL)
	str("OTEL_ENDPOINT", &s.OTelEndpoint)
	str("OTEL_PROTOCOL", &s.OTelProtocol)

	if v, ok := lookup(EnvPrefix + "OTEL_INSECURE"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sOTEL_INSECURE: %w", EnvPrefix, err)
		}
		s.OTelInsecure = b
	}

	for name, dst := range map[string]*int{
		"REDIS_PORT":         &s.RedisPort,
		"REDIS_DB":           &s.RedisDB,
		"MAX_LABELS":         &s.MaxLabels,
		"RESULT_TTL":         &s.ResultTTL,
		"HEARTBEAT_INTERVAL": &s.HeartbeatInterval,
		"SHUTDOWN_TIMEOUT":   &s.ShutdownTimeout,
	} {
		if err := integer(name, dst); err != nil {
			return err
		}
	}
	for name, dst := range map[string]*float64{
		"ACQUIRE_MEAN":   &s.AcquireMean,
		"ACQUIRE_STDDEV": &s.AcquireStdDev,
		"ACQUIRE_MIN":    &s.AcquireMin,
	} {
		if err := float(name, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks value ranges.
func (s Settings) Validate() error {
	if s.MaxLabels <= 0 {
		return fmt.Errorf("max_labels must be > 0, got %d", s.MaxLabels)
	}
	if s.ResultTTL <= 0 {
		return fmt.Errorf("result_ttl must be > 0, got %d", s.ResultTTL)
	}
	if s.RedisPort <= 0 || s.RedisPort > 65535 {
		return fmt.Errorf("redis_port out of range: %d", s.RedisPort)
	}
	switch s.Bus {
	case "redis", "nats", "memory":
	default:
		return fmt.Errorf("unknown bus backend %q", s.Bus)
	}
	if s.HeartbeatInterval < 0 {
		return fmt.Errorf("heartbeat_interval must be >= 0, got %d", s.HeartbeatInterval)
	}
	if s.AcquireStdDev < 0 || s.AcquireMin < 0 {
		return fmt.Errorf("acquire_stddev and acquire_min must be >= 0")
	}
	switch s.OTelProtocol {
	case "grpc", "http":
	default:
		return fmt.Errorf("unknown otel_protocol %q", s.OTelProtocol)
	}
	return nil
}

// RedisAddr returns host:port.
func (s Settings) RedisAddr() string {
	return fmt.Sprintf("%s:%d", s.RedisHost, s.RedisPort)
}

// ResultTTLDuration returns ResultTTL as a duration.
func (s Settings) ResultTTLDuration() time.Duration {
	return time.Duration(s.ResultTTL) * time.Second
}

// HeartbeatEvery returns HeartbeatInterval as a duration.
func (s Settings) HeartbeatEvery() time.Duration {
	return time.Duration(s.HeartbeatInterval) * time.Second
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a duration.
func (s Settings) ShutdownTimeoutDuration() time.Duration {
	return time.Duration(s.ShutdownTimeout) * time.Second
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

// AcquireDelays returns mean, standard deviation and floor of the simulated
// label acquisition delay.
func (s Settings) AcquireDelays() (mean, stddev, floor time.Duration) {
	return seconds(s.AcquireMean), seconds(s.AcquireStdDev), seconds(s.AcquireMin)
}
