// Package config resolves runtime settings from defaults, an optional YAML
// file, PERF_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Event transports.
const (
	TransportInline = "inline"
	TransportKafka  = "kafka"
)

type Config struct {
	HTTP    HTTPConfig
	DB      DBConfig
	Log     LogConfig
	Events  EventsConfig
	Kafka   KafkaConfig
	Rebuild RebuildConfig
}

type HTTPConfig struct {
	Port int
}

type DBConfig struct {
	// Path is the SQLite file; empty selects the in-memory store.
	Path string
}

type LogConfig struct {
	Level  string
	Format string
}

type EventsConfig struct {
	Transport string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	Group   string
}

type RebuildConfig struct {
	// Interval between full rebuilds of derived records; zero disables.
	Interval time.Duration
}

// NewViper returns a viper instance with defaults and environment binding set.
// Flags are bound by the caller with BindPFlag.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("http.port", 8080)
	v.SetDefault("db.path", "timesheet.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("events.transport", TransportInline)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "timesheet.recompute")
	v.SetDefault("kafka.group", "perf-engine")
	v.SetDefault("rebuild.interval", time.Duration(0))

	v.SetEnvPrefix("PERF")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file and returns the resolved settings.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	cfg := Config{
		HTTP:   HTTPConfig{Port: v.GetInt("http.port")},
		DB:     DBConfig{Path: v.GetString("db.path")},
		Log:    LogConfig{Level: v.GetString("log.level"), Format: v.GetString("log.format")},
		Events: EventsConfig{Transport: strings.ToLower(v.GetString("events.transport"))},
		Kafka: KafkaConfig{
			Brokers: brokers(v.GetStringSlice("kafka.brokers")),
			Topic:   v.GetString("kafka.topic"),
			Group:   v.GetString("kafka.group"),
		},
		Rebuild: RebuildConfig{Interval: v.GetDuration("rebuild.interval")},
	}
	return cfg, cfg.Validate()
}

// brokers accepts both a YAML list and a comma-separated env value.
func brokers(raw []string) []string {
	var out []string
	for _, item := range raw {
		for _, b := range strings.Split(item, ",") {
			if b = strings.TrimSpace(b); b != "" {
				out = append(out, b)
			}
		}
	}
	return out
}

func (c Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	if c.Rebuild.Interval < 0 {
		return fmt.Errorf("rebuild.interval %s is negative", c.Rebuild.Interval)
	}
	switch c.Events.Transport {
	case TransportInline:
	case TransportKafka:
		if len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" {
			return errors.New("kafka transport needs kafka.brokers and kafka.topic")
		}
	default:
		return fmt.Errorf("unknown events.transport %q", c.Events.Transport)
	}
	return nil
}
