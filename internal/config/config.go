// Package config loads daemon configuration from environment variables,
// with an optional YAML overlay for fields the original daemon never
// exposed outside its env-var surface.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// MQTT holds optional occupancy-emitter broker settings. Broker empty
// means the emitter runs as a no-op sink.
type MQTT struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
}

// Config is the fully resolved daemon configuration.
type Config struct {
	InitTimeout time.Duration `yaml:"-"`
	RunTimeout  time.Duration `yaml:"-"`

	SaveDir string `yaml:"save_dir"`

	ListenAddr string `yaml:"listen_addr"`
	HealthAddr string `yaml:"health_addr"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	SensorIndex int  `yaml:"sensor_index"`
	Simulated   bool `yaml:"simulated"`

	MQTT MQTT `yaml:"mqtt"`
}

// Default returns the configuration the original daemon assumes absent
// any environment override.
func Default() Config {
	return Config{
		InitTimeout: 7 * time.Second,
		RunTimeout:  750 * time.Millisecond,
		SaveDir:     "/var/lib/kndd",
		ListenAddr:  "[::]:14308",
		HealthAddr:  "127.0.0.1:8080",
		LogLevel:    "info",
		LogFormat:   "json",
		SensorIndex: 0,
	}
}

// Load builds a Config starting from Default, overlaying an optional
// YAML file (named by KND_CONFIG, or yamlPath if non-empty) and then
// environment variables, which are authoritative: any field the YAML
// file sets can still be overridden by its corresponding env var. This
// mirrors the reference daemon's env-first configuration discipline
// while allowing an operator to check in the fields the original only
// ever exposed through the environment.
func Load(yamlPath string) (Config, error) {
	cfg := Default()

	if yamlPath == "" {
		yamlPath = os.Getenv("KND_CONFIG")
	}
	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := Validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v, ok := getenvFloat("KND_INITTIMEOUT"); ok {
		cfg.InitTimeout = time.Duration(v * float64(time.Second))
	}
	if v, ok := getenvFloat("KND_RUNTIMEOUT"); ok {
		cfg.RunTimeout = time.Duration(v * float64(time.Second))
	}
	if v := os.Getenv("KND_SAVEDIR"); v != "" {
		cfg.SaveDir = v
	}
	if v := os.Getenv("KND_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("KND_HEALTH_ADDR"); v != "" {
		cfg.HealthAddr = v
	}
	if v := os.Getenv("KND_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("KND_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v, ok := getenvInt("KND_SENSOR_INDEX"); ok {
		cfg.SensorIndex = v
	}
	if v := os.Getenv("KND_SIMULATED"); v != "" {
		cfg.Simulated = v == "1" || v == "true"
	}
	if v := os.Getenv("KND_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("KND_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.ClientID = v
	}
	if v := os.Getenv("KND_MQTT_TOPIC"); v != "" {
		cfg.MQTT.Topic = v
	}
}

func getenvFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func getenvInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate rejects a configuration the daemon cannot start with,
// failing loudly in the same place the original's directory-validation
// check does.
func Validate(cfg *Config) error {
	if cfg.InitTimeout <= 0 {
		return fmt.Errorf("init timeout must be positive, got %s", cfg.InitTimeout)
	}
	if cfg.RunTimeout <= 0 {
		return fmt.Errorf("run timeout must be positive, got %s", cfg.RunTimeout)
	}
	if cfg.SaveDir == "" {
		return fmt.Errorf("save directory must not be empty")
	}
	if _, _, err := net.SplitHostPort(cfg.ListenAddr); err != nil {
		return fmt.Errorf("malformed listen address %q: %w", cfg.ListenAddr, err)
	}
	if cfg.HealthAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.HealthAddr); err != nil {
			return fmt.Errorf("malformed health address %q: %w", cfg.HealthAddr, err)
		}
	}
	return nil
}
