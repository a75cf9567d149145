package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	envLogLevel         = "DH_LOG_LEVEL"
	envDockerHost       = "DH_DOCKER_HOST"
	envDockerTLSCA      = "DH_DOCKER_TLS_CA"
	envDockerTLSCert    = "DH_DOCKER_TLS_CERT"
	envDockerTLSKey     = "DH_DOCKER_TLS_KEY"
	envDockerTimeout    = "DH_DOCKER_TIMEOUT"
	envPingInterval     = "DH_PING_INTERVAL"
	envSlackWebhookURL  = "DH_SLACK_WEBHOOK_URL"
	envWebhookURL       = "DH_WEBHOOK_URL"
	envWebhookTemplate  = "DH_WEBHOOK_TEMPLATE"
	envGatewayPort      = "DH_GATEWAY_PORT"
	envHealthPort       = "DH_HEALTH_PORT"
	envMetricsPort      = "DH_METRICS_PORT"
	envEvictionHorizon  = "DH_EVICTION_HORIZON"
	envEvictionInterval = "DH_EVICTION_INTERVAL"
	envProjectsFile     = "DH_PROJECTS_FILE"
	envDryRun           = "DH_DRY_RUN"
)

const (
	defaultLogLevel         = "info"
	defaultDockerHost       = "unix:///var/run/docker.sock"
	defaultDockerTimeout    = 10 * time.Second
	defaultPingInterval     = 30 * time.Second
	defaultGatewayPort      = 8080
	defaultHealthPort       = 8081
	defaultMetricsPort      = 9090
	defaultEvictionHorizon  = 24 * time.Hour
	defaultEvictionInterval = 10 * time.Minute
)

// Config describes runtime configuration loaded from the environment.
type Config struct {
	LogLevel         string
	DockerHost       string
	DockerTLSCA      string
	DockerTLSCert    string
	DockerTLSKey     string
	DockerTimeout    time.Duration
	PingInterval     time.Duration
	SlackWebhookURL  string
	WebhookURL       string
	WebhookTemplate  string
	GatewayPort      int
	HealthPort       int
	MetricsPort      int
	EvictionHorizon  time.Duration
	EvictionInterval time.Duration
	ProjectsFile     string
	DryRun           bool
}

// Load reads configuration from environment variables and a local .env file
// if present. Existing environment variables take precedence over .env values.
func Load() (Config, error) {
	if err := loadDotEnvIfPresent(".env"); err != nil {
		return Config{}, err
	}

	cfg := Config{
		LogLevel:         defaultLogLevel,
		DockerHost:       defaultDockerHost,
		DockerTimeout:    defaultDockerTimeout,
		PingInterval:     defaultPingInterval,
		GatewayPort:      defaultGatewayPort,
		HealthPort:       defaultHealthPort,
		MetricsPort:      defaultMetricsPort,
		EvictionHorizon:  defaultEvictionHorizon,
		EvictionInterval: defaultEvictionInterval,
	}

	if value, ok := lookupTrimmed(envLogLevel); ok {
		cfg.LogLevel = value
	}
	if value, ok := lookupTrimmed(envDockerHost); ok {
		cfg.DockerHost = value
	}
	if value, ok := lookupTrimmed(envDockerTLSCA); ok {
		cfg.DockerTLSCA = value
	}
	if value, ok := lookupTrimmed(envDockerTLSCert); ok {
		cfg.DockerTLSCert = value
	}
	if value, ok := lookupTrimmed(envDockerTLSKey); ok {
		cfg.DockerTLSKey = value
	}

	var err error
	if cfg.DockerTimeout, err = durationEnv(envDockerTimeout, cfg.DockerTimeout); err != nil {
		return Config{}, err
	}
	if cfg.PingInterval, err = durationEnv(envPingInterval, cfg.PingInterval); err != nil {
		return Config{}, err
	}
	if cfg.EvictionHorizon, err = durationEnv(envEvictionHorizon, cfg.EvictionHorizon); err != nil {
		return Config{}, err
	}
	if cfg.EvictionInterval, err = durationEnv(envEvictionInterval, cfg.EvictionInterval); err != nil {
		return Config{}, err
	}

	if cfg.GatewayPort, err = portEnv(envGatewayPort, cfg.GatewayPort); err != nil {
		return Config{}, err
	}
	if cfg.HealthPort, err = portEnv(envHealthPort, cfg.HealthPort); err != nil {
		return Config{}, err
	}
	if cfg.MetricsPort, err = portEnv(envMetricsPort, cfg.MetricsPort); err != nil {
		return Config{}, err
	}

	if value, ok := lookupTrimmed(envSlackWebhookURL); ok {
		cfg.SlackWebhookURL = value
	}
	if value, ok := lookupTrimmed(envWebhookURL); ok {
		cfg.WebhookURL = value
	}
	if value, ok := lookupTrimmed(envWebhookTemplate); ok {
		cfg.WebhookTemplate = value
	}
	if value, ok := lookupTrimmed(envProjectsFile); ok {
		cfg.ProjectsFile = value
	}
	if value, ok := lookupTrimmed(envDryRun); ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envDryRun, err)
		}
		cfg.DryRun = parsed
	}

	if cfg.ProjectsFile == "" {
		return Config{}, errors.New("DH_PROJECTS_FILE is required")
	}
	if cfg.SlackWebhookURL != "" {
		if err := validateURL(cfg.SlackWebhookURL, envSlackWebhookURL); err != nil {
			return Config{}, err
		}
	}
	if cfg.WebhookURL != "" {
		if err := validateURL(cfg.WebhookURL, envWebhookURL); err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

func lookupTrimmed(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := lookupTrimmed(key)
	if !ok {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero", key)
	}
	return parsed, nil
}

func portEnv(key string, fallback int) (int, error) {
	value, ok := lookupTrimmed(key)
	if !ok {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if parsed < 0 || parsed > 65535 {
		return 0, fmt.Errorf("%s must be between 0 and 65535", key)
	}
	return parsed, nil
}

func loadDotEnvIfPresent(path string) error {
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) && errors.Is(pathErr.Err, os.ErrNotExist) {
		return nil
	}

	return err
}

func validateURL(value, name string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid %s: must include scheme and host", name)
	}
	return nil
}
