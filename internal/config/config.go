package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath      = "config.toml"
	DefaultReceiverAddr    = ":3000"
	DefaultNotifierAddr    = ":8001"
	DefaultAgentHost       = "127.0.0.1"
	DefaultAgentPort       = 8000
	DefaultAgentTimeoutMs  = 4500
	DefaultSafetyMarginMs  = 500
	DefaultAgentMaxRetries = 1
	DefaultSendTimeoutMs   = 30000
	DefaultSendMaxAttempts = 3
	DefaultSendBaseDelayMs = 1000
	DefaultSessionTTLHours = 24
	DefaultSessionMaxMsgs  = 50
	DefaultEnvironment     = "development"
)

type Config struct {
	Environment string         `toml:"environment"`
	Log         LogConfig      `toml:"log"`
	Receiver    ReceiverConfig `toml:"receiver"`
	Agent       AgentConfig    `toml:"agent"`
	Notifier    NotifierConfig `toml:"notifier"`
	Session     SessionConfig  `toml:"session"`
	Channels    []Channel      `toml:"channels"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ReceiverConfig configures the platform-facing webhook server.
// HMACSecret is the base64 secret issued by the platform when the
// outgoing webhook is registered; an empty value disables verification.
type ReceiverConfig struct {
	Addr       string `toml:"addr"`
	HMACSecret string `toml:"hmac_secret"`
}

// AgentConfig configures the downstream agent service client. The platform
// cuts the connection at a hard 5 second limit, so the timeout must stay
// below that with room left for response serialization.
type AgentConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	TimeoutMs      int    `toml:"timeout_ms"`
	MaxRetries     int    `toml:"max_retries"`
	SafetyMarginMs int    `toml:"safety_margin_ms"`
}

func (c AgentConfig) ResolvedBaseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	host := c.Host
	if host == "" {
		host = DefaultAgentHost
	}
	port := c.Port
	if port == 0 {
		port = DefaultAgentPort
	}
	return "http://" + host + ":" + fmt.Sprint(port)
}

func (c AgentConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c AgentConfig) SafetyMargin() time.Duration {
	return time.Duration(c.SafetyMarginMs) * time.Millisecond
}

// NotifierConfig configures the outbound notification API server and the
// delivery retry policy applied per notification.
type NotifierConfig struct {
	Addr          string `toml:"addr"`
	APIKey        string `toml:"api_key"`
	SendTimeoutMs int    `toml:"send_timeout_ms"`
	MaxAttempts   int    `toml:"max_attempts"`
	BaseDelayMs   int    `toml:"base_delay_ms"`
}

func (c NotifierConfig) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutMs) * time.Millisecond
}

func (c NotifierConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMs) * time.Millisecond
}

type SessionConfig struct {
	TTLHours    int `toml:"ttl_hours"`
	MaxMessages int `toml:"max_messages"`
}

func (c SessionConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// Channel is one statically configured delivery target. The registry is
// built from these at startup and never mutated afterwards.
type Channel struct {
	Name        string `toml:"name"`
	WebhookURL  string `toml:"webhook_url"`
	Enabled     bool   `toml:"enabled"`
	Description string `toml:"description"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Environment: DefaultEnvironment,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Receiver: ReceiverConfig{
			Addr: DefaultReceiverAddr,
		},
		Agent: AgentConfig{
			Host:           DefaultAgentHost,
			Port:           DefaultAgentPort,
			TimeoutMs:      DefaultAgentTimeoutMs,
			MaxRetries:     DefaultAgentMaxRetries,
			SafetyMarginMs: DefaultSafetyMarginMs,
		},
		Notifier: NotifierConfig{
			Addr:          DefaultNotifierAddr,
			SendTimeoutMs: DefaultSendTimeoutMs,
			MaxAttempts:   DefaultSendMaxAttempts,
			BaseDelayMs:   DefaultSendBaseDelayMs,
		},
		Session: SessionConfig{
			TTLHours:    DefaultSessionTTLHours,
			MaxMessages: DefaultSessionMaxMsgs,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
