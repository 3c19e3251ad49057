package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultIntervalMinutes = 5
	DefaultMaxHistory      = 5
	DefaultAddr            = "127.0.0.1:8501"
	DefaultLogFile         = "replybot.log"

	ScopeProcess = "process"
	ScopeBrowser = "browser"
)

// ErrMissingTarget is returned when no target address is configured.
var ErrMissingTarget = errors.New("mail.target is required")

// MailConfig names the account the bot sends from and the one sender it watches.
type MailConfig struct {
	Sender string `mapstructure:"sender"`
	Target string `mapstructure:"target"`
}

// MonitorConfig controls polling and how much history the dashboards show.
type MonitorConfig struct {
	IntervalMinutes int `mapstructure:"interval_minutes"`
	MaxHistory      int `mapstructure:"max_history"`
}

// AIConfig selects and tunes the text-generation provider.
type AIConfig struct {
	Provider     string  `mapstructure:"provider"`
	APIKey       string  `mapstructure:"api_key"`
	Model        string  `mapstructure:"model"`
	MaxTokens    int     `mapstructure:"max_tokens"`
	Temperature  float64 `mapstructure:"temperature"`
	SystemPrompt string  `mapstructure:"system_prompt"`
	BaseURL      string  `mapstructure:"base_url"`
}

// ServerConfig holds the web dashboard settings.
type ServerConfig struct {
	Addr         string `mapstructure:"addr"`
	SessionScope string `mapstructure:"session_scope"`
}

// CredentialsConfig controls where the Gmail OAuth token is kept.
type CredentialsConfig struct {
	Keyring    bool   `mapstructure:"keyring"`
	KeyringDir string `mapstructure:"keyring_dir"`
}

// TokenConfig is the Gmail OAuth token record as written in the config file.
type TokenConfig struct {
	Token        string   `mapstructure:"token"`
	RefreshToken string   `mapstructure:"refresh_token"`
	TokenURI     string   `mapstructure:"token_uri"`
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	Scopes       []string `mapstructure:"scopes"`
	Expiry       string   `mapstructure:"expiry"`
}

// LoggingConfig selects the log file and level.
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// Config is the top-level application configuration.
type Config struct {
	Mail        MailConfig        `mapstructure:"mail"`
	Monitor     MonitorConfig     `mapstructure:"monitor"`
	AI          AIConfig          `mapstructure:"ai"`
	Server      ServerConfig      `mapstructure:"server"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	GmailToken  TokenConfig       `mapstructure:"gmail_token"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// PollInterval returns the monitoring interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Monitor.IntervalMinutes) * time.Minute
}

// DefaultDir returns ~/.config/replybot, or "." when the home directory is unknown.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "replybot")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mail.sender", "")
	v.SetDefault("mail.target", "")
	v.SetDefault("monitor.interval_minutes", DefaultIntervalMinutes)
	v.SetDefault("monitor.max_history", DefaultMaxHistory)
	v.SetDefault("ai.provider", "anthropic")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "")
	v.SetDefault("ai.max_tokens", 300)
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("ai.system_prompt", "")
	v.SetDefault("ai.base_url", "")
	v.SetDefault("server.addr", DefaultAddr)
	v.SetDefault("server.session_scope", ScopeProcess)
	v.SetDefault("credentials.keyring", false)
	v.SetDefault("credentials.keyring_dir", filepath.Join(DefaultDir(), "credentials"))
	v.SetDefault("gmail_token.token", "")
	v.SetDefault("gmail_token.refresh_token", "")
	v.SetDefault("gmail_token.token_uri", "")
	v.SetDefault("gmail_token.client_id", "")
	v.SetDefault("gmail_token.client_secret", "")
	v.SetDefault("gmail_token.scopes", []string{})
	v.SetDefault("gmail_token.expiry", "")
	v.SetDefault("logging.file", DefaultLogFile)
	v.SetDefault("logging.level", "info")
}

// Load reads the configuration. An empty path searches for replybot.{yaml,toml,json}
// in the working directory and DefaultDir. Environment variables prefixed with
// REPLYBOT_ override file values, and a .env file in the working directory is
// loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("REPLYBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("replybot")
		v.AddConfigPath(".")
		v.AddConfigPath(DefaultDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
		case path == "" && errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalize applies defaults to values that are present but unusable and
// rejects the few settings the bot cannot run without.
func (c *Config) normalize() error {
	c.Mail.Sender = strings.TrimSpace(c.Mail.Sender)
	c.Mail.Target = strings.TrimSpace(c.Mail.Target)
	if c.Mail.Target == "" {
		return ErrMissingTarget
	}
	if c.Monitor.IntervalMinutes <= 0 {
		c.Monitor.IntervalMinutes = DefaultIntervalMinutes
	}
	if c.Monitor.MaxHistory <= 0 {
		c.Monitor.MaxHistory = DefaultMaxHistory
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	switch c.Server.SessionScope {
	case "":
		c.Server.SessionScope = ScopeProcess
	case ScopeProcess, ScopeBrowser:
	default:
		return fmt.Errorf("server.session_scope %q: want %q or %q", c.Server.SessionScope, ScopeProcess, ScopeBrowser)
	}
	c.AI.Provider = strings.ToLower(strings.TrimSpace(c.AI.Provider))
	if c.Logging.File == "" {
		c.Logging.File = DefaultLogFile
	}
	return nil
}
