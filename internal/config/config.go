// Package config loads application configuration from the config file,
// environment variables, and an optional .env file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/pennyflow/pennyflow/internal/common"
	"github.com/pennyflow/pennyflow/internal/feed"
	"github.com/pennyflow/pennyflow/internal/llm"
)

// Config is the fully resolved application configuration.
type Config struct {
	Log    LogConfig
	Server ServerConfig
	Plaid  feed.Config
	Slack  SlackConfig
	LLM    llm.Config
	DBPath string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string
	Format string
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Addr      string
	JWTSecret string
}

// SlackConfig controls the chat workflow.
type SlackConfig struct {
	BotToken string
	Channel  string
}

// Load reads configuration with this precedence: flags already bound into
// viper, then environment (PENNYFLOW_*), then the config file, then
// defaults. A .env file in the working directory is loaded first so local
// development works without exported variables.
func Load() (*Config, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	viper.SetEnvPrefix("PENNYFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	cfg := &Config{
		Log: LogConfig{
			Level:  viper.GetString("logging.level"),
			Format: viper.GetString("logging.format"),
		},
		DBPath: ExpandPath(viper.GetString("database.path")),
		Server: ServerConfig{
			Addr:      viper.GetString("server.addr"),
			JWTSecret: viper.GetString("server.jwt_secret"),
		},
		Plaid: feed.Config{
			ClientID:    viper.GetString("plaid.client_id"),
			Secret:      viper.GetString("plaid.secret"),
			Environment: viper.GetString("plaid.environment"),
		},
		Slack: SlackConfig{
			BotToken: viper.GetString("slack.bot_token"),
			Channel:  viper.GetString("slack.channel"),
		},
		LLM: llm.Config{
			Provider:    viper.GetString("llm.provider"),
			APIKey:      viper.GetString("llm.api_key"),
			Model:       viper.GetString("llm.model"),
			Temperature: viper.GetFloat64("llm.temperature"),
			MaxTokens:   viper.GetInt("llm.max_tokens"),
		},
	}

	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")
	viper.SetDefault("database.path", "~/.local/share/pennyflow/pennyflow.db")
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("plaid.environment", "sandbox")
	viper.SetDefault("llm.provider", "openai")
}

// ValidateServer checks the fields the serve command needs.
func (c *Config) ValidateServer() error {
	if c.Server.JWTSecret == "" {
		return fmt.Errorf("server JWT secret is required: %w", common.ErrMissingConfig)
	}
	return c.Plaid.Validate()
}

// ExpandPath expands ~ and environment variables in a file path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	return os.ExpandEnv(path)
}
