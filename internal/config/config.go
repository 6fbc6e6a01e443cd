// Package config loads the process configuration from the environment.
//
// Credentials are read once at startup and are immutable afterwards. An
// optional .env file in the working directory is honored for local
// development; real environment variables always take precedence.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Environment keys.
const (
	keyBotToken = "telegram_bot_token"
	keyChatID   = "telegram_chat_id"
	keyHost     = "host"
	keyPort     = "port"
	keyDebug    = "debug"
)

// Defaults.
const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 8008
)

// ErrMissingBotToken is returned when TELEGRAM_BOT_TOKEN is absent or empty.
var ErrMissingBotToken = errors.New("TELEGRAM_BOT_TOKEN is required")

// ErrMissingChatID is returned when TELEGRAM_CHAT_ID is absent or empty.
var ErrMissingChatID = errors.New("TELEGRAM_CHAT_ID is required")

// Config holds the static process configuration. Immutable after Load.
type Config struct {
	BotToken string
	ChatID   string
	Host     string
	Port     int
	Debug    bool
}

// Addr returns the host:port pair the HTTP listener binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads the configuration from the environment (and an optional .env
// file). It fails when a required credential is missing; the format of the
// token or chat id is deliberately not validated.
func Load() (*Config, error) {
	return load(".env")
}

func load(envFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault(keyHost, DefaultHost)
	v.SetDefault(keyPort, DefaultPort)
	v.SetDefault(keyDebug, false)

	v.AutomaticEnv()

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			v.SetConfigType("dotenv")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
			}
		}
	}

	cfg := &Config{
		BotToken: v.GetString(keyBotToken),
		ChatID:   v.GetString(keyChatID),
		Host:     v.GetString(keyHost),
		Port:     v.GetInt(keyPort),
		Debug:    v.GetBool(keyDebug),
	}

	if cfg.BotToken == "" {
		return nil, ErrMissingBotToken
	}
	if cfg.ChatID == "" {
		return nil, ErrMissingChatID
	}

	return cfg, nil
}
