package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	SignalURL     string        `mapstructure:"signal_url"`
	Room          string        `mapstructure:"room"`
	ParticipantID string        `mapstructure:"participant_id"`
	DisplayName   string        `mapstructure:"display_name"`
	STUNServers   []string      `mapstructure:"stun_servers"`
	LogLevel      string        `mapstructure:"log_level"`
	SendQueue     int           `mapstructure:"send_queue"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("signal_url", "ws://localhost:8080/signal")
	v.SetDefault("room", "main")
	v.SetDefault("display_name", "guest")
	v.SetDefault("stun_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("log_level", "info")
	v.SetDefault("send_queue", 32)
	v.SetDefault("write_timeout", "5s")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
