package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// ReconnectPolicy controls what Register does when the principal
// already holds a live connection. "replace" keeps the historical
// single-slot overwrite; "reject" refuses the newcomer; "evict" ends
// the old connection's calls and closes it before registering.
const (
	ReconnectReplace = "replace"
	ReconnectReject  = "reject"
	ReconnectEvict   = "evict"
)

type Config struct {
	Mode            string        `mapstructure:"mode"`
	Port            int           `mapstructure:"port"`
	Secret          string        `mapstructure:"secret"`
	ReadLimit       int64         `mapstructure:"read_limit"`
	PingPeriod      time.Duration `mapstructure:"ping_period"`
	DBPath          string        `mapstructure:"db_path"`
	ReconnectPolicy string        `mapstructure:"reconnect_policy"`
	// RingTimeout evicts calls that stay RINGING longer than this.
	// Zero disables the timer and unanswered calls live until ended
	// or until a party disconnects.
	RingTimeout time.Duration `mapstructure:"ring_timeout"`
	// HandshakeRate limits new WS handshakes per second; zero disables.
	HandshakeRate  float64 `mapstructure:"handshake_rate"`
	HandshakeBurst int     `mapstructure:"handshake_burst"`
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

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("db_path", "peerline.db")
	v.SetDefault("reconnect_policy", ReconnectReplace)
	v.SetDefault("ring_timeout", "0s")
	v.SetDefault("handshake_rate", 0.0)
	v.SetDefault("handshake_burst", 8)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	switch cfg.ReconnectPolicy {
	case ReconnectReplace, ReconnectReject, ReconnectEvict:
	default:
		return nil, fmt.Errorf("unknown reconnect_policy %q", cfg.ReconnectPolicy)
	}
	return &cfg, nil
}
