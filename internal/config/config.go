package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds client and mock backend settings. Values come from
// config.yaml, CHATSTREAM_* environment variables and bound CLI flags.
type Config struct {
	URL           string            `mapstructure:"url"`
	Address       string            `mapstructure:"address"`
	Timeout       time.Duration     `mapstructure:"timeout"`
	StreamTimeout time.Duration     `mapstructure:"stream_timeout"`
	Headers       map[string]string `mapstructure:"headers"`
	Credential    string            `mapstructure:"credential"`
	TelemetryURL  string            `mapstructure:"telemetry_url"`
	ChunkDelay    time.Duration     `mapstructure:"chunk_delay"`
	Banned        []string          `mapstructure:"banned"`
}

// New returns a viper instance with defaults and environment lookup set up.
// Callers may bind flags on it before calling Unmarshal.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// allow environment variables like CHATSTREAM_STREAM_TIMEOUT
	v.SetEnvPrefix("CHATSTREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// every key needs a default so Unmarshal sees env-only values
	v.SetDefault("url", "http://localhost:8080/v1/chat/completions")
	v.SetDefault("address", ":8080")
	v.SetDefault("timeout", time.Duration(0))
	v.SetDefault("stream_timeout", time.Duration(0))
	v.SetDefault("headers", map[string]string{})
	v.SetDefault("credential", "")
	v.SetDefault("telemetry_url", "")
	v.SetDefault("chunk_delay", 50*time.Millisecond)
	v.SetDefault("banned", []string{"banned"})
	return v
}

// Unmarshal reads the optional config file into v and decodes it.
func Unmarshal(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		// don't fail if config file is missing, allow env-only config
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, err
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func Load() (*Config, error) {
	return Unmarshal(New())
}
