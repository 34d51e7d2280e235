// This file defines the configuration structure for the application.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	// use Viper for loading the config.yml file.
	"github.com/spf13/viper"
)

// Config holds all configuration settings for the application.
// It maps directly to the structure of config.yml.
type Config struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database struct {
		Path          string `mapstructure:"path"`
		BusyTimeoutMS int    `mapstructure:"busy_timeout_ms"`
	} `mapstructure:"database"`
	Download struct {
		Dir            string   `mapstructure:"dir"`
		Workers        int      `mapstructure:"workers"`
		YtdlpPath      string   `mapstructure:"ytdlp_path"`
		ExtraArgs      []string `mapstructure:"extra_args"`
		PollSeconds    int      `mapstructure:"poll_seconds"`
		MaxPollSeconds int      `mapstructure:"max_poll_seconds"`
	} `mapstructure:"download"`
	Update struct {
		IntervalMinutes       int `mapstructure:"interval_minutes"`
		FreshnessMinutes      int `mapstructure:"freshness_minutes"`
		ChannelTimeoutSeconds int `mapstructure:"channel_timeout_seconds"`
	} `mapstructure:"update"`
	Remote struct {
		InvidiousURL          string `mapstructure:"invidious_url"`
		RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
		VimeoToken            string `mapstructure:"vimeo_token"`
	} `mapstructure:"remote"`
}

// Load reads configuration from a file named "config.yml" in the
// current directory and unmarshals it into a Config struct.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")
	v.AddConfigPath(".")

	// --- Environment Variable Overrides ---
	// e.g., VIDL_DATABASE_PATH will override the `database.path` key.
	v.SetEnvPrefix("VIDL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			// Config file was found but another error was produced
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8448)
	v.SetDefault("database.path", "./vidl.sqlite3")
	v.SetDefault("database.busy_timeout_ms", 5000)
	v.SetDefault("download.dir", "./download")
	v.SetDefault("download.workers", 4)
	v.SetDefault("download.ytdlp_path", "yt-dlp")
	v.SetDefault("download.extra_args", []string{"--restrict-filenames", "--continue", "-f", "137/22/248/247/best"})
	v.SetDefault("download.poll_seconds", 5)
	v.SetDefault("download.max_poll_seconds", 60)
	v.SetDefault("update.interval_minutes", 60)
	v.SetDefault("update.freshness_minutes", 60)
	v.SetDefault("update.channel_timeout_seconds", 120)
	v.SetDefault("remote.invidious_url", "https://y.com.sb")
	v.SetDefault("remote.request_timeout_seconds", 20)
	v.SetDefault("remote.vimeo_token", "")
}

// Default returns a Config populated only with the built-in defaults.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	// Unmarshalling plain defaults cannot fail.
	_ = v.Unmarshal(&config)
	return &config
}

// Validate reports the first configuration value that cannot be used.
func (c *Config) Validate() error {
	switch {
	case c.Database.Path == "":
		return errors.New("config: database.path must not be empty")
	case c.Download.Dir == "":
		return errors.New("config: download.dir must not be empty")
	case c.Download.Workers < 1:
		return fmt.Errorf("config: download.workers must be at least 1, got %d", c.Download.Workers)
	case c.Download.PollSeconds < 1:
		return fmt.Errorf("config: download.poll_seconds must be at least 1, got %d", c.Download.PollSeconds)
	case c.Update.ChannelTimeoutSeconds < 1:
		return fmt.Errorf("config: update.channel_timeout_seconds must be at least 1, got %d", c.Update.ChannelTimeoutSeconds)
	case c.Update.IntervalMinutes < 0 || c.Update.FreshnessMinutes < 0:
		return errors.New("config: update intervals must not be negative")
	}
	return nil
}

// Addr is the listen address of the web server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// BusyTimeout bounds how long the store retries a locked database.
func (c *Config) BusyTimeout() time.Duration {
	return time.Duration(c.Database.BusyTimeoutMS) * time.Millisecond
}

// FreshnessWindow is how recently a channel must have been checked to be skipped.
func (c *Config) FreshnessWindow() time.Duration {
	return time.Duration(c.Update.FreshnessMinutes) * time.Minute
}

// ChannelTimeout bounds a single channel crawl.
func (c *Config) ChannelTimeout() time.Duration {
	return time.Duration(c.Update.ChannelTimeoutSeconds) * time.Second
}

// RequestTimeout bounds a single request to a remote metadata service.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Remote.RequestTimeoutSeconds) * time.Second
}

// PollInterval returns the initial and maximum idle poll delay of download workers.
func (c *Config) PollInterval() (time.Duration, time.Duration) {
	initial := time.Duration(c.Download.PollSeconds) * time.Second
	max := time.Duration(c.Download.MaxPollSeconds) * time.Second
	if max < initial {
		max = initial
	}
	return initial, max
}
