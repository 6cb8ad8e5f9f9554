package config

import "time"

type (
	Config struct {
		Server     ServerConfig     `mapstructure:"server"`
		Log        LogConfig        `mapstructure:"log"`
		Update     UpdateConfig     `mapstructure:"update"`
		Cache      CacheConfig      `mapstructure:"cache"`
		Background BackgroundConfig `mapstructure:"background"`
	}

	ServerConfig struct {
		Port int `mapstructure:"port"`
	}

	LogConfig struct {
		Level      string `mapstructure:"level"`
		Filename   string `mapstructure:"filename"`
		MaxSize    int    `mapstructure:"max_size"`
		MaxBackups int    `mapstructure:"max_backups"`
		MaxAge     int    `mapstructure:"max_age"`
		Compress   bool   `mapstructure:"compress"`
	}

	// UpdateConfig seeds the update manager; the bridge configure call can
	// overwrite every field at runtime.
	UpdateConfig struct {
		BaseURL         string        `mapstructure:"base_url"`
		Hostname        string        `mapstructure:"hostname"`
		ApplicationPath string        `mapstructure:"application_path"`
		RequestTimeout  time.Duration `mapstructure:"request_timeout"`
		VersionCacheTTL time.Duration `mapstructure:"version_cache_ttl"`
	}

	CacheConfig struct {
		Root    string `mapstructure:"root"`
		Workers int    `mapstructure:"workers"`
	}

	BackgroundConfig struct {
		FetchInterval time.Duration `mapstructure:"fetch_interval"`
		WindowTimeout time.Duration `mapstructure:"window_timeout"`
	}
)
