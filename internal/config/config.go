package config

import (
	"errors"
	"log"

	"github.com/spf13/viper"
)

var CFG *Config

func New() *Config {
	v := viper.New()
	v.SetDefault(ServerPortKey, DefaultPort)
	v.SetDefault(RequestTimeoutKey, DefaultRequestTimeout)
	v.SetDefault(VersionCacheTTLKey, DefaultVersionCacheTTL)
	v.SetDefault(FetchIntervalKey, DefaultFetchInterval)
	v.SetDefault(WindowTimeoutKey, DefaultWindowTimeout)
	v.SetDefault(CacheRootKey, DefaultCacheRoot)
	v.SetDefault(CacheWorkersKey, DefaultCacheWorkers)
	v.SetConfigName(DefaultConfigName)
	v.SetConfigType(DefaultConfigType)
	v.AddConfigPath(".")
	v.AddConfigPath("config")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Fatalf("Failed to read config file, %v", err)
		}
	}

	var c = new(Config)
	if err := v.Unmarshal(c); err != nil {
		log.Fatalf("Failed to unmarshal config file, %v", err)
	}

	return c
}
