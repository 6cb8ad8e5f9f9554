package config

import "time"

const (
	DefaultPort       = 8490
	DefaultConfigName = "config"
	DefaultConfigType = "yaml"

	DefaultRequestTimeout  = 30 * time.Second
	DefaultVersionCacheTTL = time.Minute
	DefaultFetchInterval   = 30 * time.Minute
	DefaultWindowTimeout   = 25 * time.Second
	DefaultCacheRoot       = "cache"
	DefaultCacheWorkers    = 4
)

const (
	ServerPortKey      = "server.port"
	RequestTimeoutKey  = "update.request_timeout"
	VersionCacheTTLKey = "update.version_cache_ttl"
	FetchIntervalKey   = "background.fetch_interval"
	WindowTimeoutKey   = "background.window_timeout"
	CacheRootKey       = "cache.root"
	CacheWorkersKey    = "cache.workers"
)
