package cache

import (
	"time"

	"flavorwise/config"
)

func testConfig(cacheType string) *config.Config {
	cfg := &config.Config{}
	cfg.Cache.Type = cacheType
	cfg.Cache.TTL = time.Hour
	cfg.Storage.Type = cacheType
	return cfg
}
