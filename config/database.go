package config

import "time"

// DBConfig holds the PostgreSQL connection settings for the tickets database.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"normalize"`
	Password string `env:"PASSWORD" envDefault:"normalize"`
	Name     string `env:"NAME"     envDefault:"normalize"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart applies pending schema migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig holds the connection settings for the status cache. Direct,
// sentinel, and cluster topologies are supported.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// CacheConfig tunes the ticket status cache.
type CacheConfig struct {
	// StatusTTL bounds how long a completed ticket's status response stays
	// cached.
	StatusTTL time.Duration `env:"CACHE_STATUS_TTL" envDefault:"1h"`
}
