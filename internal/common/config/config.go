package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Debug bool `env:"DEBUG" envDefault:"false"`

	Server struct {
		Port   int    `env:"PORT" envDefault:"8080"`
		Origin string `env:"ORIGIN" envDefault:"http://localhost:3000"`
	}

	// RemoteBackend selects the authoritative store: "redis" (push
	// subscriptions via pub/sub) or "postgres" (request/response, polled
	// subscriptions).
	RemoteBackend string `env:"REMOTE_BACKEND" envDefault:"redis"`

	Redis struct {
		Host     string `env:"REDIS_HOST" envDefault:"localhost"`
		Port     int    `env:"REDIS_PORT" envDefault:"6379"`
		Password string `env:"REDIS_PASSWORD" envDefault:""`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
	}

	Postgres struct {
		DSN string `env:"POSTGRES_DSN" envDefault:""`

		// PollInterval controls how often polled subscriptions re-check
		// records when the relational backend is selected.
		PollInterval time.Duration `env:"POSTGRES_POLL_INTERVAL" envDefault:"2s"`
	}

	Cache struct {
		Path string `env:"CACHE_PATH" envDefault:"data/mooderia.db"`
	}

	Oracle struct {
		Endpoint string        `env:"ORACLE_ENDPOINT" envDefault:""`
		APIKey   string        `env:"ORACLE_API_KEY" envDefault:""`
		Timeout  time.Duration `env:"ORACLE_TIMEOUT" envDefault:"15s"`
	}
}

func Load() *Config {
	// A missing .env file is fine; in production the variables are set
	// directly in the environment.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		panic(err)
	}

	return cfg
}
