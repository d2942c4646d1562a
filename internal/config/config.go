package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type DB struct {
	URL             string        `env:"CERTIVIEW_DATABASE_URL"`
	MaxOpenConns    int           `env:"CERTIVIEW_DB_MAX_OPEN_CONNS" envDefault:"16"`
	MaxIdleConns    int           `env:"CERTIVIEW_DB_MAX_IDLE_CONNS" envDefault:"8"`
	ConnMaxLifetime time.Duration `env:"CERTIVIEW_DB_CONN_MAX_LIFETIME" envDefault:"1h"`
	ConnMaxIdleTime time.Duration `env:"CERTIVIEW_DB_CONN_MAX_IDLE_TIME" envDefault:"15m"`
	MigrationsURL   string        `env:"CERTIVIEW_MIGRATIONS_URL" envDefault:"file://db/migrations"`
}

type Auth struct {
	Secret   string `env:"CERTIVIEW_AUTH_SECRET"`
	Issuer   string `env:"CERTIVIEW_AUTH_ISSUER" envDefault:"certiview"`
	Audience string `env:"CERTIVIEW_AUTH_AUDIENCE" envDefault:"certiview-internal"`
}

type Config struct {
	HTTPAddr string `env:"CERTIVIEW_HTTP_ADDR" envDefault:":8080"`
	LogLevel string `env:"CERTIVIEW_LOG_LEVEL" envDefault:"info"`
	DB       DB
	Auth     Auth
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
