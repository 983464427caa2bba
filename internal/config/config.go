package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config is the service configuration, read from the environment.
type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"60s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Solver struct {
		// Sparse selects the sparse Jacobian adapter for incoming
		// problems; the dense adapter is the fallback.
		Sparse              bool    `env:"SOLVER_SPARSE" envDefault:"true"`
		MaxOuterIterations  int     `env:"SOLVER_MAX_OUTER_ITERATIONS" envDefault:"30"`
		InnerIterations     int     `env:"SOLVER_INNER_ITERATIONS" envDefault:"500"`
		Tolerance           float64 `env:"SOLVER_TOLERANCE" envDefault:"1e-6"`
		AcceptableTolerance float64 `env:"SOLVER_ACCEPTABLE_TOLERANCE" envDefault:"1e-3"`
	}
}

// Load parses the configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if cfg.Environment == "development" && cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}
