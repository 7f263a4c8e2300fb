package e2e

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
	// E2E_READ_TIMEOUT bounds every wait for a server frame
	ReadTimeout time.Duration `envconfig:"E2E_READ_TIMEOUT" default:"3s"`
	// E2E_LOG_LEVEL is the level of the in-process hub logger
	LogLevel string `envconfig:"E2E_LOG_LEVEL" default:"DEBUG"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
