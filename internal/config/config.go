package config

import (
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/msgdeck/msgdeck/internal/log"
	"github.com/msgdeck/msgdeck/internal/server/http"
	"github.com/msgdeck/msgdeck/internal/service/invoice"
	"github.com/msgdeck/msgdeck/internal/store/postgres"
	"github.com/pkg/errors"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	GitCommit  string
	GitVersion string

	Env      string          `yaml:"env" env:"APP_ENV" env-default:"production" env-description:"Environment [production, local]"`
	Logger   log.Config      `yaml:"logger"`
	Store    Store           `yaml:"store"`
	Postgres postgres.Config `yaml:"postgres"`
	Server   http.Config     `yaml:"server"`
	Billing  invoice.Config  `yaml:"billing"`
}

type Store struct {
	Driver string `yaml:"driver" env:"STORE_DRIVER" env-default:"postgres" env-description:"Storage driver [postgres, memory]"`

	// Memberships seed the memory driver. Ignored by postgres.
	Memberships []Membership `yaml:"memberships"`
}

type Membership struct {
	UserID   string `yaml:"user_id"`
	TenantID string `yaml:"tenant_id"`
	Role     string `yaml:"role"`
}

// Load reads the yaml file at path (if any) and overlays environment variables.
func Load(path, gitCommit, gitVersion string) (*Config, error) {
	cfg := &Config{
		GitCommit:  gitCommit,
		GitVersion: gitVersion,
	}

	if err := read(path, cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func read(path string, cfg *Config) error {
	if path == "" {
		return errors.Wrap(cleanenv.ReadEnv(cfg), "unable to read config from env")
	}

	if _, err := os.Stat(path); err != nil {
		return errors.Wrapf(err, "unable to open config file %q", path)
	}

	return errors.Wrapf(cleanenv.ReadConfig(path, cfg), "unable to read config file %q", path)
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case DriverPostgres, DriverMemory:
	default:
		return errors.Errorf("unknown store driver %q", c.Store.Driver)
	}

	if c.Billing.InvoiceDueDays < 0 {
		return errors.New("billing.invoice_due_days must not be negative")
	}

	return nil
}

// Usage returns the description of every supported env variable.
func Usage() (string, error) {
	header := "msgdeck environment variables:"

	text, err := cleanenv.GetDescription(&Config{}, &header)
	if err != nil {
		return "", errors.Wrap(err, "unable to describe config")
	}

	return text, nil
}
