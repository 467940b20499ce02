package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	APIURL         string        `env:"SCOPENAV_API_URL" envDefault:"http://localhost:8080"`
	Namespace      string        `env:"SCOPENAV_NAMESPACE" envDefault:"default"`
	APIToken       string        `env:"SCOPENAV_API_TOKEN"`
	RequestTimeout time.Duration `env:"SCOPENAV_REQUEST_TIMEOUT" envDefault:"30s"`

	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`

	DatabaseURL           string        `env:"DATABASE_URL"`
	CatalogFile           string        `env:"CATALOG_FILE"`
	CatalogReloadInterval time.Duration `env:"CATALOG_RELOAD_INTERVAL" envDefault:"0"`
	CatalogWatch          bool          `env:"CATALOG_WATCH" envDefault:"true"`

	NodeQueryLimit int `env:"NODE_QUERY_LIMIT" envDefault:"1000"`
}

type LoadOptions struct {
	RequireDatabaseURL bool
	// EnvFiles are read with godotenv before parsing. Missing files are skipped.
	// Defaults to ".env".
	EnvFiles []string
}

func Load() (Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadRequireDB() (Config, error) {
	return LoadWithOptions(LoadOptions{RequireDatabaseURL: true})
}

func LoadWithOptions(opts LoadOptions) (Config, error) {
	files := opts.EnvFiles
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			var pathErr *os.PathError
			if !errors.As(err, &pathErr) {
				return Config{}, fmt.Errorf("load %s: %w", file, err)
			}
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.APIURL = strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	cfg.Namespace = strings.TrimSpace(cfg.Namespace)
	cfg.MetricsAddr = strings.TrimSpace(cfg.MetricsAddr)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	if opts.RequireDatabaseURL && cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}
	return cfg, nil
}

// Validate rejects values that would make the client or server misbehave.
func (c Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("SCOPENAV_API_URL must be an absolute http(s) URL, got %q", c.APIURL)
	}
	if c.Namespace == "" {
		return errors.New("SCOPENAV_NAMESPACE must not be empty")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("SCOPENAV_REQUEST_TIMEOUT must be positive")
	}
	if c.NodeQueryLimit < 1 {
		return errors.New("NODE_QUERY_LIMIT must be at least 1")
	}
	if c.CatalogReloadInterval < 0 {
		return errors.New("CATALOG_RELOAD_INTERVAL must not be negative")
	}
	return nil
}
