// Package config loads application configuration from environment variables,
// an optional .env file and an optional TOML settings file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/iliyamo/recital-program/internal/livestatus"
)

// ErrConfig marks missing or malformed configuration.
var ErrConfig = errors.New("config error")

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env            string // application environment (e.g. "dev", "prod")
	Port           string // HTTP port to listen on
	DBUser         string // database username
	DBPass         string // database password (optional)
	DBHost         string // database host; empty runs without MySQL
	DBPort         string
	DBName         string
	JWTSecret      string // secret used to sign JWTs
	AccessTTLMin   int    // access token time-to-live in minutes
	RefreshTTLDays int    // refresh token time-to-live in days
	BcryptCost     int    // bcrypt cost for password hashing

	CatalogPath     string   // base64 dataset file
	CatalogTZ       string   // IANA zone for offset-less timestamps
	AppID           string   // live document namespace
	AuthorizedUsers []string // emails allowed to drive live status

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	RabbitMQURL  string // empty disables audit events
	SettingsPath string // TOML overlay, see Settings
}

// HasDatabase reports whether MySQL settings were provided.
func (c Config) HasDatabase() bool { return c.DBHost != "" }

// Location resolves CatalogTZ.  An empty zone means UTC.
func (c Config) Location() (*time.Location, error) {
	if c.CatalogTZ == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.CatalogTZ)
	if err != nil {
		return nil, fmt.Errorf("%w: CATALOG_TZ %q: %v", ErrConfig, c.CatalogTZ, err)
	}
	return loc, nil
}

// Load reads .env (when present), the environment and the settings overlay.
// Missing required variables cause the program to exit with a fatal log.
func Load() Config {
	_ = godotenv.Load()
	cfg, err := Parse()
	if err != nil {
		log.Fatal("load config", "err", err)
	}
	return cfg
}

// Parse builds a Config from the current environment and applies the TOML
// overlay named by RECITAL_SETTINGS.
func Parse() (Config, error) {
	r := &reader{}
	cfg := Config{
		Env:            r.must("APP_ENV"),
		Port:           r.must("APP_PORT"),
		DBUser:         os.Getenv("DB_USER"),
		DBPass:         os.Getenv("DB_PASS"),
		DBHost:         os.Getenv("DB_HOST"),
		DBPort:         envStr("DB_PORT", "3306"),
		DBName:         os.Getenv("DB_NAME"),
		JWTSecret:      r.must("JWT_SECRET"),
		AccessTTLMin:   r.mustInt("ACCESS_TOKEN_TTL_MIN"),
		RefreshTTLDays: r.mustInt("REFRESH_TOKEN_TTL_DAYS"),
		BcryptCost:     envInt("BCRYPT_COST", 12),

		CatalogPath:     envStr("CATALOG_PATH", "recital_data.dat"),
		CatalogTZ:       envStr("CATALOG_TZ", "UTC"),
		AppID:           envStr("LIVE_APP_ID", livestatus.DefaultAppID),
		AuthorizedUsers: splitList(os.Getenv("AUTHORIZED_USERS")),

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  os.Getenv("GOOGLE_REDIRECT_URL"),

		RabbitMQURL:  os.Getenv("RABBITMQ_URL"),
		SettingsPath: os.Getenv("RECITAL_SETTINGS"),
	}
	if cfg.HasDatabase() {
		cfg.DBUser = r.must("DB_USER")
		cfg.DBName = r.must("DB_NAME")
	}
	if err := r.err(); err != nil {
		return Config{}, err
	}
	if cfg.SettingsPath != "" {
		s, err := LoadSettings(cfg.SettingsPath)
		if err != nil {
			return Config{}, err
		}
		cfg = s.Apply(cfg)
	}
	if _, err := cfg.Location(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// reader collects every missing or malformed required variable so they are
// reported together.
type reader struct {
	problems []string
}

func (r *reader) must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		r.problems = append(r.problems, "missing required env var: "+key)
	}
	return v
}

func (r *reader) mustInt(key string) int {
	s := r.must(key)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		r.problems = append(r.problems, fmt.Sprintf("invalid int for %s: %q", key, s))
	}
	return n
}

func (r *reader) err() error {
	if len(r.problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrConfig, strings.Join(r.problems, "; "))
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
