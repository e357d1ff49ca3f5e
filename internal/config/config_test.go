package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "test")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("ACCESS_TOKEN_TTL_MIN", "15")
	t.Setenv("REFRESH_TOKEN_TTL_DAYS", "7")
	for _, k := range []string{"DB_HOST", "DB_USER", "DB_NAME", "CATALOG_PATH", "CATALOG_TZ", "LIVE_APP_ID", "AUTHORIZED_USERS", "RECITAL_SETTINGS", "BCRYPT_COST"} {
		t.Setenv(k, "")
	}
}

func TestParseDefaults(t *testing.T) {
	setRequired(t)
	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.HasDatabase() {
		t.Fatal("no DB_HOST should mean no database")
	}
	if cfg.CatalogPath != "recital_data.dat" || cfg.AppID != "dancers-pointe-app" || cfg.BcryptCost != 12 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	loc, err := cfg.Location()
	if err != nil || loc != time.UTC {
		t.Fatalf("Location = %v, %v", loc, err)
	}
}

func TestParseMissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_SECRET", "")
	t.Setenv("ACCESS_TOKEN_TTL_MIN", "soon")
	_, err := Parse()
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
	if !strings.Contains(err.Error(), "JWT_SECRET") || !strings.Contains(err.Error(), "ACCESS_TOKEN_TTL_MIN") {
		t.Fatalf("error should name every problem: %v", err)
	}
}

func TestParseDatabaseRequiresUserAndName(t *testing.T) {
	setRequired(t)
	t.Setenv("DB_HOST", "localhost")
	if _, err := Parse(); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestSettingsOverlay(t *testing.T) {
	setRequired(t)
	t.Setenv("AUTHORIZED_USERS", "director@example.com, ")
	path := filepath.Join(t.TempDir(), "recital.toml")
	body := `
[catalog]
path = "/data/spring.dat"
timezone = "America/Chicago"

[live]
app_id = "spring-recital"
authorized_users = ["stage@example.com", " "]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RECITAL_SETTINGS", path)

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.CatalogPath != "/data/spring.dat" || cfg.CatalogTZ != "America/Chicago" || cfg.AppID != "spring-recital" {
		t.Fatalf("overlay not applied: %+v", cfg)
	}
	want := []string{"director@example.com", "stage@example.com"}
	if !reflect.DeepEqual(cfg.AuthorizedUsers, want) {
		t.Fatalf("AuthorizedUsers = %v, want %v", cfg.AuthorizedUsers, want)
	}
}

func TestSettingsRejectsUnknownKeysAndBadZone(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.toml")
	_ = os.WriteFile(bad, []byte("[live]\napp = \"x\"\n"), 0o644)
	if _, err := LoadSettings(bad); !errors.Is(err, ErrConfig) {
		t.Fatalf("unknown key: %v", err)
	}

	setRequired(t)
	t.Setenv("CATALOG_TZ", "Mars/Olympus")
	if _, err := Parse(); !errors.Is(err, ErrConfig) {
		t.Fatalf("bad zone: %v", err)
	}
}

func TestRateLimitConfigClamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_EVERY", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	rl := LoadRateLimitConfig()
	if rl.Capacity != 1 || rl.RefillTokens != 1 || rl.RefillInterval != 2*time.Second || rl.TTL != 10*time.Second {
		t.Fatalf("unexpected config %+v", rl)
	}
}

func TestCacheConfigMethods(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head,")
	t.Setenv("CACHE_ENABLED", "off")
	c := LoadCacheConfig()
	if c.Enabled || !c.Methods["GET"] || !c.Methods["HEAD"] || len(c.Methods) != 2 {
		t.Fatalf("unexpected cache config %+v", c)
	}
}

func TestRedisOptions(t *testing.T) {
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("REDIS_HOST", "")
	t.Setenv("REDIS_DB", "3")
	o := RedisOptions()
	if o.Addr != "cache:6380" || o.DB != 3 || o.TLSConfig != nil {
		t.Fatalf("unexpected options %+v", o)
	}
}
