package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// Settings is the optional TOML overlay for program data and live tracking:
//
//	[catalog]
//	path = "recital_data.dat"
//	timezone = "America/Chicago"
//
//	[live]
//	app_id = "dancers-pointe-app"
//	authorized_users = ["director@example.com"]
type Settings struct {
	Catalog CatalogSettings `toml:"catalog"`
	Live    LiveSettings    `toml:"live"`
}

type CatalogSettings struct {
	Path     string `toml:"path"`
	Timezone string `toml:"timezone"`
}

type LiveSettings struct {
	AppID           string   `toml:"app_id"`
	AuthorizedUsers []string `toml:"authorized_users"`
}

// LoadSettings decodes the TOML file at path.  Unknown keys are rejected.
func LoadSettings(path string) (Settings, error) {
	var s Settings
	md, err := toml.DecodeFile(path, &s)
	if err != nil {
		return Settings{}, fmt.Errorf("%w: settings %s: %v", ErrConfig, path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Settings{}, fmt.Errorf("%w: settings %s: unknown key %s", ErrConfig, path, undecoded[0])
	}
	return s, nil
}

// Apply overlays non-empty settings onto cfg.  authorized_users extends the
// environment list.
func (s Settings) Apply(cfg Config) Config {
	if s.Catalog.Path != "" {
		cfg.CatalogPath = s.Catalog.Path
	}
	if s.Catalog.Timezone != "" {
		cfg.CatalogTZ = s.Catalog.Timezone
	}
	if s.Live.AppID != "" {
		cfg.AppID = s.Live.AppID
	}
	if len(s.Live.AuthorizedUsers) > 0 {
		users := append([]string(nil), cfg.AuthorizedUsers...)
		cfg.AuthorizedUsers = append(users, splitList(strings.Join(s.Live.AuthorizedUsers, ","))...)
	}
	return cfg
}
