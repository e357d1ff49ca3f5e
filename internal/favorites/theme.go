package favorites

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/log"
)

// ThemeKey is the storage key of the UI theme preference.
const ThemeKey = "dancersPointeTheme"

// Theme is the UI colour scheme preference.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ErrInvalidTheme is returned by ParseTheme for unknown values.
var ErrInvalidTheme = errors.New("favorites: invalid theme")

// ParseTheme accepts "light" or "dark" in any case.
func ParseTheme(s string) (Theme, error) {
	switch Theme(strings.ToLower(strings.TrimSpace(s))) {
	case ThemeLight:
		return ThemeLight, nil
	case ThemeDark:
		return ThemeDark, nil
	}
	return "", ErrInvalidTheme
}

// LoadTheme reads the stored theme, falling back to light.
func LoadTheme(ctx context.Context, storage Storage, logger *log.Logger) Theme {
	if storage == nil {
		return ThemeLight
	}
	raw, ok, err := storage.Get(ctx, ThemeKey)
	if err != nil {
		if logger != nil {
			logger.Warn("theme load failed", "err", err)
		}
		return ThemeLight
	}
	if !ok {
		return ThemeLight
	}
	t, err := ParseTheme(string(raw))
	if err != nil {
		return ThemeLight
	}
	return t
}

// SaveTheme stores the theme.  Failures are logged only.
func SaveTheme(ctx context.Context, storage Storage, theme Theme, logger *log.Logger) {
	if storage == nil {
		return
	}
	if err := storage.Set(ctx, ThemeKey, []byte(theme)); err != nil && logger != nil {
		logger.Warn("theme save failed", "err", err)
	}
}
