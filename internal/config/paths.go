package config

import (
	"os"
	"path/filepath"
)

// Root returns the kernel's configuration directory, honoring an explicit
// override before falling back to the XDG-style per-user location.
func Root() string {
	if dir := os.Getenv("KERNEL_CONFIG_DIR"); dir != "" {
		return dir
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "kernel")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".kernel")
	}
	return filepath.Join(home, ".config", "kernel")
}

func SettingsPath() string { return filepath.Join(Root(), "settings.json") }
func ModulesPath() string  { return filepath.Join(Root(), "modules.json") }

// DatabasePath returns the location of the embedded SQL store.
func DatabasePath() string {
	if p := os.Getenv("KERNEL_DATABASE_PATH"); p != "" {
		return p
	}
	return filepath.Join(Root(), "kernel.db")
}
