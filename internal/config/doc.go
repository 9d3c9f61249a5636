// Package config loads the TOML settings file referenced by the
// SETTINGS_PATH environment variable (settings.toml by default).
//
// Settings are exposed through an atomically swapped snapshot so a
// background watcher can hot-reload the file without racing readers.
package config
