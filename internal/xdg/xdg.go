// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

// Package xdg locates warden's configuration under the XDG Base Directory layout.
package xdg

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const (
	appName        = "warden"
	configFileName = "config.yaml"
)

// ConfigDir returns $XDG_CONFIG_HOME/warden, falling back to ~/.config/warden.
func ConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home := os.Getenv("HOME")
		if home == "" {
			return "", oops.Code("XDG_NO_HOME").Errorf("neither XDG_CONFIG_HOME nor HOME is set")
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, appName), nil
}

// DefaultConfigFile returns the path of the implicit config file.
func DefaultConfigFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// ResolveConfigFile picks the config file to load. An explicit path always
// wins. Otherwise the default file is used when it exists, and "" means
// none. A default file that exists but cannot be inspected is an error.
func ResolveConfigFile(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	path, err := DefaultConfigFile()
	if err != nil {
		// No home directory means no implicit config, not a failure.
		return "", nil //nolint:nilerr // implicit config is optional
	}
	_, err = os.Stat(path)
	switch {
	case err == nil:
		return path, nil
	case errors.Is(err, fs.ErrNotExist):
		return "", nil
	default:
		return "", oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
	}
}
