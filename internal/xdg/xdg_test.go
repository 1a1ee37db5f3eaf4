// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package xdg

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigDir_EnvVar(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	got, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() error = %v", err)
	}
	want := "/custom/config/warden"
	if got != want {
		t.Errorf("ConfigDir() = %q, want %q", got, want)
	}
}

func TestConfigDir_Default(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "/home/testuser")
	got, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() error = %v", err)
	}
	want := "/home/testuser/.config/warden"
	if got != want {
		t.Errorf("ConfigDir() = %q, want %q", got, want)
	}
}

func TestConfigDir_NoHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "")
	if _, err := ConfigDir(); err == nil {
		t.Fatal("ConfigDir() expected error when HOME is unset")
	}
}

func TestDefaultConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	got, err := DefaultConfigFile()
	if err != nil {
		t.Fatalf("DefaultConfigFile() error = %v", err)
	}
	want := "/custom/config/warden/config.yaml"
	if got != want {
		t.Errorf("DefaultConfigFile() = %q, want %q", got, want)
	}
}

func TestResolveConfigFile_Explicit(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	got, err := ResolveConfigFile("/etc/warden.yaml")
	if err != nil {
		t.Fatalf("ResolveConfigFile() error = %v", err)
	}
	if got != "/etc/warden.yaml" {
		t.Errorf("ResolveConfigFile() = %q, want explicit path", got)
	}
}

func TestResolveConfigFile_DefaultMissing(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	got, err := ResolveConfigFile("")
	if err != nil {
		t.Fatalf("ResolveConfigFile() error = %v", err)
	}
	if got != "" {
		t.Errorf("ResolveConfigFile() = %q, want empty", got)
	}
}

func TestResolveConfigFile_DefaultPresent(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", base)
	dir := filepath.Join(base, "warden")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("log:\n  format: text\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := ResolveConfigFile("")
	if err != nil {
		t.Fatalf("ResolveConfigFile() error = %v", err)
	}
	if got != path {
		t.Errorf("ResolveConfigFile() = %q, want %q", got, path)
	}
}

func TestResolveConfigFile_NoHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "")
	got, err := ResolveConfigFile("")
	if err != nil {
		t.Fatalf("ResolveConfigFile() error = %v", err)
	}
	if got != "" {
		t.Errorf("ResolveConfigFile() = %q, want empty", got)
	}
}
