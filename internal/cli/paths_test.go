package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCacheDir(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		name string
		xdg  string
		want string
	}{
		{"home fallback", "", filepath.Join(home, ".cache", appName)},
		{"XDG_CACHE_HOME", "/var/cache/ci", filepath.Join("/var/cache/ci", appName)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("XDG_CACHE_HOME", tt.xdg)
			got, err := cacheDir()
			if err != nil {
				t.Fatalf("cacheDir() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("cacheDir() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUserConfigPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := userConfigPath()
	if err != nil {
		t.Fatalf("userConfigPath() error: %v", err)
	}
	want := filepath.Join(home, ".config", appName, "config.yaml")
	if got != want {
		t.Errorf("userConfigPath() = %q, want %q", got, want)
	}
}

func TestScope(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	rel, err := filepath.Rel(wd, dir)
	if err != nil {
		t.Skip("temp dir not relative to working directory")
	}

	a := scope(dir)
	if len(a) != 13 || !strings.HasSuffix(a, ":") {
		t.Errorf("scope(%q) = %q, want 12 hex chars and a colon", dir, a)
	}
	if b := scope(rel); b != a {
		t.Errorf("scope(relative) = %q, want %q", b, a)
	}
	if c := scope(filepath.Join(dir, "generators")); c == a {
		t.Errorf("scope of a different directory collided: %q", c)
	}
}
