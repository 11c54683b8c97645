package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/questlog/questlog/internal/sync"
)

// isolate points the config and data directories at a temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	return dir
}

func TestDefaults(t *testing.T) {
	dir := isolate(t)

	c, err := Load(Options{EnvFiles: []string{}})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.File != "" {
		t.Errorf("File = %q, want empty without a config file", c.File)
	}
	if c.API.Timeout != 30*time.Second {
		t.Errorf("API.Timeout = %v, want 30s", c.API.Timeout)
	}
	if c.Daemon.Interval != 5*time.Minute || c.Daemon.Debounce != 2*time.Second {
		t.Errorf("unexpected daemon settings: %+v", c.Daemon)
	}
	if want := filepath.Join(dir, "data", AppName, AppName+".db"); c.Store.Path != want {
		t.Errorf("Store.Path = %q, want %q", c.Store.Path, want)
	}
	if c.Strategy() != sync.BackendWins {
		t.Errorf("Strategy = %q, want backend-wins", c.Strategy())
	}
	if c.UI.Color != "auto" {
		t.Errorf("UI.Color = %q, want auto", c.UI.Color)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.toml")
	content := `
[api]
base_url = "https://quest.example.com"
timeout = "5s"

[merge]
strategy = "newest-wins"

[dashboard]
port = 9000
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	t.Setenv("QL_DASHBOARD_PORT", "9100")
	t.Setenv("QL_AUTH_TOKEN", "from-env")

	c, err := Load(Options{ConfigFile: path, EnvFiles: []string{}})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.File != path {
		t.Errorf("File = %q, want %q", c.File, path)
	}
	if c.API.BaseURL != "https://quest.example.com" || c.API.Timeout != 5*time.Second {
		t.Errorf("unexpected api settings: %+v", c.API)
	}
	if c.Strategy() != sync.NewestWins {
		t.Errorf("Strategy = %q, want newest-wins", c.Strategy())
	}
	if c.Dashboard.Port != 9100 {
		t.Errorf("Dashboard.Port = %d, want env override 9100", c.Dashboard.Port)
	}
	if c.Auth.Token != "from-env" {
		t.Errorf("Auth.Token = %q, want from-env", c.Auth.Token)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := isolate(t)
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("QL_UI_COLOR=never\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("QL_UI_COLOR") })

	c, err := Load(Options{EnvFiles: []string{envFile, filepath.Join(dir, "missing.env")}})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.UI.Color != "never" {
		t.Errorf("UI.Color = %q, want never from .env", c.UI.Color)
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	dir := isolate(t)
	if _, err := Load(Options{ConfigFile: filepath.Join(dir, "nope.toml"), EnvFiles: []string{}}); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	isolate(t)
	t.Setenv("QL_MERGE_STRATEGY", "local-wins")

	_, err := Load(Options{EnvFiles: []string{}})
	if err == nil || !strings.Contains(err.Error(), "merge.strategy") {
		t.Errorf("Load() error = %v, want merge.strategy error", err)
	}
}

func TestValidate(t *testing.T) {
	isolate(t)
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "empty base url", mutate: func(c *Config) { c.API.BaseURL = "" }},
		{name: "zero timeout", mutate: func(c *Config) { c.API.Timeout = 0 }},
		{name: "empty store", mutate: func(c *Config) { c.Store.Path = "" }},
		{name: "bad color", mutate: func(c *Config) { c.UI.Color = "sometimes" }},
		{name: "bad port", mutate: func(c *Config) { c.Dashboard.Port = 70000 }},
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestWriteDefault(t *testing.T) {
	isolate(t)
	path := DefaultPath()

	if err := WriteDefault(path, false); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}
	if err := WriteDefault(path, false); err == nil {
		t.Error("expected error when file exists without force")
	}
	if err := WriteDefault(path, true); err != nil {
		t.Fatalf("WriteDefault with force failed: %v", err)
	}

	c, err := Load(Options{EnvFiles: []string{}})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.File != path {
		t.Errorf("File = %q, want %q", c.File, path)
	}
	def := Default()
	c.File = ""
	if *c != *def {
		t.Errorf("written defaults differ:\n got %+v\nwant %+v", c, def)
	}
}

func TestEncodeMasksToken(t *testing.T) {
	c := Default()
	c.Auth.Token = "secret-token"

	var buf bytes.Buffer
	if err := c.Encode(&buf, false); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if strings.Contains(buf.String(), "secret-token") {
		t.Error("token should be masked")
	}

	buf.Reset()
	if err := c.Encode(&buf, true); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !strings.Contains(buf.String(), "secret-token") {
		t.Error("token should be shown with showSecrets")
	}
}
