package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("QAINDEX_TEST_TOKEN", "s3cret")
	path := writeConfig(t, `version: "1"
log:
  level: debug
  file: /tmp/qaindex.log
  max_size_mb: 10
modules:
  snapshot.file:
    path: ${QAINDEX_TEST_DIR:-/var/lib/qaindex}/qa-index.json
  gateway.http:
    auth:
      bearer_token: ${QAINDEX_TEST_TOKEN}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.MaxSizeMB != 10 {
		t.Errorf("Log = %+v", cfg.Log)
	}

	var snap struct {
		Path string `yaml:"path"`
	}
	node := cfg.Modules["snapshot.file"]
	if err := node.Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.Path != "/var/lib/qaindex/qa-index.json" {
		t.Errorf("default not applied: %q", snap.Path)
	}

	var gw struct {
		Auth struct {
			BearerToken string `yaml:"bearer_token"`
		} `yaml:"auth"`
	}
	node = cfg.Modules["gateway.http"]
	if err := node.Decode(&gw); err != nil {
		t.Fatal(err)
	}
	if gw.Auth.BearerToken != "s3cret" {
		t.Errorf("env not expanded: %q", gw.Auth.BearerToken)
	}
}

func TestLoad_UnresolvedVariable(t *testing.T) {
	path := writeConfig(t, "version: \"1\"\nmodules:\n  x.y:\n    key: ${QAINDEX_TEST_UNSET_VAR}\n")

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "line 4: unresolved variable QAINDEX_TEST_UNSET_VAR") {
		t.Errorf("Load() = %v, want unresolved variable error", err)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("QAINDEX_TEST_HOME", "/srv/qa")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "path: ${QAINDEX_TEST_HOME}/qa-index.json", want: "path: /srv/qa/qa-index.json"},
		{name: "default unused", in: "path: ${QAINDEX_TEST_HOME:-/tmp}", want: "path: /srv/qa"},
		{name: "default used", in: "bind: ${QAINDEX_TEST_NOPE:-127.0.0.1:8787}", want: "bind: 127.0.0.1:8787"},
		{name: "empty default", in: "session: '${QAINDEX_TEST_NOPE:-}'", want: "session: ''"},
		{name: "escaped", in: "secret: $${NOT_EXPANDED}", want: "secret: ${NOT_EXPANDED}"},
		{name: "no variables", in: "version: \"1\"\n", want: "version: \"1\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandEnv([]byte(tt.in))
			if err != nil {
				t.Fatalf("expandEnv: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("expandEnv(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoad_Missing(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestGeneric(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `version: "1"
modules:
  gateway.http:
    bind: 127.0.0.1:9000
    auth:
      bearer_token: abc
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	generic, err := cfg.Generic()
	if err != nil {
		t.Fatal(err)
	}
	if generic["version"] != "1" {
		t.Errorf("version = %v", generic["version"])
	}
	modules, ok := generic["modules"].(map[string]any)
	if !ok {
		t.Fatalf("modules = %T", generic["modules"])
	}
	gw, ok := modules["gateway.http"].(map[string]any)
	if !ok || gw["bind"] != "127.0.0.1:9000" {
		t.Errorf("gateway.http = %v", modules["gateway.http"])
	}
}

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if cfg.Version != "1" {
		t.Errorf("Version = %q", cfg.Version)
	}
	if got := Resolve(cfg); strings.Join(got, ",") != "snapshot.file,store.qaindex" {
		t.Errorf("modules = %v", got)
	}
}

func TestResolvePath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Chdir(t.TempDir())

	if _, err := ResolvePath(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ResolvePath() = %v, want ErrNotFound", err)
	}

	if err := os.WriteFile(FileName, []byte("version: \"1\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := ResolvePath()
	if err != nil || got != FileName {
		t.Fatalf("ResolvePath() = %q, %v, want local file", got, err)
	}

	xdg := filepath.Join(dir, "qaindex", FileName)
	if err := os.MkdirAll(filepath.Dir(xdg), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(xdg, []byte("version: \"1\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got, _ := ResolvePath(); got != xdg {
		t.Errorf("ResolvePath() = %q, want XDG file first", got)
	}
}
