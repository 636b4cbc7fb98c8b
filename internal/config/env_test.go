package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("QUORUM_TEST_HOST", "10.9.8.7")
	t.Setenv("QUORUM_TEST_EMPTY", "")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"set", "host: ${QUORUM_TEST_HOST}", "host: 10.9.8.7"},
		{"set twice", "a: ${QUORUM_TEST_HOST}\nb: ${QUORUM_TEST_HOST}", "a: 10.9.8.7\nb: 10.9.8.7"},
		{"set but empty", "token: '${QUORUM_TEST_EMPTY}'", "token: ''"},
		{"unset kept", "token: ${QUORUM_TEST_UNSET}", "token: ${QUORUM_TEST_UNSET}"},
		{"unset with fallback", "dir: ${QUORUM_TEST_UNSET:-/var/lib/quorum}", "dir: /var/lib/quorum"},
		{"set ignores fallback", "host: ${QUORUM_TEST_HOST:-localhost}", "host: 10.9.8.7"},
		{"no references", "strategy: voting", "strategy: voting"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(expandEnv([]byte(tt.in))); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quorum.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_ExpandsReferences(t *testing.T) {
	t.Setenv("QUORUM_TEST_PASSWORD", "s3cret")

	path := writeConfig(t, `
auth:
  enabled: true
  user: ops
  password: "${QUORUM_TEST_PASSWORD}"
persistence:
  backend: "${QUORUM_TEST_BACKEND:-memory}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Auth.Password != "s3cret" {
		t.Errorf("expected expanded password, got %q", cfg.Auth.Password)
	}
	if cfg.Persistence.Backend != "memory" {
		t.Errorf("expected fallback backend, got %q", cfg.Persistence.Backend)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("QUORUM_PORT", "7070")
	t.Setenv("QUORUM_LOG_LEVEL", "debug")
	t.Setenv("QUORUM_STORAGE_BACKEND", "memory")

	cfg := Default()
	if err := ApplyEnv(cfg); err != nil {
		t.Fatalf("apply env: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("expected port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	if cfg.Persistence.Backend != "memory" {
		t.Errorf("expected memory backend, got %s", cfg.Persistence.Backend)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("host should keep its default, got %s", cfg.Server.Host)
	}
}

func TestApplyEnv_InvalidValue(t *testing.T) {
	t.Setenv("QUORUM_PORT", "not-a-port")

	if err := ApplyEnv(Default()); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	t.Setenv("QUORUM_HOST", "10.0.0.1")

	cfg, err := Load(writeConfig(t, "server:\n  host: 127.0.0.1\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Host != "10.0.0.1" {
		t.Errorf("expected env host, got %s", cfg.Server.Host)
	}
}
