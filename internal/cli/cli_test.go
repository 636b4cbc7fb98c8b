package cli

import (
	"testing"
)

// withFlags sets the global flags for one test and restores them afterwards.
func withFlags(t *testing.T, h string, p int, u, pw string) {
	t.Helper()
	oldHost, oldPort, oldUser, oldPassword := host, port, user, password
	host, port, user, password = h, p, u, pw
	t.Cleanup(func() {
		host, port, user, password = oldHost, oldPort, oldUser, oldPassword
	})
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"start", "stop", "reload", "status", "predict", "outcome",
		"models", "calibration", "tests", "config", "tui"}

	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd == rootCmd {
			t.Errorf("command %q not registered", name)
		}
	}

	for _, sub := range []string{"list", "create", "show", "analyze", "stop"} {
		cmd, _, err := rootCmd.Find([]string{"tests", sub})
		if err != nil || cmd.Name() != sub {
			t.Errorf("tests subcommand %q not registered", sub)
		}
	}
}

func TestGetServerURL(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"localhost", 8080, "http://localhost:8080"},
		{"10.1.2.3", 9191, "http://10.1.2.3:9191"},
	}

	for _, tt := range tests {
		withFlags(t, tt.host, tt.port, "", "")
		if got := GetServerURL(); got != tt.want {
			t.Errorf("expected %s, got %s", tt.want, got)
		}
	}
}

func TestOutputFlags(t *testing.T) {
	oldJSON, oldVerbose := jsonOut, verbose
	t.Cleanup(func() { jsonOut, verbose = oldJSON, oldVerbose })

	jsonOut, verbose = true, false
	if !IsJSON() || IsVerbose() {
		t.Error("expected json on, verbose off")
	}
	jsonOut, verbose = false, true
	if IsJSON() || !IsVerbose() {
		t.Error("expected json off, verbose on")
	}
}

func TestNewClient_UsesFlags(t *testing.T) {
	withFlags(t, "quorum.internal", 7070, "ops", "hunter2")

	client := NewClient()

	if client.baseURL != "http://quorum.internal:7070" {
		t.Errorf("unexpected base url %s", client.baseURL)
	}
	if u, p := GetAuth(); client.user != u || client.password != p {
		t.Errorf("client credentials %s:%s do not match flags", client.user, client.password)
	}
}

func TestSetVersion(t *testing.T) {
	old := Version
	t.Cleanup(func() { SetVersion(old) })

	SetVersion("9.9.9")

	if Version != "9.9.9" || rootCmd.Version != "9.9.9" {
		t.Errorf("version not applied: %s / %s", Version, rootCmd.Version)
	}
}
