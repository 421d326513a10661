// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, duration parsing, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

const validConfig = `
server:
  http_addr: "0.0.0.0:8000"

messenger:
  api_base: "https://api.messenger.example"
  key_id: "app_key"
  secret: "app_secret"
  typing_stop_delay: "3s"

guestchat:
  api_base: "https://api.guestchat.example"
  org_id: "org-123"
  deployment_id: "deploy-456"
  queue_name: "AllAgents"

logging:
  level: "debug"
  format: "json"
`

func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8000" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8000")
	}
	if cfg.Messenger.KeyID != "app_key" {
		t.Errorf("Messenger.KeyID = %q, want %q", cfg.Messenger.KeyID, "app_key")
	}
	if cfg.Messenger.TypingStopDelay != 3*time.Second {
		t.Errorf("Messenger.TypingStopDelay = %v, want %v", cfg.Messenger.TypingStopDelay, 3*time.Second)
	}
	if cfg.GuestChat.OrgID != "org-123" {
		t.Errorf("GuestChat.OrgID = %q, want %q", cfg.GuestChat.OrgID, "org-123")
	}
	if cfg.GuestChat.QueueName != "AllAgents" {
		t.Errorf("GuestChat.QueueName = %q, want %q", cfg.GuestChat.QueueName, "AllAgents")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestLoad_DefaultTypingStopDelay(t *testing.T) {
	content := strings.Replace(validConfig, `  typing_stop_delay: "3s"`, "", 1)

	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Messenger.TypingStopDelay != DefaultTypingStopDelay {
		t.Errorf("Messenger.TypingStopDelay = %v, want default %v", cfg.Messenger.TypingStopDelay, DefaultTypingStopDelay)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("BRIDGE_TEST_SECRET", "from-env")

	content := strings.Replace(validConfig, `secret: "app_secret"`, `secret: "${BRIDGE_TEST_SECRET}"`, 1)

	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Messenger.Secret != "from-env" {
		t.Errorf("Messenger.Secret = %q, want %q", cfg.Messenger.Secret, "from-env")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	content := strings.Replace(validConfig, `typing_stop_delay: "3s"`, `typing_stop_delay: "not-a-duration"`, 1)

	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected error for invalid duration, got nil")
	}
	if !strings.Contains(err.Error(), "typing_stop_delay") {
		t.Errorf("error = %v, want mention of typing_stop_delay", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
}

func TestValidate_RequiredFields(t *testing.T) {
	tests := []struct {
		name          string
		remove        string
		wantErrSubstr string
	}{
		{
			name:          "missing http_addr",
			remove:        `  http_addr: "0.0.0.0:8000"`,
			wantErrSubstr: "server.http_addr is required",
		},
		{
			name:          "missing messenger api_base",
			remove:        `  api_base: "https://api.messenger.example"`,
			wantErrSubstr: "messenger.api_base is required",
		},
		{
			name:          "missing messenger key_id",
			remove:        `  key_id: "app_key"`,
			wantErrSubstr: "messenger.key_id is required",
		},
		{
			name:          "missing messenger secret",
			remove:        `  secret: "app_secret"`,
			wantErrSubstr: "messenger.secret is required",
		},
		{
			name:          "missing guestchat org_id",
			remove:        `  org_id: "org-123"`,
			wantErrSubstr: "guestchat.org_id is required",
		},
		{
			name:          "missing guestchat deployment_id",
			remove:        `  deployment_id: "deploy-456"`,
			wantErrSubstr: "guestchat.deployment_id is required",
		},
		{
			name:          "missing guestchat queue_name",
			remove:        `  queue_name: "AllAgents"`,
			wantErrSubstr: "guestchat.queue_name is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := strings.Replace(validConfig, tt.remove, "", 1)

			_, err := Load(writeConfig(t, content))
			if err == nil {
				t.Fatal("Load() expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErrSubstr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErrSubstr)
			}
		})
	}
}
