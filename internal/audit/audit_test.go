package audit

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestSanitiseKey_Secret(t *testing.T) {
	t.Parallel()
	if got := SanitiseKey("GROQ_API_KEY", "gsk_abc123"); got != "set" {
		t.Errorf("expected 'set', got %q", got)
	}
	if got := SanitiseKey("CLIP_API_KEY", ""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestSanitiseKey_NonSecret(t *testing.T) {
	t.Parallel()
	if got := SanitiseKey("CATALOG_BACKEND", "qdrant"); got != "qdrant" {
		t.Errorf("expected 'qdrant', got %q", got)
	}
	if got := SanitiseKey("MODEL_PROVIDER", ""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestPresence(t *testing.T) {
	t.Parallel()
	if got := presence("something"); got != "set" {
		t.Errorf("expected 'set', got %q", got)
	}
	if got := presence(""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestSanitiseConfigPath(t *testing.T) {
	t.Parallel()
	if got := sanitiseConfigPath(""); got != "none" {
		t.Errorf("expected 'none', got %q", got)
	}
	if got := sanitiseConfigPath("/tmp/config.yaml"); got != "/tmp/config.yaml" {
		t.Errorf("expected '/tmp/config.yaml', got %q", got)
	}
	home, err := os.UserHomeDir()
	if err == nil {
		p := home + "/.alula/config.yaml"
		if got := sanitiseConfigPath(p); got != "~/.alula/config.yaml" {
			t.Errorf("expected '~/.alula/config.yaml', got %q", got)
		}
	}
}

func TestLogCommandStart_RedactsSecrets(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk_super_secret")
	t.Setenv("CATALOG_BACKEND", "sqlite")

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	LogCommandStart(context.Background(), log, "serve", "")

	out := buf.String()
	if strings.Contains(out, "gsk_super_secret") {
		t.Fatalf("secret value leaked into audit log: %s", out)
	}
	if !strings.Contains(out, `"GROQ_API_KEY":"set"`) {
		t.Errorf("expected GROQ_API_KEY presence marker, got %s", out)
	}
	if !strings.Contains(out, `"CATALOG_BACKEND":"sqlite"`) {
		t.Errorf("expected CATALOG_BACKEND value, got %s", out)
	}
	if !strings.Contains(out, `"config_file":"none"`) {
		t.Errorf("expected config_file none, got %s", out)
	}
}
