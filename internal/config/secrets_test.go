package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSecret(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secret.txt")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestResolveSecret_EnvOnly(t *testing.T) {
	const envName = "TEST_SECRET_ENV_ONLY"
	t.Setenv(envName, "env-value")

	value, err := ResolveSecret(envName)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "env-value" {
		t.Errorf("got %q, want %q", value, "env-value")
	}
}

func TestResolveSecret_FileWinsOverEnv(t *testing.T) {
	const envName = "TEST_SECRET_FILE_WINS"
	t.Setenv(envName, "env-value")
	t.Setenv(envName+"_FILE", writeSecret(t, "  file-value \n\n"))

	value, err := ResolveSecret(envName)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "file-value" {
		t.Errorf("got %q, want %q (file should win and be trimmed)", value, "file-value")
	}
}

func TestResolveSecret_NeitherSet(t *testing.T) {
	const envName = "TEST_SECRET_NEITHER_SET"
	t.Setenv(envName, "")
	t.Setenv(envName+"_FILE", "")

	value, err := ResolveSecret(envName)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "" {
		t.Errorf("got %q, want empty string", value)
	}
}

func TestResolveSecret_FileNotFound(t *testing.T) {
	const envName = "TEST_SECRET_FILE_NOT_FOUND"
	t.Setenv(envName+"_FILE", "/nonexistent/path/to/secret")

	if _, err := ResolveSecret(envName); err == nil {
		t.Error("expected error when file does not exist")
	}
}

func TestLoadCredentials(t *testing.T) {
	t.Setenv(EnvAdminUser, "admin")
	t.Setenv(EnvAdminPass+"_FILE", writeSecret(t, "s3cret\n"))
	t.Setenv(EnvEditorUser, "")
	t.Setenv(EnvEditorPass, "")
	t.Setenv(EnvViewerUser, "reader")
	t.Setenv(EnvViewerPass, "pw")

	c, err := LoadCredentials()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.AdminUser != "admin" || c.AdminPass != "s3cret" {
		t.Errorf("unexpected admin credentials %+v", c)
	}
	if c.ViewerUser != "reader" || c.ViewerPass != "pw" {
		t.Errorf("unexpected viewer credentials %+v", c)
	}
	if !c.AuthEnabled() {
		t.Error("expected auth to be enabled")
	}
	if !(Credentials{ViewerUser: "v", ViewerPass: "p"}).AuthEnabled() {
		t.Error("expected a viewer account alone to enable auth")
	}
	if (Credentials{EditorUser: "ed"}).AuthEnabled() {
		t.Error("account without password must not enable auth")
	}
}

func TestLoadCredentials_BadFile(t *testing.T) {
	t.Setenv(EnvEditorPass+"_FILE", "/nonexistent/editor-pass")
	if _, err := LoadCredentials(); err == nil {
		t.Error("expected error for unreadable secret file")
	}
}
