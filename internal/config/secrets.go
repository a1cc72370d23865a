package config

import (
	"fmt"
	"os"
	"strings"
)

// Secret environment variables. Each may instead name a file through the
// same variable with a _FILE suffix.
const (
	EnvAdminUser  = "NOVEL_ADMIN_USER"
	EnvAdminPass  = "NOVEL_ADMIN_PASS"
	EnvEditorUser = "NOVEL_EDITOR_USER"
	EnvEditorPass = "NOVEL_EDITOR_PASS"
	EnvViewerUser = "NOVEL_VIEWER_USER"
	EnvViewerPass = "NOVEL_VIEWER_PASS"
	EnvPGPassword = "PGPASSWORD"
)

// ResolveSecret reads a secret value using the *_FILE convention.
// If envName+"_FILE" is set, the secret is read from that file path and
// trimmed. Otherwise the value of envName is returned, possibly empty.
func ResolveSecret(envName string) (string, error) {
	fileEnv := envName + "_FILE"
	if filePath := os.Getenv(fileEnv); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("failed to read secret from %s=%s: %w", fileEnv, filePath, err)
		}
		return strings.TrimSpace(string(content)), nil
	}
	return os.Getenv(envName), nil
}

// Credentials holds the basic-auth accounts of the HTTP API.
// An account with an empty user or password is disabled.
type Credentials struct {
	AdminUser  string
	AdminPass  string
	EditorUser string
	EditorPass string
	ViewerUser string
	ViewerPass string
}

// AuthEnabled returns true if at least one account is configured.
func (c Credentials) AuthEnabled() bool {
	return (c.AdminUser != "" && c.AdminPass != "") ||
		(c.EditorUser != "" && c.EditorPass != "") ||
		(c.ViewerUser != "" && c.ViewerPass != "")
}

// LoadCredentials resolves the API accounts from the environment.
func LoadCredentials() (Credentials, error) {
	var c Credentials
	for _, s := range []struct {
		env string
		dst *string
	}{
		{EnvAdminUser, &c.AdminUser},
		{EnvAdminPass, &c.AdminPass},
		{EnvEditorUser, &c.EditorUser},
		{EnvEditorPass, &c.EditorPass},
		{EnvViewerUser, &c.ViewerUser},
		{EnvViewerPass, &c.ViewerPass},
	} {
		v, err := ResolveSecret(s.env)
		if err != nil {
			return Credentials{}, err
		}
		*s.dst = v
	}
	return c, nil
}
