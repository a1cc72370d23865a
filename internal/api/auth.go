package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/xchatlife/novelgraph/internal/config"
)

// Role represents an authorization role.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// authConfig holds the accounts allowed to use the API.
type authConfig struct {
	adminUser  string
	adminPass  string
	editorUser string
	editorPass string
	viewerUser string
	viewerPass string
	enabled    bool
}

var auth *authConfig

// InitAuth installs the API accounts. If no account is configured,
// authentication is disabled (dev-friendly).
func InitAuth(creds config.Credentials) {
	auth = &authConfig{
		adminUser:  creds.AdminUser,
		adminPass:  creds.AdminPass,
		editorUser: creds.EditorUser,
		editorPass: creds.EditorPass,
		viewerUser: creds.ViewerUser,
		viewerPass: creds.ViewerPass,
		enabled:    creds.AuthEnabled(),
	}
}

// IsAuthEnabled returns true if authentication is configured.
func IsAuthEnabled() bool {
	return auth != nil && auth.enabled
}

// authenticate checks basic auth credentials and returns the role if valid.
// Returns empty string if credentials are invalid.
func authenticate(r *http.Request) Role {
	if auth == nil || !auth.enabled {
		return RoleAdmin // No auth configured = full access
	}

	user, pass, ok := r.BasicAuth()
	if !ok {
		return ""
	}

	if auth.adminUser != "" && auth.adminPass != "" {
		if secureCompare(user, auth.adminUser) && secureCompare(pass, auth.adminPass) {
			return RoleAdmin
		}
	}

	if auth.editorUser != "" && auth.editorPass != "" {
		if secureCompare(user, auth.editorUser) && secureCompare(pass, auth.editorPass) {
			return RoleEditor
		}
	}

	if auth.viewerUser != "" && auth.viewerPass != "" {
		if secureCompare(user, auth.viewerUser) && secureCompare(pass, auth.viewerPass) {
			return RoleViewer
		}
	}

	return ""
}

// secureCompare performs constant-time string comparison.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// requireAuth returns 401 Unauthorized with WWW-Authenticate header.
func requireAuth(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="novelgraph"`)
	writeError(w, http.StatusUnauthorized, "unauthorized")
}

// RequireRole wraps a handler and requires one of the specified roles.
func RequireRole(handler http.HandlerFunc, allowedRoles ...Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := authenticate(r)
		if role == "" {
			requireAuth(w)
			return
		}

		for _, allowed := range allowedRoles {
			if role == allowed {
				handler(w, r)
				return
			}
		}

		writeError(w, http.StatusForbidden, "forbidden")
	}
}

// RequireAnyRole wraps a handler that any account may use.
func RequireAnyRole(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleAdmin, RoleEditor, RoleViewer)
}

// RequireEditor wraps a handler that changes the graph.
func RequireEditor(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleAdmin, RoleEditor)
}

// RequireAdmin wraps a handler requiring admin role only.
func RequireAdmin(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleAdmin)
}
