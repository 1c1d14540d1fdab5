package gateway

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/hfgate/hfgate/pkg/session"
)

// handleConfig returns the configured usernames so the UI can render
// the account filter. Tokens never appear here.
func (h *Handler) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"usernames": h.registry.Usernames(),
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin checks the admin credentials and issues a session token.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !h.checkAdminCredentials(req.Username, req.Password) {
		h.logger.Info("login failed", "username", req.Username)
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"success": false,
			"message": "invalid username or password",
		})
		return
	}

	token, err := h.sessions.Create(req.Username)
	if err != nil {
		h.logger.Error("creating session failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not create session")
		return
	}

	h.logger.Info("login succeeded", "username", req.Username, "token", session.TokenPrefix(token))
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   token,
	})
}

// checkAdminCredentials compares the supplied credentials against the
// configured admin account. The configured password may be a bcrypt
// hash; plaintext comparison is constant-time either way.
func (h *Handler) checkAdminCredentials(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(h.cfg.AdminUsername)) == 1

	var passOK bool
	if strings.HasPrefix(h.cfg.AdminPassword, "$2") {
		passOK = bcrypt.CompareHashAndPassword([]byte(h.cfg.AdminPassword), []byte(password)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(password), []byte(h.cfg.AdminPassword)) == 1
	}
	return userOK && passOK
}

type tokenRequest struct {
	Token string `json:"token"`
}

// handleVerifyToken reports whether a session token is still valid.
// Validation deletes expired sessions as a side effect.
func (h *Handler) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := h.sessions.Validate(req.Token); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"success": false,
			"message": "token invalid or expired",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "token valid",
	})
}

// handleLogout revokes a session token. Revocation is idempotent, so an
// already-revoked or unknown token still yields success.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.sessions.Revoke(req.Token)
	h.logger.Info("logout", "token", session.TokenPrefix(req.Token))
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "logged out",
	})
}
