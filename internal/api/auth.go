package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/meshboard/meshboard-core/internal/auth"
)

// Auth constants.
const (
	// defaultTokenTTLMinutes is used when no access token TTL is configured.
	defaultTokenTTLMinutes = 15

	// devUsername/devPassword are the development fallback credentials,
	// active only while no admin password hash is configured.
	devUsername = "admin"
	devPassword = "admin"
)

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse is the response body for POST /auth/login.
type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// meResponse is the response body for GET /auth/me.
type meResponse struct {
	Username  string    `json:"username"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleLogin authenticates against the configured admin account and
// returns a JWT access token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	if !s.checkCredentials(req.Username, req.Password) {
		s.logger.Warn("failed login attempt", "username", req.Username)
		writeUnauthorized(w, "invalid credentials")
		return
	}

	ttl := s.secCfg.JWT.AccessTokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTLMinutes
	}

	token, err := auth.GenerateAccessToken(req.Username, s.secCfg.JWT.Secret, ttl)
	if err != nil {
		s.logger.Error("failed to generate access token", "error", err)
		writeInternalError(w, "failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   ttl * 60, // seconds
	})
}

// checkCredentials verifies a login against the configured admin account.
// An empty password hash means no account has been provisioned yet; the
// development fallback admin/admin applies until one is.
func (s *Server) checkCredentials(username, password string) bool {
	admin := s.secCfg.Admin
	if admin.PasswordHash == "" {
		return username == devUsername && password == devPassword
	}
	if username != admin.Username {
		return false
	}

	ok, err := auth.VerifyPassword(password, admin.PasswordHash)
	if err != nil {
		s.logger.Error("password verification failed", "error", err)
		return false
	}
	return ok
}

// handleMe returns the authenticated token's claims, as a cheap token
// sanity check for frontends.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeUnauthorized(w, "no authenticated user")
		return
	}

	resp := meResponse{Username: claims.Subject}
	if claims.IssuedAt != nil {
		resp.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleWSTicket issues a single-use WebSocket authentication ticket
// bound to the authenticated user. The client passes the ticket as a
// query parameter on the upgrade request so the JWT never appears in a
// WebSocket URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeUnauthorized(w, "no authenticated user")
		return
	}

	ticket, err := s.tickets.Issue(claims.Subject)
	if err != nil {
		s.logger.Error("failed to issue websocket ticket", "error", err)
		writeInternalError(w, "failed to issue ticket")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(auth.TicketTTL.Seconds()),
	})
}
