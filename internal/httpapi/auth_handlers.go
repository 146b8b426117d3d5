package httpapi

import (
	"net/http"
	"time"

	"libris.org/internal/audit"
	"libris.org/internal/auth"
)

type signUpRequest struct {
	FullName          string `json:"full_name"`
	Email             string `json:"email"`
	UniversityID      string `json:"university_id"`
	UniversityCardURL string `json:"university_card_url,omitempty"`
	Password          string `json:"password"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Role      string `json:"role"`
}

func sessionPayload(s auth.Session) sessionResponse {
	return sessionResponse{
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt.UTC().Format(time.RFC3339),
		UserID:    s.Identity.ID,
		Name:      s.Identity.DisplayName,
		Role:      string(s.Identity.Role),
	}
}

func (a *API) handleSignUp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.admit(w, r, "signup:"+clientIP(r)) {
		return
	}

	var req signUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	session, err := a.authority.SignUp(r.Context(), auth.SignUpParams{
		FullName:          req.FullName,
		Email:             req.Email,
		UniversityID:      req.UniversityID,
		UniversityCardURL: req.UniversityCardURL,
		Password:          req.Password,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	audit.LogEvent(r.Context(), "user_signed_up", map[string]any{
		"new_user_id": session.Identity.ID,
	})
	writeJSON(w, http.StatusCreated, sessionPayload(session))
}

// handleSignIn is rate limited per client IP: every attempt consumes a slot,
// rejected attempts included, so a flood cannot probe credentials during its
// own penalty window.
func (a *API) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.admit(w, r, "signin:"+clientIP(r)) {
		return
	}

	var req signInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	session, err := a.authority.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	audit.LogEvent(r.Context(), "user_signed_in", map[string]any{
		"signed_in_user_id": session.Identity.ID,
	})
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

// handleSession describes the current session (GET) or refreshes it (POST).
func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		identity, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "session expired or invalid")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"user_id": identity.ID,
			"name":    identity.DisplayName,
			"role":    identity.Role,
		})
	case http.MethodPost:
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		session, err := a.authority.Refresh(r.Context(), token)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session))
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}
