package handlers

import (
	"net/http"
	"strings"

	applog "fabrica/internal/log"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionUser struct {
	ID    uint   `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Login reports the signed-in operator on GET and processes sign-in
// submissions on POST.
func Login(w http.ResponseWriter, r *http.Request) {
	applog.Debug(r.Context(), "handling login request", "method", r.Method)

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		if !ActiveSession(r) {
			writeJSONError(w, http.StatusUnauthorized, "not signed in")
			return
		}
		id, _ := currentUserID(r)
		writeJSON(w, http.StatusOK, sessionUser{
			ID:    id,
			Email: sessionManager.GetString(r.Context(), sessionUserEmailKey),
			Name:  sessionManager.GetString(r.Context(), sessionUserNameKey),
		})
	case http.MethodPost:
		if sessionManager == nil || database == nil {
			applog.Debug(r.Context(), "authentication dependencies unavailable", "hasSession", sessionManager != nil, "hasDatabase", database != nil)
			writeJSONError(w, http.StatusServiceUnavailable, "authentication not available")
			return
		}
		var req loginRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		email := strings.TrimSpace(req.Email)
		if email == "" || req.Password == "" {
			applog.Debug(r.Context(), "login request missing credentials", "emailPresent", email != "", "passwordPresent", req.Password != "")
			writeJSONError(w, http.StatusBadRequest, "Email and password are required.")
			return
		}

		user, ok := authenticate(r, email, req.Password)
		if !ok {
			applog.Debug(r.Context(), "authentication failed", "email", strings.ToLower(email))
			message := sessionManager.PopString(r.Context(), sessionLoginMessageKey)
			if message == "" {
				message = "We were unable to sign you in. Please try again."
			}
			writeJSONError(w, http.StatusUnauthorized, message)
			return
		}

		applog.Info(r.Context(), "operator signed in", "user_id", user.ID)
		writeJSON(w, http.StatusOK, sessionUser{ID: user.ID, Email: user.Email, Name: user.Name})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
