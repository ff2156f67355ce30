package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/lmsedutechkpr/Slate-sub000/internal/auth"
)

var errForbidden = errors.New("administrative role required")

// getIdentity verifies the request bearer credential.
func (s *Server) getIdentity(r *http.Request) (auth.Identity, error) {
	if s.Auth == nil {
		return auth.Identity{}, auth.ErrMissingToken
	}
	return s.Auth.FromRequest(r)
}

// authorizeAdmin writes 401 or 403 and returns false unless the caller is an
// admin.
func (s *Server) authorizeAdmin(w http.ResponseWriter, r *http.Request) bool {
	id, err := s.getIdentity(r)
	if err != nil {
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), r.URL.Path)
		return false
	}
	if !id.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", errForbidden.Error(), r.URL.Path)
		return false
	}
	return true
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authorizeAdmin(w, r) {
			next.ServeHTTP(w, r)
		}
	})
}

// readPrivileged reads the body of a write from an admin or from a service
// that signed the body with the shared service secret.
func (s *Server) readPrivileged(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeProblem(w, http.StatusRequestEntityTooLarge, "Payload Too Large", err.Error(), r.URL.Path)
		return nil, false
	}
	if sig := r.Header.Get(auth.SignatureHeader); sig != "" && s.Config.Auth.ServiceSecret != "" {
		if auth.VerifyBody(s.Config.Auth.ServiceSecret, body, sig) {
			return body, true
		}
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", "bad signature", r.URL.Path)
		return nil, false
	}
	if !s.authorizeAdmin(w, r) {
		return nil, false
	}
	return body, true
}
