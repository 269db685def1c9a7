package auth

import (
	"net/http"

	"backoffice/apperr"
	"backoffice/httpx"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

func SignUpHandler(s *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in credentials
		if err := httpx.DecodeJSON(r, &in); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		sess, err := s.SignUp(r.Context(), in.Email, in.Password, in.FullName)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, sess)
	}
}

func LoginHandler(s *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in credentials
		if err := httpx.DecodeJSON(r, &in); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		sess, err := s.SignIn(r.Context(), in.Email, in.Password)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, sess)
	}
}

// SessionHandler answers the bootstrap request of an authenticated client.
func SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := SessionFrom(r.Context())
		if sess == nil {
			httpx.WriteError(w, r, apperr.Unauthorized(""))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, sess)
	}
}

func LogoutHandler(s *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.SignOut(r.Context(), SessionFrom(r.Context())); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		httpx.WriteMessage(w, http.StatusOK, "signed out")
	}
}

// PermissionsHandler returns the permission shape of ?role=, defaulting to
// the caller's own role.
func PermissionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := r.URL.Query().Get("role")
		if role == "" {
			if sess := SessionFrom(r.Context()); sess != nil {
				role = sess.Profile.Role
			}
		}
		if !ValidRole(role) {
			httpx.WriteError(w, r, apperr.Invalid("unknown role: "+role))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"role":        role,
			"permissions": PermissionsFor(role),
		})
	}
}
