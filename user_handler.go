package main

import (
	"net/http"

	"backoffice/apperr"
	"backoffice/auth"
	"backoffice/httpx"
	"backoffice/model"
	"backoffice/realtime"
)

// ListUsersHandler returns every user without password hashes.
func ListUsersHandler(s *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := s.ListUsers(r.Context())
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, users)
	}
}

// SetUserRoleHandler handles PUT /api/users/{id}/role with {"role": "..."}.
// The new role applies from the user's next session bootstrap.
func SetUserRoleHandler(s *auth.Service, pub realtime.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		var in struct {
			Role string `json:"role"`
		}
		if err := httpx.DecodeJSON(r, &in); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		u, err := s.SetRole(r.Context(), id, in.Role)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		p := u.Profile()
		realtime.Changed(pub, "users", model.ActionUpdate, u.ID, p)
		httpx.WriteJSON(w, http.StatusOK, p)
	}
}

// SetUserActiveHandler handles PUT /api/users/{id}/active with {"active": bool}.
func SetUserActiveHandler(s *auth.Service, pub realtime.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		var in struct {
			Active *bool `json:"active"`
		}
		if err := httpx.DecodeJSON(r, &in); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		if in.Active == nil {
			httpx.WriteError(w, r, apperr.Invalid("active is required"))
			return
		}
		if sess := auth.SessionFrom(r.Context()); sess != nil && sess.Profile.ID == id && !*in.Active {
			httpx.WriteError(w, r, apperr.Conflict("you cannot deactivate your own account"))
			return
		}
		u, err := s.SetActive(r.Context(), id, *in.Active)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		p := u.Profile()
		realtime.Changed(pub, "users", model.ActionUpdate, u.ID, p)
		httpx.WriteJSON(w, http.StatusOK, p)
	}
}
