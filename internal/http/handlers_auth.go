package http

import (
	"net/http"

	"lifelog/internal/core"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Token string `json:"token,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := DecodeJSON(r, &req); err != nil {
		s.fail(w, r, errBadBody)
		return
	}
	id, err := s.deps.Session.Login(r.Context(), sanitizeInput(req.Email), req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	NewResponse().JSON(s.sessionBody(id)).Send(w)
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := DecodeJSON(r, &req); err != nil {
		s.fail(w, r, errBadBody)
		return
	}
	id, err := s.deps.Session.Register(r.Context(), sanitizeInput(req.Email), req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(s.sessionBody(id)).Send(w)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Session.Logout(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	NewResponse().Status(http.StatusNoContent).Send(w)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id := s.deps.Session.Current()
	NewResponse().JSON(sessionResponse{UID: id.UID, Email: id.Email}).Send(w)
}

func (s *Server) sessionBody(id core.Identity) sessionResponse {
	return sessionResponse{UID: id.UID, Email: id.Email, Token: s.deps.Session.Token()}
}
