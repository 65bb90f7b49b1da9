package http

import (
	"net/http"
	"strings"
	"time"

	"lifelog/internal/core"
	"lifelog/internal/localstore"
)

type goalJSON struct {
	core.Goal
	Deadline *localstore.DeadlineStatus `json:"deadline,omitempty"`
}

type goalsResponse struct {
	Goals     []goalJSON `json:"goals"`
	Completed int        `json:"completed"`
	Total     int        `json:"total"`
}

type goalRequest struct {
	Name       string `json:"name"`
	TargetDate string `json:"targetDate"`
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := s.goals(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	now := s.now()
	list := goals.List()
	resp := goalsResponse{Goals: make([]goalJSON, 0, len(list))}
	resp.Completed, resp.Total = goals.Completed()
	for _, g := range list {
		resp.Goals = append(resp.Goals, s.goalBody(g, now))
	}
	NewResponse().JSON(resp).Send(w)
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var req goalRequest
	if err := DecodeJSON(r, &req); err != nil {
		s.fail(w, r, errBadBody)
		return
	}
	var target *time.Time
	if strings.TrimSpace(req.TargetDate) != "" {
		t, err := core.ParseDay(req.TargetDate)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		target = &t
	}
	goals, err := s.goals(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	g, err := goals.Add(r.Context(), sanitizeInput(req.Name), target)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(s.goalBody(g, s.now())).Send(w)
}

func (s *Server) handleToggleGoal(w http.ResponseWriter, r *http.Request) {
	goals, err := s.goals(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	g, err := goals.Toggle(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	NewResponse().JSON(s.goalBody(g, s.now())).Send(w)
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	goals, err := s.goals(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := goals.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	NewResponse().Status(http.StatusNoContent).Send(w)
}

// goals loads the signed-in user's goals from device storage.
func (s *Server) goals(r *http.Request) (*localstore.Goals, error) {
	return localstore.LoadGoals(r.Context(), s.deps.KV, s.deps.Session.Current().UID)
}

func (s *Server) goalBody(g core.Goal, now time.Time) goalJSON {
	body := goalJSON{Goal: g}
	if st, ok := localstore.Deadline(g, now); ok {
		body.Deadline = &st
	}
	return body
}
