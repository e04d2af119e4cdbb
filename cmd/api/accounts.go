package main

import (
	"net/http"
	"time"

	"github.com/MariamAlaa-8/realstate-backend/auth"
)

type userResponse struct {
	ID          string `json:"id"`
	FullName    string `json:"fullName"`
	Phone       string `json:"phone"`
	Role        string `json:"role"`
	IsTemp      bool   `json:"isTemp"`
	IsActive    bool   `json:"isActive"`
	ActivatedAt string `json:"activatedAt,omitempty"`
	CreatedAt   string `json:"createdAt"`
}

func toUserResponse(u auth.User) userResponse {
	return userResponse{
		ID:          u.ID,
		FullName:    u.FullName,
		Phone:       u.Phone,
		Role:        string(u.Role),
		IsTemp:      u.IsTemp,
		IsActive:    u.IsActive,
		ActivatedAt: formatTimePtr(u.ActivatedAt),
		CreatedAt:   formatTime(u.CreatedAt),
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.authService.Register(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(*user))
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req auth.ActivateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.authService.Activate(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(*user))
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.authService.GetUserByID(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(*user))
}

type purgeRequest struct {
	IdleDays int `json:"idleDays"`
}

func (s *Server) handlePurgeUsers(w http.ResponseWriter, r *http.Request) {
	var req purgeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	idle := s.purgeAfter
	if req.IdleDays > 0 {
		idle = time.Duration(req.IdleDays) * 24 * time.Hour
	}
	ids, err := s.authService.PurgeInactive(r.Context(), idle)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "inactive accounts purged", "count", len(ids), "admin_id", userIDFromContext(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{"deleted": ids, "total": len(ids)})
}
