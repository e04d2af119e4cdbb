package main

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MariamAlaa-8/realstate-backend/notification"
	"github.com/MariamAlaa-8/realstate-backend/notification/inbox"
)

type notificationResponse struct {
	ID         string         `json:"id"`
	UserID     string         `json:"userId"`
	Type       string         `json:"type"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	ContractID string         `json:"contractId,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	IsRead     bool           `json:"isRead"`
	ReadAt     string         `json:"readAt,omitempty"`
	CreatedAt  string         `json:"createdAt"`
}

func toNotificationResponse(n notification.Notification) notificationResponse {
	return notificationResponse{
		ID:         n.ID,
		UserID:     n.UserID,
		Type:       string(n.Type),
		Title:      n.Title,
		Message:    n.Message,
		ContractID: n.ContractID,
		Data:       n.Data,
		IsRead:     n.IsRead,
		ReadAt:     formatTimePtr(n.ReadAt),
		CreatedAt:  formatTime(n.CreatedAt),
	}
}

func notificationList(notes []notification.Notification) map[string]any {
	items := make([]notificationResponse, 0, len(notes))
	for _, n := range notes {
		items = append(items, toNotificationResponse(n))
	}
	return map[string]any{"items": items, "total": len(items)}
}

func listParams(r *http.Request) inbox.ListParams {
	unread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	return inbox.ListParams{UnreadOnly: unread, Limit: queryLimit(r)}
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	notes, err := s.inbox.List(r.Context(), userIDFromContext(r.Context()), listParams(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notificationList(notes))
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.inbox.UnreadCount(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := s.inbox.MarkRead(r.Context(), userIDFromContext(r.Context()), chi.URLParam(r, "notificationID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := s.inbox.MarkAllRead(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

func (s *Server) handleAllNotifications(w http.ResponseWriter, r *http.Request) {
	notes, err := s.inbox.ListAll(r.Context(), userIDFromContext(r.Context()), listParams(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notificationList(notes))
}

type sendNotificationRequest struct {
	UserID     string         `json:"userId"`
	Type       string         `json:"type"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	ContractID string         `json:"contractId"`
	Data       map[string]any `json:"data"`
}

func (s *Server) handleSendNotification(w http.ResponseWriter, r *http.Request) {
	var req sendNotificationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	err := s.inbox.Send(r.Context(), userIDFromContext(r.Context()), notification.Intent{
		UserID:     req.UserID,
		Type:       notification.Type(req.Type),
		Title:      req.Title,
		Message:    req.Message,
		ContractID: req.ContractID,
		Data:       req.Data,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	if err := s.inbox.Delete(r.Context(), userIDFromContext(r.Context()), chi.URLParam(r, "notificationID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
