package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/lessonpulse/notify/internal/domain"
	"github.com/lessonpulse/notify/internal/engine"
	"github.com/lessonpulse/notify/internal/logging"
)

// Handler handles REST API requests against the delivery engine
type Handler struct {
	engine *engine.Engine
	log    *logging.Logger
}

// NewHandler creates a new REST handler
func NewHandler(eng *engine.Engine, log *logging.Logger) *Handler {
	return &Handler{
		engine: eng,
		log:    log.Named("rest"),
	}
}

// CreateNotification handles POST /api/v1/notifications
func (h *Handler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	var req CreateNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "validation failed", err)
		return
	}

	n, err := h.engine.CreateNotification(r.Context(), req.ToSpec())
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCategory) {
			respondError(w, http.StatusBadRequest, "unknown category", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to create notification", err)
		return
	}

	respondJSON(w, http.StatusCreated, NotificationFromDomain(n))
}

// GetNotification handles GET /api/v1/notifications/{id}
func (h *Handler) GetNotification(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	n, err := h.engine.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "notification not found", err)
		return
	}

	respondJSON(w, http.StatusOK, NotificationFromDomain(n))
}

// ListNotifications handles GET /api/v1/notifications
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	filter := parseFilter(r)

	notifications, err := h.engine.List(filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list notifications", err)
		return
	}

	out := make([]Notification, 0, len(notifications))
	for _, n := range notifications {
		out = append(out, NotificationFromDomain(n))
	}

	respondJSON(w, http.StatusOK, ListNotificationsResponse{
		Notifications: out,
		Total:         len(out),
	})
}

// MarkAsRead handles POST /api/v1/notifications/{id}/read
func (h *Handler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.engine.MarkAsRead(id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(w, http.StatusNotFound, "notification not found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to mark as read", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// MarkAllAsRead handles POST /api/v1/notifications/read-all
func (h *Handler) MarkAllAsRead(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.MarkAllAsRead(); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to mark all as read", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// DismissNotification handles DELETE /api/v1/notifications/{id}
func (h *Handler) DismissNotification(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.engine.Dismiss(id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(w, http.StatusNotFound, "notification not found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to dismiss", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// DeleteNotification handles DELETE /api/v1/notifications/{id}/purge
func (h *Handler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.engine.Delete(id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(w, http.StatusNotFound, "notification not found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// ClearNotifications handles DELETE /api/v1/notifications
func (h *Handler) ClearNotifications(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Clear(); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to clear notifications", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// GetUnread handles GET /api/v1/notifications/unread
func (h *Handler) GetUnread(w http.ResponseWriter, r *http.Request) {
	count, err := h.engine.Unread()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get unread count", err)
		return
	}

	respondJSON(w, http.StatusOK, UnreadResponse{Unread: count})
}

// GetStats handles GET /api/v1/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get stats", err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// GetPreferences handles GET /api/v1/preferences
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	p, err := h.engine.Preferences()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get preferences", err)
		return
	}

	respondJSON(w, http.StatusOK, p)
}

// UpdatePreferences handles PUT /api/v1/preferences
func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req UpdatePreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	p, err := h.engine.UpdatePreferences(req.ToPatch())
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCategory) {
			respondError(w, http.StatusBadRequest, "unknown category", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to update preferences", err)
		return
	}

	respondJSON(w, http.StatusOK, p)
}

// RequestPushPermission handles POST /api/v1/preferences/push-permission
func (h *Handler) RequestPushPermission(w http.ResponseWriter, r *http.Request) {
	state, err := h.engine.RequestPushPermission(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "push permission request failed", err)
		return
	}

	respondJSON(w, http.StatusOK, PushPermissionResponse{Permission: string(state)})
}

// GetAlerts handles GET /api/v1/alerts
func (h *Handler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	views, err := h.engine.VisibleAlerts()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get alerts", err)
		return
	}

	respondJSON(w, http.StatusOK, views)
}

// DismissAlert handles DELETE /api/v1/alerts/{id}
func (h *Handler) DismissAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.engine.DismissAlert(id); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to dismiss alert", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "notify",
		"time":    time.Now().UTC(),
	})
}

// parseFilter parses query parameters into a domain filter
func parseFilter(r *http.Request) domain.Filter {
	query := r.URL.Query()
	filter := domain.Filter{}

	for _, cat := range query["category"] {
		filter.Categories = append(filter.Categories, domain.Category(cat))
	}

	for _, prio := range query["priority"] {
		filter.Priorities = append(filter.Priorities, domain.ParsePriority(prio))
	}

	for _, state := range query["state"] {
		filter.States = append(filter.States, domain.State(state))
	}

	filter.Search = query.Get("search")

	if after := query.Get("created_after"); after != "" {
		if t, err := time.Parse(time.RFC3339, after); err == nil {
			filter.CreatedAfter = &t
		}
	}

	if before := query.Get("created_before"); before != "" {
		if t, err := time.Parse(time.RFC3339, before); err == nil {
			filter.CreatedBefore = &t
		}
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	return filter
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondError writes a JSON error response
func respondError(w http.ResponseWriter, status int, message string, err error) {
	body := map[string]interface{}{
		"error":   message,
		"success": false,
	}
	if err != nil {
		body["detail"] = err.Error()
	}
	respondJSON(w, status, body)
}
