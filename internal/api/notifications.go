package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dayflow/dayflow/internal/core"
	"github.com/dayflow/dayflow/internal/notifications"
)

// NotificationsAPI handles notification endpoints
type NotificationsAPI struct {
	service *notifications.Service
}

// NewNotificationsAPI creates a new notifications API
func NewNotificationsAPI(service *notifications.Service) *NotificationsAPI {
	return &NotificationsAPI{service: service}
}

// RegisterRoutes registers notification routes
func (api *NotificationsAPI) RegisterRoutes(r chi.Router) {
	r.Get("/notifications", api.handleGetNotifications)
	r.Post("/notifications", api.handleCreateNotification)
	r.Get("/notifications/unread-count", api.handleGetUnreadCount)
	r.Get("/notifications/stats", api.handleGetNotificationStats)
	r.Post("/notifications/read-all", api.handleMarkAllNotificationsRead)
	r.Get("/notifications/{id}", api.handleGetNotification)
	r.Post("/notifications/{id}/read", api.handleMarkNotificationRead)
	r.Post("/notifications/{id}/dismiss", api.handleDismissNotification)
}

// handleGetNotifications returns notifications with optional filters
func (api *NotificationsAPI) handleGetNotifications(w http.ResponseWriter, r *http.Request) {
	filter := notifications.NotificationFilter{}

	if t := r.URL.Query().Get("type"); t != "" {
		filter.Type = notifications.NotificationType(t)
	}
	if u := r.URL.Query().Get("urgency"); u != "" {
		filter.Urgency, _ = strconv.Atoi(u)
	}
	if m := r.URL.Query().Get("meeting_id"); m != "" {
		filter.MeetingID = core.MeetingID(m)
	}
	if read := r.URL.Query().Get("read"); read != "" {
		b := read == "true"
		filter.Read = &b
	}
	if dismissed := r.URL.Query().Get("dismissed"); dismissed != "" {
		b := dismissed == "true"
		filter.Dismissed = &b
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		filter.Limit, _ = strconv.Atoi(l)
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		filter.Offset, _ = strconv.Atoi(o)
	}

	notifs, err := api.service.List(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifs,
		"count":         len(notifs),
	})
}

// handleGetNotification returns a single notification
func (api *NotificationsAPI) handleGetNotification(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	notif, err := api.service.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, notif)
}

// handleMarkNotificationRead marks a notification as read
func (api *NotificationsAPI) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := api.service.MarkRead(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "marked as read"})
}

// handleMarkAllNotificationsRead marks all notifications as read
func (api *NotificationsAPI) handleMarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	if err := api.service.MarkAllRead(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "all marked as read"})
}

// handleDismissNotification dismisses a notification
func (api *NotificationsAPI) handleDismissNotification(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := api.service.Dismiss(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "dismissed"})
}

// handleGetUnreadCount returns the count of unread notifications
func (api *NotificationsAPI) handleGetUnreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := api.service.UnreadCount(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]int{"count": count})
}

// handleGetNotificationStats returns notification statistics
func (api *NotificationsAPI) handleGetNotificationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := api.service.Stats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// handleCreateNotification creates a new notification (for testing/admin)
func (api *NotificationsAPI) handleCreateNotification(w http.ResponseWriter, r *http.Request) {
	var req notifications.CreateNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Title == "" {
		respondError(w, http.StatusBadRequest, "title required")
		return
	}
	if req.Type == "" {
		req.Type = notifications.NotifySystem
	}

	notif, err := api.service.Create(r.Context(), req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, notif)
}
