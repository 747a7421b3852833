package rest

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lessonpulse/notify/internal/engine"
	"github.com/lessonpulse/notify/internal/logging"
)

// NewRouter creates the HTTP router with all routes configured
func NewRouter(eng *engine.Engine, log *logging.Logger) *mux.Router {
	handler := NewHandler(eng, log)
	router := mux.NewRouter()

	// API v1 routes
	v1 := router.PathPrefix("/api/v1").Subrouter()

	// Notification routes
	v1.HandleFunc("/notifications", handler.CreateNotification).Methods(http.MethodPost)
	v1.HandleFunc("/notifications", handler.ListNotifications).Methods(http.MethodGet)
	v1.HandleFunc("/notifications", handler.ClearNotifications).Methods(http.MethodDelete)
	v1.HandleFunc("/notifications/read-all", handler.MarkAllAsRead).Methods(http.MethodPost)
	v1.HandleFunc("/notifications/unread", handler.GetUnread).Methods(http.MethodGet)
	v1.HandleFunc("/notifications/{id}", handler.GetNotification).Methods(http.MethodGet)
	v1.HandleFunc("/notifications/{id}", handler.DismissNotification).Methods(http.MethodDelete)
	v1.HandleFunc("/notifications/{id}/read", handler.MarkAsRead).Methods(http.MethodPost)
	v1.HandleFunc("/notifications/{id}/purge", handler.DeleteNotification).Methods(http.MethodDelete)

	// Preference routes
	v1.HandleFunc("/preferences", handler.GetPreferences).Methods(http.MethodGet)
	v1.HandleFunc("/preferences", handler.UpdatePreferences).Methods(http.MethodPut)
	v1.HandleFunc("/preferences/push-permission", handler.RequestPushPermission).Methods(http.MethodPost)

	// Alert routes
	v1.HandleFunc("/alerts", handler.GetAlerts).Methods(http.MethodGet)
	v1.HandleFunc("/alerts/{id}", handler.DismissAlert).Methods(http.MethodDelete)

	// Stats route
	v1.HandleFunc("/stats", handler.GetStats).Methods(http.MethodGet)

	// Health check and metrics
	router.HandleFunc("/health", handler.HealthCheck).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Middleware
	router.Use(loggingMiddleware(log.Named("http")))
	router.Use(corsMiddleware)

	return router
}

// loggingMiddleware logs incoming requests
func loggingMiddleware(log *logging.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Debugf("%s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
