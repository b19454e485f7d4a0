// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/facegate/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	StatusDependencies
	AttendanceDependencies
	ChannelDependencies
	DetectDependencies
	GalleryDependencies
}

// Server wires HTTP routes for the attendance API.
type Server struct {
	healthHandler     *HealthHandler
	statusHandler     *StatusHandler
	attendanceHandler *AttendanceHandler
	channelsHandler   *ChannelsHandler
	detectHandler     *DetectHandler
	galleryHandler    *GalleryHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:     NewHealthHandler(),
		statusHandler:     NewStatusHandler(deps),
		attendanceHandler: NewAttendanceHandler(deps),
		channelsHandler:   NewChannelsHandler(deps),
		detectHandler:     NewDetectHandler(deps),
		galleryHandler:    NewGalleryHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", MetricsMiddleware(s.healthHandler.HandleHealth, "metrics"))
	mux.HandleFunc("/api/status", MetricsMiddleware(s.statusHandler.HandleStatus, "status"))
	mux.HandleFunc("/api/attendance", MetricsMiddleware(s.attendanceHandler.HandleGetAttendance, "attendance"))
	mux.HandleFunc("/api/channels/start", MetricsMiddleware(s.channelsHandler.HandleStart, "channels_start"))
	mux.HandleFunc("/api/channels/stop", MetricsMiddleware(s.channelsHandler.HandleStop, "channels_stop"))
	mux.HandleFunc("/api/channels/", MetricsMiddleware(s.channelsHandler.HandleChannel, "channel"))
	mux.HandleFunc("/api/detect", MetricsMiddleware(s.detectHandler.HandleDetect, "detect"))
	mux.HandleFunc("/api/gallery/reload", MetricsMiddleware(s.galleryHandler.HandleReload, "gallery_reload"))
	mux.HandleFunc("/api/gallery/enroll", MetricsMiddleware(s.galleryHandler.HandleEnroll, "gallery_enroll"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps service and domain errors to a status and code.
func writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Get().Named("api").Error(ctx, "request failed", logger.String("op", op), logger.Error(err))
	}
	writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	for _, m := range errorMap {
		for _, target := range m.targets {
			if errors.Is(err, target) {
				return m.status, m.code
			}
		}
	}
	return http.StatusInternalServerError, "internal_error"
}
