package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"bronizone/internal/config"
	"bronizone/internal/database"
	"bronizone/internal/domain"
	"bronizone/internal/export"
	"bronizone/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HTTPServer exposes the reservation engine over a lightweight HTTP API.
type HTTPServer struct {
	cfg      config.APIConfig
	bookings domain.BookingService
	zones    domain.ZoneService
	db       *database.DB
	exporter *export.ExcelExporter
	metrics  *metrics.Metrics
	logger   *zerolog.Logger
	auth     *HTTPAuth
	server   *http.Server
}

func NewHTTPServer(
	cfg config.APIConfig,
	bookings domain.BookingService,
	zones domain.ZoneService,
	db *database.DB,
	exporter *export.ExcelExporter,
	m *metrics.Metrics,
	logger *zerolog.Logger,
) *HTTPServer {
	srv := &HTTPServer{
		cfg:      cfg,
		bookings: bookings,
		zones:    zones,
		db:       db,
		exporter: exporter,
		metrics:  m,
		logger:   logger,
	}
	srv.auth = NewHTTPAuth(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/api/v1/zones", srv.handleZones)
	mux.HandleFunc("/api/v1/zones/", srv.handleZoneSubroutes)
	mux.HandleFunc("/api/v1/bookings", srv.handleBookings)
	mux.HandleFunc("/api/v1/bookings/", srv.handleBookingSubroutes)
	mux.HandleFunc("/api/v1/admin/zones", srv.handleAdminZones)
	mux.HandleFunc("/api/v1/admin/zones/", srv.handleAdminZoneSubroutes)
	mux.HandleFunc("/api/v1/admin/stats/zones", srv.handleZoneStats)
	mux.HandleFunc("/api/v1/admin/stats/global", srv.handleGlobalStats)
	mux.HandleFunc("/api/v1/admin/export", srv.handleExport)
	mux.HandleFunc("/api/v1/admin/sync/failed", srv.handleFailedSyncTasks)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("x-request-id"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("x-request-id", requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		dur := time.Since(start)

		endpoint := normalizePath(r.URL.Path)
		s.metrics.HTTPRequests.WithLabelValues(endpoint, fmt.Sprintf("%d", recorder.status)).Inc()
		s.metrics.HTTPDuration.WithLabelValues(endpoint).Observe(dur.Seconds())

		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", dur).
			Msg("http request")
	})
}

// normalizePath схлопывает числовые сегменты пути, чтобы метрики не
// разъезжались по кардинальности.
func normalizePath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p == "" {
			continue
		}
		numeric := true
		for _, c := range p {
			if c < '0' || c > '9' {
				numeric = false
				break
			}
		}
		if numeric {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}

func statusFromError(err error) int {
	switch {
	case database.IsNotFound(err):
		return http.StatusNotFound
	case database.IsUnauthorized(err):
		return http.StatusForbidden
	case database.IsStateConflict(err):
		return http.StatusConflict
	case database.IsInvalidInput(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *HTTPServer) writeDomainError(w http.ResponseWriter, err error) {
	code := statusFromError(err)
	if code == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("internal error")
		writeError(w, code, "internal error")
		return
	}
	writeError(w, code, err.Error())
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
