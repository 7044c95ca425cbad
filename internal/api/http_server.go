package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trekbook/internal/config"
	"trekbook/internal/database"
	"trekbook/internal/gateway"
	"trekbook/internal/metrics"
	"trekbook/internal/service"
)

// HTTPServer exposes the booking and archive operations over JSON HTTP.
type HTTPServer struct {
	cfg        config.APIConfig
	bookings   *service.BookingService
	archive    *service.ArchiveService
	exportPath string
	server     *http.Server
	auth       *HTTPAuth
	logger     *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, bookings *service.BookingService, archive *service.ArchiveService, exportPath string, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	srv := &HTTPServer{
		cfg:        cfg,
		bookings:   bookings,
		archive:    archive,
		exportPath: exportPath,
		auth:       NewHTTPAuth(cfg),
		logger:     logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/bookings", srv.handleCreateBooking)
	mux.HandleFunc("GET /api/v1/bookings/{id}", srv.handleGetBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/confirm", srv.handleConfirmPayment)
	mux.HandleFunc("POST /api/v1/bookings/{id}/cancel", srv.handleCancelBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/complete", srv.handleCompleteBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/participants/{pid}/cancel", srv.handleCancelParticipant)
	mux.HandleFunc("POST /api/v1/bookings/{id}/participants/{pid}/restore", srv.handleRestoreParticipant)
	mux.HandleFunc("GET /api/v1/users/{id}/bookings", srv.handleUserBookings)
	mux.HandleFunc("GET /api/v1/availability/batch/{id}", srv.handleBatchAvailability)
	mux.HandleFunc("GET /api/v1/availability/trek/{id}", srv.handleTrekAvailability)

	mux.HandleFunc("GET /api/v1/admin/bookings", srv.handleBookingsByRange)
	mux.HandleFunc("GET /api/v1/admin/failed-bookings", srv.handleListFailedBookings)
	mux.HandleFunc("GET /api/v1/admin/failed-bookings/{id}", srv.handleGetFailedBooking)
	mux.HandleFunc("POST /api/v1/admin/failed-bookings/{id}/restore", srv.handleRestoreFailedBooking)
	mux.HandleFunc("DELETE /api/v1/admin/failed-bookings/{id}", srv.handleDeleteFailedBooking)
	mux.HandleFunc("POST /api/v1/admin/failed-bookings/export", srv.handleExportFailedBookings)
	mux.HandleFunc("POST /api/v1/admin/bookings/{id}/archive", srv.handleArchiveBooking)
	mux.HandleFunc("POST /api/v1/admin/sweep", srv.handleSweep)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

// Handler returns the full middleware chain, used directly in tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
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

const requestIDHeader = "X-Request-Id"

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		metrics.IncHTTP(r.URL.Path)
		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// writeServiceError maps domain sentinels onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, database.ErrCapacityExceeded),
		errors.Is(err, database.ErrConflictingState),
		errors.Is(err, database.ErrConcurrentModification),
		errors.Is(err, database.ErrBatchClosed),
		errors.Is(err, service.ErrSessionExpired),
		errors.Is(err, service.ErrBatchNotFinished):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrTooManyAttempts),
		errors.Is(err, service.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, service.ErrTrekInactive),
		errors.Is(err, service.ErrBatchMismatch),
		errors.Is(err, service.ErrInvalidParticipants),
		errors.Is(err, service.ErrUnknownAddOn),
		errors.Is(err, service.ErrInvalidCoupon),
		errors.Is(err, service.ErrPartialNotAllowed),
		errors.Is(err, gateway.ErrVerificationFailed):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, gateway.ErrGatewayUnavailable),
		errors.Is(err, gateway.ErrGatewayRejected):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
