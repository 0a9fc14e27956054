package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"carma/internal/config"
	"carma/internal/domain"
	"carma/internal/wallet"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// WalletRelay is the browser side of the wallet relay.
type WalletRelay interface {
	Pending(account string) []wallet.Request
	Resolve(id, account string, result any) error
	Reject(id, account, reason string) error
}

// ReadinessCheck probes one dependency for /readyz.
type ReadinessCheck func(ctx context.Context) error

// Services is everything the HTTP handlers call into.
type Services struct {
	Bookings     domain.BookingService
	Verification domain.VerificationService
	Checkout     domain.CheckoutService
	Cars         domain.CarCatalog
	Wallet       WalletRelay
	Checks       map[string]ReadinessCheck
}

// HTTPServer serves the rental API used by the web front end, the wallet
// bridge and staff tools.
type HTTPServer struct {
	cfg       config.APIConfig
	svc       Services
	publicURL string
	exportDir string
	server    *http.Server
	auth      *HTTPAuth
	log       zerolog.Logger
	now       func() time.Time
}

func NewHTTPServer(cfg *config.Config, svc Services, logger *zerolog.Logger) *HTTPServer {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "http").Logger()
	}

	srv := &HTTPServer{
		cfg:       cfg.API,
		svc:       svc,
		publicURL: cfg.Public.BaseURL,
		exportDir: cfg.Exports.Dir,
		auth:      NewHTTPAuth(cfg.API),
		log:       l,
		now:       time.Now,
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.HTTP.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(metricsMiddleware)

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReadyz).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/bookings", s.handleListBookings).Methods(http.MethodGet)
	api.HandleFunc("/bookings", s.handleCreateBooking).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}", s.handleGetBooking).Methods(http.MethodGet)
	api.HandleFunc("/bookings/{id}/qr", s.handleBookingQR).Methods(http.MethodGet)

	api.HandleFunc("/confirm-rental", s.handleRentalStatus).Methods(http.MethodGet)
	api.HandleFunc("/confirm-rental", s.handleConfirmRental).Methods(http.MethodPost)
	api.HandleFunc("/confirm-rental/scan", s.handleScanRental).Methods(http.MethodPost)

	api.HandleFunc("/cars", s.handleListCars).Methods(http.MethodGet)
	api.HandleFunc("/cars/{id}", s.handleGetCar).Methods(http.MethodGet)

	api.HandleFunc("/verify", s.handleStartVerification).Methods(http.MethodPost)
	api.HandleFunc("/verify/statement", s.handleStatement).Methods(http.MethodGet)
	api.HandleFunc("/verify/{id}", s.handleVerificationStatus).Methods(http.MethodGet)
	api.HandleFunc("/verify/{id}", s.handleCancelVerification).Methods(http.MethodDelete)

	api.HandleFunc("/checkout", s.handleStartCheckout).Methods(http.MethodPost)
	api.HandleFunc("/checkout/{id}", s.handleCheckoutStatus).Methods(http.MethodGet)
	api.HandleFunc("/checkout/{id}", s.handleCancelCheckout).Methods(http.MethodDelete)

	api.HandleFunc("/wallet/requests", s.handleWalletRequests).Methods(http.MethodGet)
	api.HandleFunc("/wallet/requests/{id}", s.handleWalletAnswer).Methods(http.MethodPost)

	api.HandleFunc("/admin/bookings/export", s.handleExportBookings).Methods(http.MethodGet)
	api.HandleFunc("/admin/bookings/export", s.handleSaveExport).Methods(http.MethodPost)

	origins := s.cfg.CORS.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	cors := handlers.CORS(
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete}),
		handlers.AllowedHeaders([]string{"content-type", s.auth.apiKeyHeader(), requestIDHeader}),
		handlers.AllowedOrigins(origins),
	)
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{log: s.log}),
		handlers.PrintRecoveryStack(true),
	)

	return recovery(cors(loggingMiddleware(s.log)(s.auth.Wrap(r))))
}

// Handler exposes the full middleware chain, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := make(map[string]string)
	for name, check := range s.svc.Checks {
		if check == nil {
			continue
		}
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// writeServiceError maps err to a status; internal failures are logged and
// hidden from the client.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatus(err)
	if code == http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, code, msgInternal)
		return
	}
	writeError(w, code, err.Error())
}
