package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/sebuszqo/ClaritySpend/internal/auth"
	"github.com/sebuszqo/ClaritySpend/internal/classifier"
	"github.com/sebuszqo/ClaritySpend/internal/finance/interfaces"
	"github.com/sebuszqo/ClaritySpend/internal/middleware"
	"github.com/sebuszqo/ClaritySpend/internal/user"
)

type Response struct {
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string, errors ...[]string) {
	payload := map[string]interface{}{
		"status":  "error",
		"message": message,
		"code":    status,
	}
	if len(errors) > 0 && len(errors[0]) > 0 {
		payload["errors"] = errors[0]
	}
	respondJSON(w, status, payload)
}

func notFoundHandler(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusNotFound, Response{Message: "Path not found"})
}

// databaseHealth is nil when the memory storage driver is in use.
type databaseHealth func(ctx context.Context) map[string]string

type Server struct {
	router             http.Handler
	authHandler        *auth.Handler
	userHandler        *user.Handler
	transactionHandler *interfaces.PersonalTransactionHandler
	gate               func(http.Handler) http.Handler
	dbHealth           databaseHealth
	classifierHealth   *classifier.HealthMonitor
	corsOrigin         string
	log                zerolog.Logger
}

func NewServer(
	authHandler *auth.Handler,
	userHandler *user.Handler,
	transactionHandler *interfaces.PersonalTransactionHandler,
	gate func(http.Handler) http.Handler,
	dbHealth databaseHealth,
	classifierHealth *classifier.HealthMonitor,
	corsOrigin string,
	log zerolog.Logger,
) *Server {
	return &Server{
		authHandler:        authHandler,
		userHandler:        userHandler,
		transactionHandler: transactionHandler,
		gate:               gate,
		dbHealth:           dbHealth,
		classifierHealth:   classifierHealth,
		corsOrigin:         corsOrigin,
		log:                log,
	}
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	payload := map[string]interface{}{"status": "ready"}

	if s.dbHealth != nil {
		health := s.dbHealth(r.Context())
		payload["database"] = health
		if health["status"] != "up" {
			status = http.StatusServiceUnavailable
			payload["status"] = "unavailable"
		}
	} else {
		payload["database"] = map[string]string{"status": "memory"}
	}

	// classification failures fall back to a default category, so an
	// unhealthy classifier is reported but does not fail readiness
	if s.classifierHealth != nil {
		payload["classifier"] = s.classifierHealth.Status()
	}

	respondJSON(w, status, payload)
}

func (s *Server) RegisterRoutes() {
	protected := func(h http.HandlerFunc) http.Handler {
		return auth.RequireIdentity(h)
	}

	router := http.NewServeMux()

	// Public routes
	router.HandleFunc("POST /api/auth/register", s.userHandler.HandleRegister)
	router.HandleFunc("POST /api/auth/login", s.authHandler.HandleLogin)
	router.HandleFunc("GET /api/ready", s.handleReady)

	// Routes that need an identity attached by the gate
	router.Handle("GET /api/users/me", protected(s.userHandler.HandleGetUserProfile))
	router.Handle("GET /api/transactions", protected(s.transactionHandler.GetTransactions))
	router.Handle("POST /api/transactions", protected(s.transactionHandler.CreateTransaction))
	router.Handle("PUT /api/transactions/{id}", protected(s.transactionHandler.UpdateCategory))
	router.Handle("POST /api/transactions/upload-csv", protected(s.transactionHandler.UploadCSV))

	router.HandleFunc("/", notFoundHandler)

	s.router = middleware.Chain(router,
		middleware.RequestID,
		middleware.Logger(s.log),
		middleware.Recovery(s.log),
		middleware.CORS(s.corsOrigin),
		s.gate,
	)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
