package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/dbskills/enrollment/internal/middleware"
)

type HealthResponse struct {
	Status string `json:"status"`
}

// NewRouter wires every API route. CORS wraps the router so that preflight
// requests are answered before route matching.
func NewRouter(
	otpHandlers *OTPHandlers,
	candidateHandlers *CandidateHandlers,
	authMiddleware *middleware.AuthMiddleware,
	allowedOrigins []string,
	logger *logrus.Logger,
) http.Handler {
	router := mux.NewRouter()

	router.Use(middleware.Instrument(logger))

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, HealthResponse{Status: "OK"})
	}).Methods("GET")

	candidates := api.PathPrefix("/candidates").Subrouter()
	candidates.HandleFunc("/send-otp", otpHandlers.SendOTP).Methods("POST")
	candidates.HandleFunc("/verify-otp", otpHandlers.VerifyOTP).Methods("POST")
	candidates.HandleFunc("/extract-identity", candidateHandlers.ExtractIdentity).Methods("POST")
	candidates.HandleFunc("/check-record", candidateHandlers.CheckRecord).Methods("POST")
	candidates.HandleFunc("/search", candidateHandlers.Search).Methods("GET")
	candidates.HandleFunc("/all", candidateHandlers.List).Methods("GET")
	candidates.HandleFunc("/{candidateId}/status", candidateHandlers.UpdateStatus).Methods("PATCH")

	candidates.Handle("/register",
		authMiddleware.RequireVerifiedMobile(http.HandlerFunc(candidateHandlers.Register)),
	).Methods("POST")

	return middleware.CORS(allowedOrigins)(router)
}
