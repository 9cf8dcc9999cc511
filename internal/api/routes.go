package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()

	// Positions
	api.HandleFunc("/holders/{holder}/positions", handler.GetPositions).Methods("GET")
	api.HandleFunc("/holders/{holder}/realized", handler.GetRealizedLots).Methods("GET")

	// Opportunities
	api.HandleFunc("/scans", handler.RunScan).Methods("POST")
	api.HandleFunc("/opportunities", handler.ListOpportunities).Methods("GET")
	api.HandleFunc("/opportunities/{id:[0-9]+}", handler.UpdateOpportunityStatus).Methods("PATCH")

	return r
}
