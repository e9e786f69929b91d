package server

import (
	"net/http"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check and metrics.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	// Consistency checks.
	mux.HandleFunc("POST /v1/consistency/missing", s.handleListMissing)
	mux.HandleFunc("POST /v1/consistency/unassigned", s.handleListUnassigned)
	mux.HandleFunc("POST /v1/consistency/repair", s.handleRepair)

	// Registry.
	mux.HandleFunc("GET /v1/filestores", s.handleListFilestores)
	mux.HandleFunc("POST /v1/filestores", s.handleRegisterFilestore)
	mux.HandleFunc("GET /v1/databases", s.handleListDatabases)
	mux.HandleFunc("POST /v1/databases", s.handleRegisterDatabase)
	mux.HandleFunc("GET /v1/contexts", s.handleListContexts)
	mux.HandleFunc("POST /v1/contexts", s.handleRegisterContext)

	return mux
}
