package server

import (
	"net/http"

	"github.com/farmledger/export-api/internal/report"
)

// NewHandler creates the full HTTP handler with routes and middleware.
// Exported for use in tests (e.g., httptest.NewServer).
func NewHandler(svc *report.Service) http.Handler {
	return newMux(svc)
}

func newMux(svc *report.Service) http.Handler {
	h := &handler{svc: svc}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /api/v1/templates", h.listTemplates)
	mux.HandleFunc("POST /api/v1/reports", h.createReport)
	mux.HandleFunc("GET /api/v1/reports", h.listReports)
	mux.HandleFunc("GET /api/v1/reports/stats", h.stats)
	mux.HandleFunc("GET /api/v1/reports/{id}", h.getReport)
	mux.HandleFunc("GET /api/v1/reports/{id}/files/{fileID}", h.downloadFile)

	// Apply middleware stack: recovery -> requestID -> logging
	var handler http.Handler = mux
	handler = logging(handler)
	handler = requestID(handler)
	handler = recovery(handler)

	return handler
}
