// Package httpadapter exposes the admin API: shipment lookup, candidate
// review, and on-demand resolution of a single email.
package httpadapter

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/dkozyrev/freight-linker/internal/core/domain"
	"github.com/dkozyrev/freight-linker/internal/core/ports"
	"github.com/dkozyrev/freight-linker/internal/observability/metrics"
)

const (
	defaultCandidateLimit = 50
	maxCandidateLimit     = 500
)

type Router struct {
	resolver   ports.DocumentResolver
	reviewer   ports.CandidateReviewer
	shipments  ports.ShipmentRepository
	links      ports.DocumentLinkRepository
	candidates ports.LinkCandidateRepository
	metrics    *metrics.HTTPServerMetrics
	service    string
}

func NewRouter(
	resolver ports.DocumentResolver,
	reviewer ports.CandidateReviewer,
	shipments ports.ShipmentRepository,
	links ports.DocumentLinkRepository,
	candidates ports.LinkCandidateRepository,
	m *metrics.HTTPServerMetrics,
	service string,
) *Router {
	return &Router{
		resolver:   resolver,
		reviewer:   reviewer,
		shipments:  shipments,
		links:      links,
		candidates: candidates,
		metrics:    m,
		service:    service,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/shipments/", rt.shipmentByID)
	mux.HandleFunc("/v1/candidates", rt.listCandidates)
	mux.HandleFunc("/v1/candidates/", rt.candidateAction)
	mux.HandleFunc("/v1/resolve", rt.resolveEmail)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.service, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) shipmentByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/shipments/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "shipment id is required")
		return
	}

	if sub == "relink" {
		rt.relinkDocument(w, r, id)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	shipment, err := rt.shipments.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	switch sub {
	case "":
		writeJSON(w, http.StatusOK, shipment)
	case "documents":
		types, err := rt.links.ListDocumentTypes(r.Context(), id)
		if err != nil {
			writeError(w, mapErrorToHTTPStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"shipment_id":    id,
			"document_types": types,
		})
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (rt *Router) listCandidates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	status := domain.CandidateStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.CandidateAmbiguous
	}
	switch status {
	case domain.CandidatePending, domain.CandidateAmbiguous, domain.CandidateConfirmed, domain.CandidateRejected:
	default:
		writeError(w, http.StatusBadRequest, "unknown candidate status")
		return
	}

	limit := defaultCandidateLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxCandidateLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	out, err := rt.candidates.ListByStatus(r.Context(), status, limit)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"candidates": out,
	})
}

func (rt *Router) candidateAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/candidates/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "candidate id is required")
		return
	}

	switch action {
	case "confirm":
		rt.confirmCandidate(w, r, id)
	case "reject":
		rt.rejectCandidate(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (rt *Router) confirmCandidate(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		ShipmentID string `json:"shipment_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.ShipmentID) == "" {
		writeError(w, http.StatusBadRequest, "shipment_id is required")
		return
	}

	link, err := rt.reviewer.Confirm(r.Context(), id, req.ShipmentID)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordReviewDecision(rt.service, "confirm")
	}
	writeJSON(w, http.StatusOK, link)
}

func (rt *Router) rejectCandidate(w http.ResponseWriter, r *http.Request, id string) {
	if err := rt.reviewer.Reject(r.Context(), id); err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordReviewDecision(rt.service, "reject")
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

func (rt *Router) relinkDocument(w http.ResponseWriter, r *http.Request, shipmentID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		EmailID string `json:"email_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.EmailID) == "" {
		writeError(w, http.StatusBadRequest, "email_id is required")
		return
	}

	resolution, err := rt.resolver.Relink(r.Context(), shipmentID, req.EmailID)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resolution)
}

func (rt *Router) resolveEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		EmailID string `json:"email_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.EmailID) == "" {
		writeError(w, http.StatusBadRequest, "email_id is required")
		return
	}

	resolution, err := rt.resolver.ResolveByEmailID(r.Context(), req.EmailID)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resolution)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
