package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"fleetd/internal/agent"
	"fleetd/internal/lifecycle"
	"fleetd/internal/registry"
	"fleetd/internal/router"
	"fleetd/pkg/types"
)

// HTTPError lets a service error carry its own status code.
type HTTPError interface {
	error
	StatusCode() int
}

// classify maps service errors to an HTTP status and a stable error kind.
// Wrapped causes are inspected so a startup failure keeps its kind after
// the router wrapped it for failover accounting.
func classify(err error) (int, string) {
	for e := err; e != nil; e = errors.Unwrap(e) {
		switch {
		case registry.IsUnknownModel(e):
			return http.StatusNotFound, "unknown_model"
		case router.IsProviderUnavailable(e):
			return http.StatusServiceUnavailable, "capacity_exceeded"
		case lifecycle.IsBlockedByGamingMode(e):
			return http.StatusServiceUnavailable, "blocked_by_gaming_mode"
		case lifecycle.IsStartup(e):
			return http.StatusServiceUnavailable, "startup_failed"
		case agent.IsPathViolation(e):
			return http.StatusBadRequest, "path_security_violation"
		}
		if pe, ok := router.IsUpstreamPermanent(e); ok {
			return pe.StatusCode(), "upstream_rejected"
		}
	}
	if router.IsUpstreamTransient(err) {
		return http.StatusBadGateway, "upstream_error"
	}
	var he HTTPError
	if errors.As(err, &he) {
		return he.StatusCode(), "error"
	}
	return http.StatusInternalServerError, "internal"
}

// writeError classifies err and writes it in the wire error shape.
func writeError(w http.ResponseWriter, err error) {
	status, kind := classify(err)
	writeJSONError(w, status, kind, err.Error())
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, kind, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Type: kind, Code: status})
}
