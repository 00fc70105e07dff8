// Package http exposes policy management and enforcement over HTTP.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"casbin-mongodb-adapter/internal/core/domain"
	"casbin-mongodb-adapter/internal/core/ports/driving"
)

// PolicyHandler serves the policy API.
type PolicyHandler struct {
	service driving.AuthorizationService
	logger  *slog.Logger
}

// NewPolicyHandler creates a new PolicyHandler.
func NewPolicyHandler(service driving.AuthorizationService, logger *slog.Logger) *PolicyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PolicyHandler{service: service, logger: logger}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps err to a status code and logs server-side failures.
func (h *PolicyHandler) writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidFilter):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": msg + ": " + err.Error()})
}

func (h *PolicyHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON payload"})
		return false
	}
	return true
}

func (h *PolicyHandler) healthHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *PolicyHandler) getPoliciesHandler(w http.ResponseWriter, r *http.Request) {
	ptype := r.URL.Query().Get("ptype")
	if ptype == "" {
		ptype = domain.SectionPolicy
	}

	policies, err := h.service.GetPolicies(ptype)
	if err != nil {
		h.writeError(w, r, "Policy retrieval error", err)
		return
	}
	if policies == nil {
		policies = [][]string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ptype":    ptype,
		"policies": policies,
	})
}

func (h *PolicyHandler) addPolicyHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.PolicyRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, r, "Invalid policy", err)
		return
	}

	added, err := h.service.AddPolicy(req.PType, req.Rule)
	if err != nil {
		h.writeError(w, r, "Policy addition error", err)
		return
	}
	if !added {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"added":   false,
			"message": "Policy already exists",
			"ptype":   req.PType,
			"rule":    req.Rule,
		})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"added":   true,
		"message": "Policy added successfully",
		"ptype":   req.PType,
		"rule":    req.Rule,
	})
}

func (h *PolicyHandler) removePolicyHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.PolicyRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, r, "Invalid policy", err)
		return
	}

	removed, err := h.service.RemovePolicy(req.PType, req.Rule)
	if err != nil {
		h.writeError(w, r, "Policy removal error", err)
		return
	}
	status := http.StatusOK
	if !removed {
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]interface{}{
		"removed": removed,
		"ptype":   req.PType,
		"rule":    req.Rule,
	})
}

func (h *PolicyHandler) removeFilteredPolicyHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.FilteredPolicyRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.PType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ptype is required"})
		return
	}

	removed, err := h.service.RemoveFilteredPolicy(req.PType, req.FieldIndex, req.FieldValues...)
	if err != nil {
		h.writeError(w, r, "Filtered removal error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"removed":      removed,
		"ptype":        req.PType,
		"field_index":  req.FieldIndex,
		"field_values": req.FieldValues,
	})
}

func (h *PolicyHandler) loadFilteredPolicyHandler(w http.ResponseWriter, r *http.Request) {
	var filter domain.Filter
	if !h.decode(w, r, &filter) {
		return
	}
	if err := h.service.LoadFilteredPolicy(filter); err != nil {
		h.writeError(w, r, "Filtered load error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"loaded":   true,
		"filtered": !filter.IsEmpty(),
	})
}

func (h *PolicyHandler) reloadPolicyHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ReloadPolicy(); err != nil {
		h.writeError(w, r, "Policy reload error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"loaded": true, "filtered": false})
}

func (h *PolicyHandler) authorizationHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.EnforceRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, r, "Invalid authorization request", err)
		return
	}

	allowed, err := h.service.Enforce(req)
	if err != nil {
		h.writeError(w, r, "Authorization error", err)
		return
	}

	resp := domain.EnforceResponse{Allowed: allowed, Message: "Access denied"}
	status := http.StatusForbidden
	if allowed {
		resp.Message = "Access granted"
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}
