package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"fabrica/internal/bom"
	applog "fabrica/internal/log"
	"fabrica/internal/production"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		applog.Error(context.Background(), "failed to encode json response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		applog.Debug(r.Context(), "invalid json payload", "error", err)
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// pathSegments splits the request path below prefix. The first segment, if
// any, is parsed as an identifier.
func pathSegments(r *http.Request, prefix string) (id uint, rest []string, ok bool) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if path == "" {
		return 0, nil, true
	}
	segments := strings.Split(path, "/")
	value, err := strconv.ParseUint(segments[0], 10, 64)
	if err != nil || value == 0 {
		applog.Debug(r.Context(), "invalid identifier", "identifier", segments[0], "error", err)
		return 0, nil, false
	}
	return uint(value), segments[1:], true
}

type shortfallResponse struct {
	Error      string                 `json:"error"`
	Shortfalls []production.Shortfall `json:"shortfalls"`
}

// writeServiceError maps manufacturing failures to HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		shortage   *production.InsufficientStockError
		transition *production.InvalidTransitionError
		missing    *production.MissingOrInactiveBomError
		persist    *production.PersistenceError
		orderErr   *production.OrderError
		cycle      *bom.CircularDependencyError
		invalid    *bom.ValidationError
	)
	switch {
	case errors.As(err, &shortage):
		writeJSON(w, http.StatusUnprocessableEntity, shortfallResponse{Error: err.Error(), Shortfalls: shortage.Shortfalls})
	case errors.As(err, &transition),
		errors.Is(err, production.ErrConcurrentTransition),
		errors.Is(err, production.ErrDuplicateCode),
		errors.Is(err, bom.ErrProductUnitInUse),
		errors.Is(err, bom.ErrBomInUse):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, production.ErrOrderNotFound),
		errors.Is(err, bom.ErrBomNotFound),
		errors.Is(err, bom.ErrItemNotFound),
		errors.Is(err, bom.ErrProductUnitNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &missing), errors.As(err, &cycle), errors.As(err, &invalid):
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &persist):
		applog.Error(r.Context(), "manufacturing request failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	case errors.As(err, &orderErr):
		// Remaining order errors are rejected inputs.
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		applog.Error(r.Context(), "manufacturing request failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}
