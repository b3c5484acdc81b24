package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/SandroAugusto/school-of-solana/internal/domain"
	"github.com/SandroAugusto/school-of-solana/internal/engine"
)

const maxBodyBytes = 1 << 16

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Kind: kind})
}

// writeFailure maps err to a status code by its failure category.
func writeFailure(w http.ResponseWriter, err error) {
	status, kind := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeError(w, status, kind, msg)
}

func classify(err error) (int, string) {
	if kind, ok := domain.KindOf(err); ok {
		switch kind {
		case domain.KindMarketNotFound, domain.KindBetNotFound:
			return http.StatusNotFound, kind.String()
		}
		switch kind.Category() {
		case domain.CategoryValidation:
			return http.StatusBadRequest, kind.String()
		case domain.CategoryStateConflict:
			return http.StatusConflict, kind.String()
		case domain.CategoryAuthorization:
			return http.StatusForbidden, kind.String()
		case domain.CategoryArithmetic:
			return http.StatusUnprocessableEntity, kind.String()
		}
	}

	switch {
	case errors.Is(err, engine.ErrSequencerStopped):
		return http.StatusServiceUnavailable, "Unavailable"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "Timeout"
	}
	return http.StatusInternalServerError, "Internal"
}

// decodeJSON reads a bounded JSON body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// pathIdentity parses a base58 path parameter using Go 1.22+ routing.
func pathIdentity(r *http.Request, name string) (domain.Identity, error) {
	return domain.ParseIdentity(r.PathValue(name))
}

// queryUint reads an unsigned query parameter, def when absent.
func queryUint(r *http.Request, name string, def uint64) (uint64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return n, nil
}
