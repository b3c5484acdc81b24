package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SandroAugusto/school-of-solana/internal/domain"
	"github.com/SandroAugusto/school-of-solana/internal/engine"
)

func TestClassify(t *testing.T) {
	market := domain.Identity{1}
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"validation", domain.NewMarketError("create", domain.KindQuestionTooLong, market), http.StatusBadRequest, "QuestionTooLong"},
		{"state conflict", domain.NewMarketError("close", domain.KindMarketNotOpen, market), http.StatusConflict, "MarketNotOpen"},
		{"market not found", domain.NewMarketError("close", domain.KindMarketNotFound, market), http.StatusNotFound, "MarketNotFound"},
		{"bet not found", domain.ErrBetNotFound, http.StatusNotFound, "BetNotFound"},
		{"authorization", domain.NewMarketError("resolve", domain.KindOracleMismatch, market), http.StatusForbidden, "OracleMismatch"},
		{"arithmetic", domain.NewMarketError("place_bet", domain.KindOverflow, market), http.StatusUnprocessableEntity, "Overflow"},
		{"stopped", engine.ErrSequencerStopped, http.StatusServiceUnavailable, "Unavailable"},
		{"deadline", fmt.Errorf("submit: %w", context.DeadlineExceeded), http.StatusServiceUnavailable, "Timeout"},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, "Internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, kind := classify(tt.err)
			if status != tt.status || kind != tt.kind {
				t.Errorf("expected %d/%s, got %d/%s", tt.status, tt.kind, status, kind)
			}
		})
	}
}

func TestWriteFailure_HidesInternalErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	writeFailure(rec, errors.New("dsn=secret"))

	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Code != http.StatusInternalServerError || body.Error != "internal server error" {
		t.Errorf("unexpected response %d %+v", rec.Code, body)
	}
}

func TestQueryUint(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/events?after=7&limit=x", nil)

	if got, err := queryUint(req, "after", 0); err != nil || got != 7 {
		t.Errorf("expected 7, got %d (%v)", got, err)
	}
	if got, err := queryUint(req, "missing", 5); err != nil || got != 5 {
		t.Errorf("expected default 5, got %d (%v)", got, err)
	}
	if _, err := queryUint(req, "limit", 0); err == nil {
		t.Error("expected an error for a non-numeric limit")
	}
}
