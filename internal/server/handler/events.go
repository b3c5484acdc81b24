package handler

import (
	"log/slog"
	"net/http"

	"github.com/SandroAugusto/school-of-solana/internal/domain"
	"github.com/SandroAugusto/school-of-solana/internal/event"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// EventHandler serves the lifecycle journal.
type EventHandler struct {
	journal domain.Journal
	logger  *slog.Logger
}

// NewEventHandler creates an EventHandler over journal.
func NewEventHandler(journal domain.Journal, logger *slog.Logger) *EventHandler {
	return &EventHandler{journal: journal, logger: logger.With(slog.String("handler", "events"))}
}

// ListEvents returns journaled events with seq > after, oldest first.
// GET /api/events?after=N&limit=M
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	after, err := queryUint(r, "after", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}
	limit, err := queryUint(r, "limit", defaultEventLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}
	if limit == 0 || limit > maxEventLimit {
		limit = maxEventLimit
	}

	entries, err := h.journal.ListEvents(r.Context(), after, int(limit))
	if err != nil {
		h.logger.Error("list events failed", slog.String("error", err.Error()))
		writeFailure(w, err)
		return
	}

	events := make([]event.Event, 0, len(entries))
	for _, entry := range entries {
		ev, err := event.FromEntry(entry)
		if err != nil {
			h.logger.Error("corrupt journal entry", slog.Uint64("seq", entry.Seq), slog.String("error", err.Error()))
			writeFailure(w, err)
			return
		}
		events = append(events, ev)
	}
	writeJSON(w, http.StatusOK, events)
}
