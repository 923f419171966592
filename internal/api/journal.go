package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/liminal-dev/liminal-core/internal/journal"
)

// JournalResponse wraps a page of journal entries.
type JournalResponse struct {
	Entries []journal.Entry `json:"entries"`
	Count   int             `json:"count"`
}

// parseLimit reads the optional ?limit= query parameter. Zero means the
// repository default.
func parseLimit(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	s.serveJournal(w, r, "")
}

func (s *Server) handleActuatorJournal(w http.ResponseWriter, r *http.Request) {
	s.serveJournal(w, r, chi.URLParam(r, "name"))
}

func (s *Server) serveJournal(w http.ResponseWriter, r *http.Request, peripheral string) {
	if s.journal == nil {
		writeNotFound(w, "command journal is disabled")
		return
	}
	limit, ok := parseLimit(r)
	if !ok {
		writeBadRequest(w, "limit must be a positive integer")
		return
	}

	var (
		entries []journal.Entry
		err     error
	)
	if peripheral == "" {
		entries, err = s.journal.Recent(r.Context(), limit)
	} else {
		entries, err = s.journal.ForPeripheral(r.Context(), peripheral, limit)
	}
	if err != nil {
		s.logger.Error("journal query failed", "peripheral", peripheral, "error", err)
		writeInternalError(w, "failed to read journal")
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}

	writeJSON(w, http.StatusOK, JournalResponse{Entries: entries, Count: len(entries)})
}
