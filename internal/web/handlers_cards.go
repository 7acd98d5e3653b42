package web

import (
	"net/http"

	"github.com/JonMunkholm/cardissue/internal/core"
	"github.com/JonMunkholm/cardissue/internal/csvio"
)

// exportFilename is the download name of the issued cards export.
const exportFilename = "issued_cards.csv"

// handleCheckCard reports a student and the issuance status of their card.
func (s *Server) handleCheckCard(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.CheckCard(r.Context(), r.URL.Query().Get("uid"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// handleMarkIssued records a card as issued. Repeats succeed without
// changing the first record.
func (s *Server) handleMarkIssued(w http.ResponseWriter, r *http.Request) {
	var req core.IssueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	if err := s.service.MarkIssued(r.Context(), req); err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// handleExportIssued downloads every issued card as CSV. The document is
// rendered in full before anything is written so failures stay JSON.
func (s *Server) handleExportIssued(w http.ResponseWriter, r *http.Request) {
	cards, err := s.service.ExportIssued(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	records := make([][]string, len(cards))
	for i, c := range cards {
		records[i] = c.Record()
	}

	body, err := csvio.Render(core.IssuedCardColumns, records)
	if err != nil {
		respondError(w, r, core.Internal(err))
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+exportFilename+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
