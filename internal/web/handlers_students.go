package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/JonMunkholm/cardissue/internal/core"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

type successResponse struct {
	Success bool `json:"success"`
}

// decodeJSON reads a JSON body into v. An empty body leaves v at its zero
// value so required-field validation reports what is missing.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return core.BadRequest("Invalid request body")
}

// handleAddStudent registers a single student.
func (s *Server) handleAddStudent(w http.ResponseWriter, r *http.Request) {
	var st core.Student
	if err := decodeJSON(w, r, &st); err != nil {
		respondError(w, r, err)
		return
	}

	if err := s.service.AddStudent(r.Context(), st); err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true})
}
