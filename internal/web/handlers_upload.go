package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/JonMunkholm/cardissue/internal/core"
	"github.com/JonMunkholm/cardissue/internal/csvio"
	"github.com/JonMunkholm/cardissue/internal/logging"
)

// multipartMemory is how much of a multipart form is held in memory before
// the mime package spills parts to disk.
const multipartMemory = 1 << 20

// importWriteSlack is added to the worst-case import duration when extending
// the connection's write deadline.
const importWriteSlack = 30 * time.Second

type importResponse struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
}

// handleImportStudents registers every row of an uploaded CSV file.
// The upload is spooled to a temp file that is removed on every exit path.
func (s *Server) handleImportStudents(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())

	// The server-wide write timeout is shorter than a long import.
	deadline := time.Now().Add(s.cfg.Upload.MaxWaitTime + s.cfg.Upload.Timeout + importWriteSlack)
	if err := http.NewResponseController(w).SetWriteDeadline(deadline); err != nil {
		logger.Debug("cannot extend write deadline", "error", err)
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, core.BadRequest("File too large"))
			return
		}
		respondError(w, r, core.BadRequest("No file uploaded"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, core.BadRequest("No file uploaded"))
		return
	}
	defer file.Close()

	upload, err := csvio.Spool(s.cfg.Upload.Dir, file)
	if err != nil {
		respondError(w, r, core.Internal(err))
		return
	}
	defer func() {
		if err := upload.Remove(); err != nil {
			logger.Debug("temp file cleanup failed", "path", upload.Path, "error", err)
		}
	}()

	logger.Info("upload received", "filename", header.Filename, "size", upload.Size)

	rows, err := upload.Rows()
	if errors.Is(err, csvio.ErrInvalidCSV) {
		respondError(w, r, core.BadRequest("Invalid CSV"))
		return
	}
	if err != nil {
		respondError(w, r, core.Internal(err))
		return
	}

	students := make([]core.Student, len(rows))
	for i, row := range rows {
		students[i] = core.StudentFromRow(row)
	}

	count, err := s.service.ImportStudents(r.Context(), students)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, importResponse{Success: true, Count: count})
}
