package core

import (
	"context"
	"errors"
	"time"

	"github.com/JonMunkholm/cardissue/internal/config"
	"github.com/JonMunkholm/cardissue/internal/logging"
	"github.com/JonMunkholm/cardissue/internal/metrics"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Service implements the registry and ledger operations on top of a Store.
type Service struct {
	store         Store
	limiter       *ImportLimiter
	importTimeout time.Duration
	validate      *validator.Validate
	metrics       *metrics.Metrics
}

// NewService creates a Service. m may be nil.
func NewService(store Store, cfg config.UploadConfig, m *metrics.Metrics) *Service {
	return &Service{
		store:         store,
		limiter:       NewImportLimiter(cfg.MaxConcurrent, cfg.MaxWaitTime),
		importTimeout: cfg.Timeout,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		metrics:       m,
	}
}

// ImportStudents inserts rows in order, one at a time, ignoring uid conflicts.
//
// The first failing insert aborts the remaining rows; rows inserted before it
// stay committed. On success the returned count is len(rows), duplicates
// included.
func (s *Service) ImportStudents(ctx context.Context, rows []Student) (int, error) {
	importID := uuid.NewString()
	logger := logging.WithFields(ctx, "import_id", importID, "rows", len(rows))

	if err := s.limiter.Acquire(ctx); err != nil {
		logger.Warn("import rejected", "error", err)
		return 0, Busy(err)
	}
	defer s.limiter.Release()

	if s.importTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.importTimeout)
		defer cancel()
	}

	logger.Info("import started")
	for i, row := range rows {
		if err := s.store.InsertStudent(ctx, row); err != nil {
			s.metrics.ImportFailed()
			logger.Error("import aborted", "row", i+1, "uid", row.UID, "error", err)
			return 0, DatabaseError(err)
		}
	}

	s.metrics.StudentsImported(len(rows))
	logger.Info("import completed")
	return len(rows), nil
}

// AddStudent registers one student. All fields are required.
func (s *Service) AddStudent(ctx context.Context, st Student) error {
	if err := s.validate.Struct(st); err != nil {
		return BadRequest("Missing fields")
	}

	if err := s.store.InsertStudent(ctx, st); err != nil {
		logging.FromContext(ctx).Error("add student failed", "uid", st.UID, "error", err)
		return DatabaseError(err)
	}

	s.metrics.StudentAdded()
	return nil
}

// CheckCard reports the student behind uid and whether the card was issued.
func (s *Service) CheckCard(ctx context.Context, uid string) (*CardStatus, error) {
	if uid == "" {
		return nil, BadRequest("UID required")
	}

	student, err := s.store.GetStudent(ctx, uid)
	if errors.Is(err, ErrNoRecord) {
		s.metrics.CardChecked("unknown")
		return nil, NotFound("Student not found")
	}
	if err != nil {
		return nil, DatabaseError(err)
	}

	status := &CardStatus{Student: student}

	issuance, err := s.store.GetIssuance(ctx, uid)
	switch {
	case errors.Is(err, ErrNoRecord):
		s.metrics.CardChecked("not_issued")
	case err != nil:
		return nil, DatabaseError(err)
	default:
		status.Issued = true
		status.IssuedRow = &issuance
		s.metrics.CardChecked("issued")
	}

	return status, nil
}

// MarkIssued records the card as issued. Marking an already-issued card is a
// no-op that still succeeds; the first issued_by and issued_at are kept.
//
// An unknown uid is a bad request here, unlike CheckCard's not-found.
func (s *Service) MarkIssued(ctx context.Context, req IssueRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return BadRequest("Missing fields")
	}

	student, err := s.store.GetStudent(ctx, req.UID)
	if errors.Is(err, ErrNoRecord) {
		return BadRequest("Student not found")
	}
	if err != nil {
		return DatabaseError(err)
	}

	first, err := s.store.InsertIssuance(ctx, req.UID, req.IssuedBy, student.Htno)
	if err != nil {
		logging.FromContext(ctx).Error("mark issued failed", "uid", req.UID, "error", err)
		return DatabaseError(err)
	}

	s.metrics.CardIssued(first)
	logging.FromContext(ctx).Info("card issued",
		"uid", req.UID,
		"issued_by", req.IssuedBy,
		"first_issue", first,
	)
	return nil
}

// ExportIssued returns every issued card that still has a student record.
func (s *Service) ExportIssued(ctx context.Context) ([]IssuedCard, error) {
	cards, err := s.store.ListIssued(ctx)
	if err != nil {
		return nil, DatabaseError(err)
	}
	return cards, nil
}

// Ping checks that the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ActiveImports returns the number of imports in progress.
func (s *Service) ActiveImports() int {
	return s.limiter.Active()
}

// WaitForImports blocks until running imports finish or ctx ends.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
