package core

// errors.go defines the error taxonomy shared by the service and the HTTP
// layer. Every failure a handler can report is an *Error carrying a Kind;
// the web package maps kinds to status codes and machine-readable codes.

import (
	"errors"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNoRecord is returned by Store lookups that match nothing.
var ErrNoRecord = errors.New("no matching record")

// ErrTooManyImports is returned when all import slots stay occupied for the
// configured wait time.
var ErrTooManyImports = errors.New("too many concurrent imports")

// Kind classifies an error for the caller.
type Kind int

const (
	KindBadRequest Kind = iota + 1
	KindForbidden
	KindNotFound
	KindBusy
	KindDatabase
	KindInternal
)

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindBusy:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Code returns a stable machine-readable code, e.g. "BAD_REQUEST".
func (k Kind) Code() string {
	if k == KindDatabase {
		return "DATABASE_ERROR"
	}
	return strings.ToUpper(strings.ReplaceAll(http.StatusText(k.Status()), " ", "_"))
}

// Error is a classified failure. Message is safe to show to callers; Err is
// the underlying cause, if any.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Details is the cause reported to callers for database errors.
// For PostgreSQL errors it is the server's message without driver decoration.
func (e *Error) Details() string {
	if e.Kind != KindDatabase || e.Err == nil {
		return ""
	}
	var pgErr *pgconn.PgError
	if errors.As(e.Err, &pgErr) {
		return pgErr.Message
	}
	return e.Err.Error()
}

func BadRequest(msg string) *Error {
	return &Error{Kind: KindBadRequest, Message: msg}
}

func Forbidden() *Error {
	return &Error{Kind: KindForbidden, Message: "Forbidden"}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// Busy reports that no import slot could be taken, either because all slots
// stayed occupied or because the caller gave up waiting.
func Busy(err error) *Error {
	return &Error{Kind: KindBusy, Message: "Too many concurrent imports", Err: err}
}

// Internal wraps a failure outside the store, such as spooling an upload.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "Internal server error", Err: err}
}

// DatabaseError wraps a store failure.
func DatabaseError(err error) *Error {
	return &Error{Kind: KindDatabase, Message: "Database error", Err: err}
}

// AsError classifies any error. Unclassified errors are treated as store
// failures since the store is the only collaborator that can fail.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, ErrTooManyImports) {
		return Busy(err)
	}
	return DatabaseError(err)
}
