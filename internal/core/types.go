// Package core provides the business logic of the card issuance desk.
// This package has no transport dependencies and can be used by any frontend.
package core

import (
	"context"
	"time"
)

// ExportTimeLayout is how issued_at is rendered in CSV exports.
const ExportTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Student is a row of the student registry. UID is the natural key.
type Student struct {
	Htno string `json:"htno" db:"htno" validate:"required"`
	Name string `json:"name" db:"name" validate:"required"`
	UID  string `json:"uid" db:"uid" validate:"required"`
}

// Issuance records that the card with UID was handed out.
type Issuance struct {
	UID      string    `json:"uid" db:"uid"`
	IssuedBy string    `json:"issued_by" db:"issued_by"`
	Htno     string    `json:"htno" db:"htno"`
	IssuedAt time.Time `json:"issued_at" db:"issued_at"`
}

// IssuedCard is one row of the issuance export: an issuance joined with its student.
type IssuedCard struct {
	Htno     string    `db:"htno"`
	Name     string    `db:"name"`
	UID      string    `db:"uid"`
	IssuedAt time.Time `db:"issued_at"`
	IssuedBy string    `db:"issued_by"`
}

// IssuedCardColumns is the export header, in record order.
var IssuedCardColumns = []string{"htno", "name", "uid", "issued_at", "issued_by"}

// Record returns the row's values in IssuedCardColumns order.
func (c IssuedCard) Record() []string {
	return []string{c.Htno, c.Name, c.UID, c.IssuedAt.UTC().Format(ExportTimeLayout), c.IssuedBy}
}

// CardStatus is the result of a card lookup.
type CardStatus struct {
	Student   Student   `json:"student"`
	Issued    bool      `json:"issued"`
	IssuedRow *Issuance `json:"issuedRow"`
}

// IssueRequest asks for the card with UID to be marked as issued by IssuedBy.
type IssueRequest struct {
	UID      string `json:"uid" validate:"required"`
	IssuedBy string `json:"issued_by" validate:"required"`
}

// StudentFromRow builds a student from a header-keyed CSV row.
// Absent columns yield empty strings.
func StudentFromRow(row map[string]string) Student {
	return Student{
		Htno: row["htno"],
		Name: row["name"],
		UID:  row["uid"],
	}
}

// Store is the data-access handle behind the registry and the ledger.
//
// Inserts are create-if-absent on uid: a conflicting insert is a silent no-op.
// Lookups return ErrNoRecord when nothing matches.
type Store interface {
	InsertStudent(ctx context.Context, s Student) error
	GetStudent(ctx context.Context, uid string) (Student, error)

	// InsertIssuance stamps issued_at with the store's current time and
	// reports whether a new record was written.
	InsertIssuance(ctx context.Context, uid, issuedBy, htno string) (bool, error)
	GetIssuance(ctx context.Context, uid string) (Issuance, error)

	// ListIssued joins issuance with students on uid.
	ListIssued(ctx context.Context) ([]IssuedCard, error)

	Ping(ctx context.Context) error
}
