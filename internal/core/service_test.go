package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/cardissue/internal/config"
	"github.com/JonMunkholm/cardissue/internal/core"
	"github.com/JonMunkholm/cardissue/internal/metrics"
	"github.com/JonMunkholm/cardissue/internal/store"
)

// failingStore fails InsertStudent for one uid and delegates everything else.
type failingStore struct {
	*store.Memory
	failUID string
	err     error
}

func (f *failingStore) InsertStudent(ctx context.Context, s core.Student) error {
	if s.UID == f.failUID {
		return f.err
	}
	return f.Memory.InsertStudent(ctx, s)
}

func newService(st core.Store) *core.Service {
	cfg := config.UploadConfig{MaxConcurrent: 2, MaxWaitTime: time.Second}
	return core.NewService(st, cfg, metrics.New())
}

func students(uids ...string) []core.Student {
	out := make([]core.Student, len(uids))
	for i, uid := range uids {
		out[i] = core.Student{Htno: "H-" + uid, Name: "Name " + uid, UID: uid}
	}
	return out
}

func kindOf(t *testing.T, err error) core.Kind {
	t.Helper()
	var e *core.Error
	if !errors.As(err, &e) {
		t.Fatalf("error %v is not a *core.Error", err)
	}
	return e.Kind
}

func TestImportStudents_CountsParsedRows(t *testing.T) {
	mem := store.NewMemory()
	svc := newService(mem)

	// Duplicates are ignored by the store but still counted.
	rows := students("U1", "U2", "U1")
	n, err := svc.ImportStudents(context.Background(), rows)
	if err != nil {
		t.Fatalf("ImportStudents: %v", err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
	if got := mem.Students(); got != 2 {
		t.Errorf("stored students = %d, want 2", got)
	}
}

func TestImportStudents_FirstWriteWins(t *testing.T) {
	mem := store.NewMemory()
	svc := newService(mem)
	ctx := context.Background()

	if err := svc.AddStudent(ctx, core.Student{Htno: "H1", Name: "Asha", UID: "U1"}); err != nil {
		t.Fatalf("AddStudent: %v", err)
	}
	if _, err := svc.ImportStudents(ctx, []core.Student{{Htno: "H9", Name: "Other", UID: "U1"}}); err != nil {
		t.Fatalf("ImportStudents: %v", err)
	}

	got, err := mem.GetStudent(ctx, "U1")
	if err != nil {
		t.Fatalf("GetStudent: %v", err)
	}
	if got.Name != "Asha" || got.Htno != "H1" {
		t.Errorf("student = %+v, want the first write kept", got)
	}
}

func TestImportStudents_PartialCommitOnFailure(t *testing.T) {
	mem := store.NewMemory()
	fs := &failingStore{Memory: mem, failUID: "U3", err: errors.New("value too long")}
	svc := newService(fs)

	_, err := svc.ImportStudents(context.Background(), students("U1", "U2", "U3", "U4", "U5"))
	if err == nil {
		t.Fatal("ImportStudents expected error")
	}
	if kindOf(t, err) != core.KindDatabase {
		t.Errorf("kind = %v, want KindDatabase", kindOf(t, err))
	}

	ctx := context.Background()
	for _, uid := range []string{"U1", "U2"} {
		if _, err := mem.GetStudent(ctx, uid); err != nil {
			t.Errorf("row %s before the failure should be committed: %v", uid, err)
		}
	}
	for _, uid := range []string{"U3", "U4", "U5"} {
		if _, err := mem.GetStudent(ctx, uid); !errors.Is(err, core.ErrNoRecord) {
			t.Errorf("row %s should not be stored, got %v", uid, err)
		}
	}
}

func TestImportStudents_Busy(t *testing.T) {
	mem := store.NewMemory()
	block := make(chan struct{})
	svc := core.NewService(&blockingStore{Memory: mem, block: block},
		config.UploadConfig{MaxConcurrent: 1, MaxWaitTime: 30 * time.Millisecond}, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		svc.ImportStudents(context.Background(), students("U1"))
	}()

	deadline := time.Now().Add(time.Second)
	for svc.ActiveImports() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	_, err := svc.ImportStudents(context.Background(), students("U2"))
	if kindOf(t, err) != core.KindBusy {
		t.Errorf("kind = %v, want KindBusy", kindOf(t, err))
	}

	close(block)
	wg.Wait()
	if err := svc.WaitForImports(context.Background()); err != nil {
		t.Errorf("WaitForImports: %v", err)
	}
}

// blockingStore holds InsertStudent until block is closed.
type blockingStore struct {
	*store.Memory
	block chan struct{}
}

func (b *blockingStore) InsertStudent(ctx context.Context, s core.Student) error {
	<-b.block
	return b.Memory.InsertStudent(ctx, s)
}

func TestAddStudent_MissingFields(t *testing.T) {
	svc := newService(store.NewMemory())

	tests := []core.Student{
		{Name: "Asha", UID: "U1"},
		{Htno: "H1", UID: "U1"},
		{Htno: "H1", Name: "Asha"},
		{},
	}
	for _, st := range tests {
		err := svc.AddStudent(context.Background(), st)
		if err == nil {
			t.Errorf("AddStudent(%+v) expected error", st)
			continue
		}
		var e *core.Error
		if !errors.As(err, &e) || e.Kind != core.KindBadRequest || e.Message != "Missing fields" {
			t.Errorf("AddStudent(%+v) = %v, want bad request \"Missing fields\"", st, err)
		}
	}
}

func TestCheckCard(t *testing.T) {
	mem := store.NewMemory()
	svc := newService(mem)
	ctx := context.Background()

	if err := svc.AddStudent(ctx, core.Student{Htno: "H1", Name: "Asha", UID: "U1"}); err != nil {
		t.Fatalf("AddStudent: %v", err)
	}

	t.Run("uid required", func(t *testing.T) {
		_, err := svc.CheckCard(ctx, "")
		if kindOf(t, err) != core.KindBadRequest {
			t.Errorf("kind = %v, want KindBadRequest", kindOf(t, err))
		}
	})

	t.Run("unknown uid is not found", func(t *testing.T) {
		_, err := svc.CheckCard(ctx, "nope")
		if kindOf(t, err) != core.KindNotFound {
			t.Errorf("kind = %v, want KindNotFound", kindOf(t, err))
		}
	})

	t.Run("not issued", func(t *testing.T) {
		status, err := svc.CheckCard(ctx, "U1")
		if err != nil {
			t.Fatalf("CheckCard: %v", err)
		}
		if status.Issued || status.IssuedRow != nil {
			t.Errorf("status = %+v, want not issued", status)
		}
		if status.Student.Name != "Asha" {
			t.Errorf("student = %+v", status.Student)
		}
	})

	t.Run("issued", func(t *testing.T) {
		if err := svc.MarkIssued(ctx, core.IssueRequest{UID: "U1", IssuedBy: "desk-1"}); err != nil {
			t.Fatalf("MarkIssued: %v", err)
		}
		status, err := svc.CheckCard(ctx, "U1")
		if err != nil {
			t.Fatalf("CheckCard: %v", err)
		}
		if !status.Issued || status.IssuedRow == nil {
			t.Fatalf("status = %+v, want issued", status)
		}
		if status.IssuedRow.IssuedBy != "desk-1" || status.IssuedRow.Htno != "H1" {
			t.Errorf("issued row = %+v", status.IssuedRow)
		}
	})
}

func TestMarkIssued(t *testing.T) {
	mem := store.NewMemory()
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mem.Now = func() time.Time { return clock }
	svc := newService(mem)
	ctx := context.Background()

	if err := svc.AddStudent(ctx, core.Student{Htno: "H1", Name: "Asha", UID: "U1"}); err != nil {
		t.Fatalf("AddStudent: %v", err)
	}

	t.Run("missing fields", func(t *testing.T) {
		for _, req := range []core.IssueRequest{{UID: "U1"}, {IssuedBy: "desk-1"}} {
			if kindOf(t, svc.MarkIssued(ctx, req)) != core.KindBadRequest {
				t.Errorf("MarkIssued(%+v) want bad request", req)
			}
		}
	})

	t.Run("unknown uid is a bad request", func(t *testing.T) {
		err := svc.MarkIssued(ctx, core.IssueRequest{UID: "nope", IssuedBy: "desk-1"})
		var e *core.Error
		if !errors.As(err, &e) || e.Kind != core.KindBadRequest || e.Message != "Student not found" {
			t.Errorf("MarkIssued = %v, want bad request \"Student not found\"", err)
		}
	})

	t.Run("second mark keeps the first record", func(t *testing.T) {
		if err := svc.MarkIssued(ctx, core.IssueRequest{UID: "U1", IssuedBy: "desk-1"}); err != nil {
			t.Fatalf("first MarkIssued: %v", err)
		}
		clock = clock.Add(time.Hour)
		if err := svc.MarkIssued(ctx, core.IssueRequest{UID: "U1", IssuedBy: "desk-2"}); err != nil {
			t.Fatalf("second MarkIssued: %v", err)
		}

		got, err := mem.GetIssuance(ctx, "U1")
		if err != nil {
			t.Fatalf("GetIssuance: %v", err)
		}
		if got.IssuedBy != "desk-1" {
			t.Errorf("issued_by = %q, want desk-1", got.IssuedBy)
		}
		if !got.IssuedAt.Equal(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)) {
			t.Errorf("issued_at = %v, want the first stamp", got.IssuedAt)
		}
	})
}

func TestExportIssued(t *testing.T) {
	mem := store.NewMemory()
	svc := newService(mem)
	ctx := context.Background()

	cards, err := svc.ExportIssued(ctx)
	if err != nil {
		t.Fatalf("ExportIssued: %v", err)
	}
	if len(cards) != 0 {
		t.Errorf("ExportIssued on empty store = %v", cards)
	}

	if _, err := svc.ImportStudents(ctx, students("U1", "U2")); err != nil {
		t.Fatalf("ImportStudents: %v", err)
	}
	if err := svc.MarkIssued(ctx, core.IssueRequest{UID: "U2", IssuedBy: "desk-1"}); err != nil {
		t.Fatalf("MarkIssued: %v", err)
	}

	cards, err = svc.ExportIssued(ctx)
	if err != nil {
		t.Fatalf("ExportIssued: %v", err)
	}
	if len(cards) != 1 || cards[0].UID != "U2" || cards[0].Name != "Name U2" || cards[0].IssuedBy != "desk-1" {
		t.Errorf("ExportIssued = %+v", cards)
	}
}

func TestPing(t *testing.T) {
	svc := newService(store.NewMemory())
	if err := svc.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestImportStudents_CallerGivesUpWaiting(t *testing.T) {
	mem := store.NewMemory()
	block := make(chan struct{})
	svc := core.NewService(&blockingStore{Memory: mem, block: block},
		config.UploadConfig{MaxConcurrent: 1, MaxWaitTime: time.Minute}, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		svc.ImportStudents(context.Background(), students("U1"))
	}()
	defer func() {
		close(block)
		wg.Wait()
	}()

	deadline := time.Now().Add(time.Second)
	for svc.ActiveImports() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.ImportStudents(ctx, students("U2"))
	if kindOf(t, err) != core.KindBusy {
		t.Errorf("kind = %v, want KindBusy", kindOf(t, err))
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error %v should wrap context.Canceled", err)
	}
}

// brokenLookups fails every student and issuance lookup.
type brokenLookups struct {
	*store.Memory
	err error
}

func (b *brokenLookups) GetStudent(context.Context, string) (core.Student, error) {
	return core.Student{}, b.err
}

func TestLookupFailureDetailsPassThrough(t *testing.T) {
	st := &brokenLookups{Memory: store.NewMemory(), err: errors.New("connection reset by peer")}
	svc := newService(st)
	ctx := context.Background()

	_, checkErr := svc.CheckCard(ctx, "U1")
	markErr := svc.MarkIssued(ctx, core.IssueRequest{UID: "U1", IssuedBy: "desk-1"})

	for name, err := range map[string]error{"CheckCard": checkErr, "MarkIssued": markErr} {
		var e *core.Error
		if !errors.As(err, &e) || e.Kind != core.KindDatabase {
			t.Errorf("%s error = %v, want database error", name, err)
			continue
		}
		if got := e.Details(); got != "connection reset by peer" {
			t.Errorf("%s Details() = %q, want the store message unchanged", name, got)
		}
	}
}
