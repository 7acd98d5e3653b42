package store

import (
	"context"
	"sync"
	"time"

	"github.com/JonMunkholm/cardissue/internal/core"
)

// Memory is a process-local core.Store with the same uniqueness and
// conflict-ignore semantics as the PostgreSQL schema. Data is lost on exit.
type Memory struct {
	mu       sync.RWMutex
	students map[string]core.Student
	issued   map[string]core.Issuance
	order    []string // issuance uids in insertion order

	// Now stamps issued_at; defaults to time.Now.
	Now func() time.Time
}

var _ core.Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		students: make(map[string]core.Student),
		issued:   make(map[string]core.Issuance),
		Now:      time.Now,
	}
}

func (m *Memory) InsertStudent(ctx context.Context, s core.Student) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.students[s.UID]; !exists {
		m.students[s.UID] = s
	}
	return nil
}

func (m *Memory) GetStudent(ctx context.Context, uid string) (core.Student, error) {
	if err := ctx.Err(); err != nil {
		return core.Student{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.students[uid]
	if !ok {
		return core.Student{}, core.ErrNoRecord
	}
	return s, nil
}

func (m *Memory) InsertIssuance(ctx context.Context, uid, issuedBy, htno string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.issued[uid]; exists {
		return false, nil
	}
	m.issued[uid] = core.Issuance{
		UID:      uid,
		IssuedBy: issuedBy,
		Htno:     htno,
		IssuedAt: m.Now(),
	}
	m.order = append(m.order, uid)
	return true, nil
}

func (m *Memory) GetIssuance(ctx context.Context, uid string) (core.Issuance, error) {
	if err := ctx.Err(); err != nil {
		return core.Issuance{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.issued[uid]
	if !ok {
		return core.Issuance{}, core.ErrNoRecord
	}
	return i, nil
}

func (m *Memory) ListIssued(ctx context.Context) ([]core.IssuedCard, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	cards := make([]core.IssuedCard, 0, len(m.order))
	for _, uid := range m.order {
		s, ok := m.students[uid]
		if !ok {
			continue
		}
		i := m.issued[uid]
		cards = append(cards, core.IssuedCard{
			Htno:     s.Htno,
			Name:     s.Name,
			UID:      s.UID,
			IssuedAt: i.IssuedAt,
			IssuedBy: i.IssuedBy,
		})
	}
	return cards, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Students returns the number of registered students.
func (m *Memory) Students() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.students)
}
