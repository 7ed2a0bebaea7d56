package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/official-relay/internal/domain"
)

// MemoryStore is an in-process BindingStore for local development and tests.
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryState
	now   func() time.Time
}

type memoryState struct {
	codes map[string]domain.BindingCode
	staff map[string]domain.StaffMember
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memoryState{
			codes: make(map[string]domain.BindingCode),
			staff: make(map[string]domain.StaffMember),
		},
		now: time.Now,
	}
}

func (s *MemoryStore) BindingCodes() BindingCodeRepository {
	return &memoryCodes{store: s}
}

func (s *MemoryStore) Staff() StaffRepository {
	return &memoryStaff{store: s}
}

// WithinTx runs fn against a copy of the state and swaps it in only when fn succeeds.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(BindingCodeRepository, StaffRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft := s.state.clone()
	tx := &MemoryStore{state: draft, now: s.now}
	if err := fn(&memoryCodes{store: tx, locked: true}, &memoryStaff{store: tx, locked: true}); err != nil {
		return err
	}
	s.state = draft
	return nil
}

func (m *memoryState) clone() *memoryState {
	next := &memoryState{
		codes: make(map[string]domain.BindingCode, len(m.codes)),
		staff: make(map[string]domain.StaffMember, len(m.staff)),
	}
	for k, v := range m.codes {
		next.codes[k] = v
	}
	for k, v := range m.staff {
		next.staff[k] = v
	}
	return next
}

// with runs fn holding the store lock unless the caller is already inside WithinTx.
func (s *MemoryStore) with(locked bool, fn func(*memoryState) error) error {
	if !locked {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(s.state)
}

type memoryCodes struct {
	store  *MemoryStore
	locked bool
}

func (r *memoryCodes) Create(_ context.Context, code *domain.BindingCode) error {
	return r.store.with(r.locked, func(st *memoryState) error {
		code.ID = uuid.NewString()
		code.CreatedAt = r.store.now()
		st.codes[code.ID] = *code
		return nil
	})
}

func (r *memoryCodes) GetPendingByCode(_ context.Context, code string) (*domain.BindingCode, error) {
	var found *domain.BindingCode
	err := r.store.with(r.locked, func(st *memoryState) error {
		now := r.store.now()
		for _, row := range st.codes {
			if row.Code != code || !row.PendingAt(now) {
				continue
			}
			if found == nil || row.CreatedAt.After(found.CreatedAt) {
				candidate := row
				found = &candidate
			}
		}
		if found == nil {
			return pgx.ErrNoRows
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (r *memoryCodes) MarkUsed(_ context.Context, id, usedBy string, at time.Time) error {
	return r.store.with(r.locked, func(st *memoryState) error {
		row, ok := st.codes[id]
		if !ok || row.Used {
			return ErrCodeConsumed
		}
		row.MarkUsed(usedBy, at)
		st.codes[id] = row
		return nil
	})
}

type memoryStaff struct {
	store  *MemoryStore
	locked bool
}

func (r *memoryStaff) Create(_ context.Context, staff *domain.StaffMember) error {
	return r.store.with(r.locked, func(st *memoryState) error {
		now := r.store.now()
		staff.ID = uuid.NewString()
		staff.CreatedAt = now
		staff.UpdatedAt = now
		st.staff[staff.OwnerIdentity] = *staff
		return nil
	})
}

func (r *memoryStaff) GetByOwnerIdentity(_ context.Context, ownerIdentity string) (*domain.StaffMember, error) {
	var found domain.StaffMember
	err := r.store.with(r.locked, func(st *memoryState) error {
		row, ok := st.staff[ownerIdentity]
		if !ok {
			return pgx.ErrNoRows
		}
		found = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &found, nil
}

func (r *memoryStaff) LinkOfficialIdentity(_ context.Context, ownerIdentity, openID string, at time.Time) error {
	return r.store.with(r.locked, func(st *memoryState) error {
		row, ok := st.staff[ownerIdentity]
		if !ok {
			return pgx.ErrNoRows
		}
		linked := openID
		row.OfficialOpenID = &linked
		row.UpdatedAt = at
		st.staff[ownerIdentity] = row
		return nil
	})
}
