package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/official-relay/internal/domain"
)

// ErrCodeConsumed is returned when a binding code was consumed between lookup and update.
var ErrCodeConsumed = errors.New("binding code already consumed")

// IsNotFound reports whether err means the requested row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// BindingCodeRepository handles persistence for binding codes.
type BindingCodeRepository interface {
	Create(ctx context.Context, code *domain.BindingCode) error
	GetPendingByCode(ctx context.Context, code string) (*domain.BindingCode, error)
	MarkUsed(ctx context.Context, id, usedBy string, at time.Time) error
}

// StaffRepository handles persistence for staff records.
type StaffRepository interface {
	Create(ctx context.Context, staff *domain.StaffMember) error
	GetByOwnerIdentity(ctx context.Context, ownerIdentity string) (*domain.StaffMember, error)
	LinkOfficialIdentity(ctx context.Context, ownerIdentity, openID string, at time.Time) error
}

// BindingStore is the document store behind the binding workflow.
type BindingStore interface {
	BindingCodes() BindingCodeRepository
	Staff() StaffRepository
	// WithinTx runs fn so that its writes are committed together or not at all.
	WithinTx(ctx context.Context, fn func(codes BindingCodeRepository, staff StaffRepository) error) error
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
