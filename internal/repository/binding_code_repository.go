package repository

import (
	"context"
	"time"

	"github.com/spec-kit/official-relay/internal/domain"
)

type bindingCodeRepository struct {
	db querier
}

func (r *bindingCodeRepository) Create(ctx context.Context, code *domain.BindingCode) error {
	const query = `
        INSERT INTO official_bind_codes (code, owner_identity, expires_at)
        VALUES ($1,$2,$3)
        RETURNING id, created_at`

	return r.db.QueryRow(ctx, query,
		code.Code,
		code.OwnerIdentity,
		code.ExpiresAt,
	).Scan(&code.ID, &code.CreatedAt)
}

func (r *bindingCodeRepository) GetPendingByCode(ctx context.Context, code string) (*domain.BindingCode, error) {
	const query = `
        SELECT id, code, owner_identity, used, used_at, used_by, expires_at, created_at
        FROM official_bind_codes
        WHERE code=$1 AND used=FALSE AND (expires_at IS NULL OR expires_at > NOW())
        ORDER BY created_at DESC
        LIMIT 1`

	var row domain.BindingCode
	if err := r.db.QueryRow(ctx, query, code).Scan(
		&row.ID,
		&row.Code,
		&row.OwnerIdentity,
		&row.Used,
		&row.UsedAt,
		&row.UsedBy,
		&row.ExpiresAt,
		&row.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &row, nil
}

// MarkUsed only flips rows that are still pending.
func (r *bindingCodeRepository) MarkUsed(ctx context.Context, id, usedBy string, at time.Time) error {
	const query = `
        UPDATE official_bind_codes SET used=TRUE, used_at=$2, used_by=$3
        WHERE id=$1 AND used=FALSE`

	cmd, err := r.db.Exec(ctx, query, id, at, usedBy)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrCodeConsumed
	}
	return nil
}
