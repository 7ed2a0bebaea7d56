package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/official-relay/internal/domain"
)

type staffRepository struct {
	db querier
}

func (r *staffRepository) Create(ctx context.Context, staff *domain.StaffMember) error {
	const query = `
        INSERT INTO delivery_staff (owner_identity, name, official_openid, active_flag)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at, updated_at`

	return r.db.QueryRow(ctx, query,
		staff.OwnerIdentity,
		staff.Name,
		staff.OfficialOpenID,
		staff.Active,
	).Scan(&staff.ID, &staff.CreatedAt, &staff.UpdatedAt)
}

func (r *staffRepository) GetByOwnerIdentity(ctx context.Context, ownerIdentity string) (*domain.StaffMember, error) {
	const query = `
        SELECT id, owner_identity, name, official_openid, active_flag, created_at, updated_at
        FROM delivery_staff WHERE owner_identity=$1`

	var staff domain.StaffMember
	if err := r.db.QueryRow(ctx, query, ownerIdentity).Scan(
		&staff.ID,
		&staff.OwnerIdentity,
		&staff.Name,
		&staff.OfficialOpenID,
		&staff.Active,
		&staff.CreatedAt,
		&staff.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &staff, nil
}

func (r *staffRepository) LinkOfficialIdentity(ctx context.Context, ownerIdentity, openID string, at time.Time) error {
	const query = `
        UPDATE delivery_staff
        SET official_openid=$2, updated_at=$3
        WHERE owner_identity=$1`

	cmd, err := r.db.Exec(ctx, query, ownerIdentity, openID, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
