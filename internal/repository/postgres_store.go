package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore builds a BindingStore on a pgx pool.
func NewPostgresStore(pool *pgxpool.Pool) BindingStore {
	return &postgresStore{pool: pool}
}

func (s *postgresStore) BindingCodes() BindingCodeRepository {
	return &bindingCodeRepository{db: s.pool}
}

func (s *postgresStore) Staff() StaffRepository {
	return &staffRepository{db: s.pool}
}

func (s *postgresStore) WithinTx(ctx context.Context, fn func(BindingCodeRepository, StaffRepository) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := fn(&bindingCodeRepository{db: tx}, &staffRepository{db: tx}); err != nil {
			return fmt.Errorf("binding tx: %w", err)
		}
		return nil
	})
}
