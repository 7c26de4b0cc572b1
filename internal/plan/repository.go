// AngelaMos | 2026
// repository.go

package plan

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kyora-app/kyora-backend/internal/core"
)

type Repository interface {
	GetByDescriptor(ctx context.Context, descriptor string) (*Plan, error)
	ListActive(ctx context.Context) ([]Plan, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) GetByDescriptor(
	ctx context.Context,
	descriptor string,
) (*Plan, error) {
	query := `
		SELECT id, descriptor, name, paid, price_ref, active,
		       created_at, updated_at
		FROM plans
		WHERE descriptor = $1 AND active = true`

	var plan Plan
	err := r.db.GetContext(ctx, &plan, query, descriptor)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get plan: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}

	return &plan, nil
}

func (r *repository) ListActive(ctx context.Context) ([]Plan, error) {
	query := `
		SELECT id, descriptor, name, paid, price_ref, active,
		       created_at, updated_at
		FROM plans
		WHERE active = true
		ORDER BY paid, descriptor`

	plans := []Plan{}
	if err := r.db.SelectContext(ctx, &plans, query); err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}

	return plans, nil
}
