// AngelaMos | 2026
// repository.go

package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kyora-app/kyora-backend/internal/core"
)

type Repository interface {
	CreateUser(ctx context.Context, db core.DBTX, user *User) error
	CreateWorkspace(ctx context.Context, db core.DBTX, ws *Workspace) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetWorkspaceByOwner(ctx context.Context, ownerID string) (*Workspace, error)
	GetWorkspaceByOnboardingToken(
		ctx context.Context,
		token string,
	) (*Workspace, error)
	DescriptorExists(ctx context.Context, descriptor string) (bool, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

// CreateUser and CreateWorkspace take the executor explicitly so the
// provisioner can run both inside one transaction.
func (r *repository) CreateUser(
	ctx context.Context,
	db core.DBTX,
	user *User,
) error {
	query := `
		INSERT INTO users (id, email, name, role)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`

	err := db.GetContext(ctx, user, query,
		user.ID,
		user.Email,
		user.Name,
		user.Role,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("create user: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("create user: %w", err)
	}

	return nil
}

func (r *repository) CreateWorkspace(
	ctx context.Context,
	db core.DBTX,
	ws *Workspace,
) error {
	query := `
		INSERT INTO workspaces (
			id, name, descriptor, country, currency,
			plan_id, plan_descriptor, owner_user_id, onboarding_token
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
		RETURNING created_at, updated_at`

	err := db.GetContext(ctx, ws, query,
		ws.ID,
		ws.Name,
		ws.Descriptor,
		ws.Country,
		ws.Currency,
		ws.PlanID,
		ws.PlanDescriptor,
		ws.OwnerUserID,
		ws.OnboardingToken,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("create workspace: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("create workspace: %w", err)
	}

	return nil
}

func (r *repository) GetUserByID(
	ctx context.Context,
	id string,
) (*User, error) {
	query := `
		SELECT id, email, name, role, created_at, updated_at, deleted_at
		FROM users
		WHERE id = $1 AND deleted_at IS NULL`

	var user User
	err := r.db.GetContext(ctx, &user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &user, nil
}

func (r *repository) GetWorkspaceByOwner(
	ctx context.Context,
	ownerID string,
) (*Workspace, error) {
	query := `
		SELECT id, name, descriptor, country, currency,
		       plan_id, plan_descriptor, owner_user_id, onboarding_token,
		       created_at, updated_at
		FROM workspaces
		WHERE owner_user_id = $1`

	var ws Workspace
	err := r.db.GetContext(ctx, &ws, query, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get workspace: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get workspace: %w", err)
	}

	return &ws, nil
}

func (r *repository) GetWorkspaceByOnboardingToken(
	ctx context.Context,
	token string,
) (*Workspace, error) {
	query := `
		SELECT id, name, descriptor, country, currency,
		       plan_id, plan_descriptor, owner_user_id, onboarding_token,
		       created_at, updated_at
		FROM workspaces
		WHERE onboarding_token = $1`

	var ws Workspace
	err := r.db.GetContext(ctx, &ws, query, token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get workspace: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get workspace: %w", err)
	}

	return &ws, nil
}

func (r *repository) DescriptorExists(
	ctx context.Context,
	descriptor string,
) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM workspaces WHERE descriptor = $1)`

	var exists bool
	err := r.db.GetContext(ctx, &exists, query, descriptor)
	if err != nil {
		return false, fmt.Errorf("check descriptor: %w", err)
	}

	return exists, nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
