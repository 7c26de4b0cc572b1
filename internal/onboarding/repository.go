// AngelaMos | 2026
// repository.go

package onboarding

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kyora-app/kyora-backend/internal/core"
)

type Repository struct {
	db core.DBTX
}

// NewRepository returns the Postgres-backed session store.
func NewRepository(db core.DBTX) *Repository {
	return &Repository{db: db}
}

var _ Store = (*Repository)(nil)

const sessionColumns = `
	token, stage, plan_id, plan_descriptor, is_paid_plan,
	email, identity_verified,
	business_name, business_descriptor, business_country, business_currency,
	checkout_url, payment_completed,
	otp_challenge_id, otp_attempts, otp_resend_after,
	user_id, workspace_id,
	version, created_at, updated_at, expires_at`

func (r *Repository) Create(ctx context.Context, s *Session) error {
	query := `
		INSERT INTO onboarding_sessions (
			token, stage, plan_id, plan_descriptor, is_paid_plan,
			email, expires_at, version
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		RETURNING created_at, updated_at`

	err := r.db.GetContext(ctx, s, query,
		s.Token,
		s.Stage,
		s.PlanID,
		s.PlanDescriptor,
		s.IsPaidPlan,
		s.Email,
		s.ExpiresAt,
		s.Version,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("create session: %w", ErrTokenCollision)
		}
		return fmt.Errorf("create session: %w", err)
	}

	return nil
}

func (r *Repository) Load(ctx context.Context, token string) (*Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM onboarding_sessions
		WHERE token = $1`

	var s Session
	err := r.db.GetContext(ctx, &s, query, token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load session: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	if s.IsExpired(time.Now()) {
		return nil, fmt.Errorf("load session: %w", ErrExpired)
	}

	return &s, nil
}

func (r *Repository) Save(
	ctx context.Context,
	s *Session,
	expectedVersion int,
) error {
	query := `
		UPDATE onboarding_sessions
		SET stage = $3,
		    email = $4,
		    identity_verified = $5,
		    business_name = $6,
		    business_descriptor = $7,
		    business_country = $8,
		    business_currency = $9,
		    checkout_url = $10,
		    payment_completed = $11,
		    otp_challenge_id = $12,
		    otp_attempts = $13,
		    otp_resend_after = $14,
		    user_id = $15,
		    workspace_id = $16,
		    version = version + 1,
		    updated_at = NOW()
		WHERE token = $1 AND version = $2
		RETURNING version, updated_at`

	err := r.db.GetContext(ctx, s, query,
		s.Token,
		expectedVersion,
		s.Stage,
		s.Email,
		s.IdentityVerified,
		s.BusinessName,
		s.BusinessDescriptor,
		s.BusinessCountry,
		s.BusinessCurrency,
		s.CheckoutURL,
		s.PaymentCompleted,
		s.OTPChallengeID,
		s.OTPAttempts,
		s.OTPResendAfter,
		s.UserID,
		s.WorkspaceID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("save session: %w", ErrVersionConflict)
	}
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	return nil
}

// CountByStage powers the admin funnel view: how many sessions sit at
// each stage right now.
func (r *Repository) CountByStage(
	ctx context.Context,
) (map[Stage]int, error) {
	query := `
		SELECT stage, COUNT(*) AS n
		FROM onboarding_sessions
		WHERE expires_at > NOW()
		GROUP BY stage`

	var rows []struct {
		Stage Stage `db:"stage"`
		N     int   `db:"n"`
	}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count sessions by stage: %w", err)
	}

	counts := make(map[Stage]int, len(rows))
	for _, row := range rows {
		counts[row.Stage] = row.N
	}

	return counts, nil
}

// DeleteExpired removes sessions whose TTL passed more than gracePeriod
// ago. Completed sessions are kept until expiry so duplicate Complete
// calls keep answering with the already-created account.
func (r *Repository) DeleteExpired(
	ctx context.Context,
	gracePeriod time.Duration,
) (int64, error) {
	query := `
		DELETE FROM onboarding_sessions
		WHERE expires_at < $1`

	cutoff := time.Now().Add(-gracePeriod)

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}

	return rows, nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
