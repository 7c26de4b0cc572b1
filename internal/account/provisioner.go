// AngelaMos | 2026
// provisioner.go

package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kyora-app/kyora-backend/internal/auth"
	"github.com/kyora-app/kyora-backend/internal/core"
	"github.com/kyora-app/kyora-backend/internal/onboarding"
)

// Provisioner commits a finished onboarding session into the account
// tables: one user, one workspace, one transaction. It is idempotent per
// session token — a retried commit finds the workspace stamped with the
// same token and returns that account instead of creating a second one.
type Provisioner struct {
	db   *sqlx.DB
	repo Repository
	auth *auth.Service
}

var _ onboarding.AccountProvisioner = (*Provisioner)(nil)
var _ auth.UserProvider = (*Provisioner)(nil)

func NewProvisioner(db *sqlx.DB, repo Repository, authSvc *auth.Service) *Provisioner {
	return &Provisioner{db: db, repo: repo, auth: authSvc}
}

// SetTokenIssuer breaks the construction cycle: the auth service needs
// the provisioner as its user source, and the provisioner needs the auth
// service to mint tokens at commit.
func (p *Provisioner) SetTokenIssuer(authSvc *auth.Service) {
	p.auth = authSvc
}

func (p *Provisioner) DescriptorTaken(
	ctx context.Context,
	descriptor string,
) (bool, error) {
	return p.repo.DescriptorExists(ctx, descriptor)
}

func (p *Provisioner) CreateAccount(
	ctx context.Context,
	s *onboarding.Session,
) (*onboarding.AccountResult, error) {
	if existing, err := p.repo.GetWorkspaceByOnboardingToken(
		ctx,
		s.Token,
	); err == nil {
		return p.resultFor(ctx, existing)
	} else if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}

	user := &User{
		ID:    uuid.NewString(),
		Email: s.Email,
		Name:  nameFromEmail(s.Email),
		Role:  RoleOwner,
	}
	draft := s.Draft()
	ws := &Workspace{
		ID:              uuid.NewString(),
		Name:            draft.Name,
		Descriptor:      draft.Descriptor,
		Country:         draft.Country,
		Currency:        draft.Currency,
		PlanID:          s.PlanID,
		PlanDescriptor:  s.PlanDescriptor,
		OwnerUserID:     user.ID,
		OnboardingToken: s.Token,
	}

	err := core.InTx(ctx, p.db, func(tx *sqlx.Tx) error {
		if err := p.repo.CreateUser(ctx, tx, user); err != nil {
			return err
		}
		return p.repo.CreateWorkspace(ctx, tx, ws)
	})
	if err != nil {
		if errors.Is(err, core.ErrDuplicateKey) {
			// Either the descriptor was claimed between the engine's check
			// and here, or a concurrent commit of this same session won.
			if existing, lookupErr := p.repo.GetWorkspaceByOnboardingToken(
				ctx,
				s.Token,
			); lookupErr == nil {
				return p.resultFor(ctx, existing)
			}
			return nil, onboarding.ErrDescriptorTaken
		}
		return nil, fmt.Errorf("provision account: %w", err)
	}

	return p.resultFor(ctx, ws)
}

// GetByID satisfies auth.UserProvider so refresh-token rotation can
// rebuild claims from the same tables the provisioner writes.
func (p *Provisioner) GetByID(
	ctx context.Context,
	id string,
) (*auth.UserInfo, error) {
	user, err := p.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	ws, err := p.repo.GetWorkspaceByOwner(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return &auth.UserInfo{
		ID:          user.ID,
		Email:       user.Email,
		WorkspaceID: ws.ID,
		Role:        user.Role,
		Plan:        ws.PlanDescriptor,
	}, nil
}

func (p *Provisioner) resultFor(
	ctx context.Context,
	ws *Workspace,
) (*onboarding.AccountResult, error) {
	user, err := p.repo.GetUserByID(ctx, ws.OwnerUserID)
	if err != nil {
		return nil, err
	}

	tokens, err := p.auth.IssueTokens(ctx, &auth.UserInfo{
		ID:          user.ID,
		Email:       user.Email,
		WorkspaceID: ws.ID,
		Role:        user.Role,
		Plan:        ws.PlanDescriptor,
	}, "", "")
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	return &onboarding.AccountResult{
		UserID:       user.ID,
		WorkspaceID:  ws.ID,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}, nil
}

func nameFromEmail(email string) string {
	local, _, found := strings.Cut(email, "@")
	if !found || local == "" {
		return email
	}
	return local
}
