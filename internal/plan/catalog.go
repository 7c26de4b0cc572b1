// AngelaMos | 2026
// catalog.go

package plan

import (
	"context"

	"github.com/kyora-app/kyora-backend/internal/onboarding"
)

// Catalog exposes the plan table to the onboarding facade in its own
// terms. Onboarding only sees the snapshot fields it copies onto the
// session, never the full row.
type Catalog struct {
	repo Repository
}

func NewCatalog(repo Repository) *Catalog {
	return &Catalog{repo: repo}
}

var _ onboarding.PlanCatalog = (*Catalog)(nil)

func (c *Catalog) GetPlan(
	ctx context.Context,
	descriptor string,
) (*onboarding.PlanInfo, error) {
	plan, err := c.repo.GetByDescriptor(ctx, descriptor)
	if err != nil {
		return nil, err
	}

	return &onboarding.PlanInfo{
		ID:         plan.ID,
		Descriptor: plan.Descriptor,
		Name:       plan.Name,
		Paid:       plan.Paid,
		PriceRef:   plan.PriceRef,
	}, nil
}
