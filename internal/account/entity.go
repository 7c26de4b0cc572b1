// AngelaMos | 2026
// entity.go

package account

import (
	"time"
)

const (
	RoleOwner  = "owner"
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// User is created exclusively by the onboarding provisioner. There is no
// password column: identity was proven by OTP or OAuth before the row
// ever existed.
type User struct {
	ID        string     `db:"id"`
	Email     string     `db:"email"`
	Name      string     `db:"name"`
	Role      string     `db:"role"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at"`
}

func (u *User) IsDeleted() bool {
	return u.DeletedAt != nil
}

// Workspace is the tenant. OnboardingToken records which session created
// it, which is what makes account creation idempotent under facade
// retries.
type Workspace struct {
	ID              string    `db:"id"`
	Name            string    `db:"name"`
	Descriptor      string    `db:"descriptor"`
	Country         string    `db:"country"`
	Currency        string    `db:"currency"`
	PlanID          string    `db:"plan_id"`
	PlanDescriptor  string    `db:"plan_descriptor"`
	OwnerUserID     string    `db:"owner_user_id"`
	OnboardingToken string    `db:"onboarding_token"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}
