// AngelaMos | 2026
// entity.go

package plan

import (
	"time"
)

// Plan is a purchasable (or free) subscription tier. Descriptor is the
// stable public handle clients send; ID and PriceRef are internal.
type Plan struct {
	ID         string    `db:"id"         json:"id"`
	Descriptor string    `db:"descriptor" json:"descriptor"`
	Name       string    `db:"name"       json:"name"`
	Paid       bool      `db:"paid"       json:"paid"`
	PriceRef   string    `db:"price_ref"  json:"-"`
	Active     bool      `db:"active"     json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}
