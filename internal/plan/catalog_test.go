// AngelaMos | 2026
// catalog_test.go

package plan

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kyora-app/kyora-backend/internal/core"
)

type fakeRepository struct {
	plans []Plan
	err   error
}

func (f *fakeRepository) GetByDescriptor(
	_ context.Context,
	descriptor string,
) (*Plan, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.plans {
		if f.plans[i].Descriptor == descriptor && f.plans[i].Active {
			return &f.plans[i], nil
		}
	}
	return nil, core.ErrNotFound
}

func (f *fakeRepository) ListActive(_ context.Context) ([]Plan, error) {
	if f.err != nil {
		return nil, f.err
	}
	active := []Plan{}
	for _, p := range f.plans {
		if p.Active {
			active = append(active, p)
		}
	}
	return active, nil
}

func testPlans() []Plan {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	return []Plan{
		{
			ID:         "11111111-1111-1111-1111-111111111111",
			Descriptor: "starter",
			Name:       "Starter",
			Paid:       false,
			Active:     true,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		{
			ID:         "22222222-2222-2222-2222-222222222222",
			Descriptor: "pro",
			Name:       "Pro",
			Paid:       true,
			PriceRef:   "price_pro_monthly",
			Active:     true,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		{
			ID:         "33333333-3333-3333-3333-333333333333",
			Descriptor: "legacy",
			Name:       "Legacy",
			Paid:       true,
			PriceRef:   "price_legacy",
			Active:     false,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
	}
}

func TestCatalogGetPlan(t *testing.T) {
	catalog := NewCatalog(&fakeRepository{plans: testPlans()})

	t.Run("maps the row onto the snapshot", func(t *testing.T) {
		info, err := catalog.GetPlan(t.Context(), "pro")
		if err != nil {
			t.Fatalf("GetPlan: %v", err)
		}
		if info.ID != "22222222-2222-2222-2222-222222222222" {
			t.Errorf("ID = %q", info.ID)
		}
		if info.Descriptor != "pro" || info.Name != "Pro" {
			t.Errorf("snapshot = %+v", info)
		}
		if !info.Paid {
			t.Error("Paid = false, want true")
		}
		if info.PriceRef != "price_pro_monthly" {
			t.Errorf("PriceRef = %q", info.PriceRef)
		}
	})

	t.Run("unknown descriptor", func(t *testing.T) {
		_, err := catalog.GetPlan(t.Context(), "enterprise")
		if !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("inactive plans are invisible", func(t *testing.T) {
		_, err := catalog.GetPlan(t.Context(), "legacy")
		if !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestHandlerList(t *testing.T) {
	router := chi.NewRouter()
	NewHandler(&fakeRepository{plans: testPlans()}).RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodGet, "/plans", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Plans []Plan `json:"plans"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !body.Success {
		t.Error("success = false")
	}
	if len(body.Data.Plans) != 2 {
		t.Fatalf("plans = %d, want 2 active", len(body.Data.Plans))
	}
	if body.Data.Plans[0].Descriptor != "starter" {
		t.Errorf("first plan = %q", body.Data.Plans[0].Descriptor)
	}

	// Provider price references are internal and must not leak.
	if strings.Contains(rec.Body.String(), "price_pro_monthly") {
		t.Error("response leaks price_ref")
	}
}
