// AngelaMos | 2026
// memstore_test.go

package onboarding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kyora-app/kyora-backend/internal/core"
)

func TestStoreConstructors(t *testing.T) {
	var s Store = NewRepository(nil)
	if s == nil {
		t.Fatal("NewRepository returned nil")
	}
	s = NewMemoryStore()
	if s == nil {
		t.Fatal("NewMemoryStore returned nil")
	}
}

func TestMemoryStoreCAS(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.SetClock(func() time.Time { return testNow })

	session := baseSession(StagePlanSelected)
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	if err := store.Create(ctx, baseSession(StagePlanSelected)); !errors.Is(
		err, ErrTokenCollision,
	) {
		t.Fatalf("duplicate Create() error = %v, want ErrTokenCollision", err)
	}

	// Two readers take the same snapshot; only the first writer wins.
	first, err := store.Load(ctx, session.Token)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	second, err := store.Load(ctx, session.Token)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	first.Stage = StageIdentityPending
	if err := store.Save(ctx, first, first.Version); err != nil {
		t.Fatalf("first Save() failed: %v", err)
	}
	if first.Version != 2 {
		t.Errorf("saved version = %d, want 2", first.Version)
	}

	second.Stage = StageIdentityVerified
	if err := store.Save(ctx, second, second.Version); !errors.Is(
		err, ErrVersionConflict,
	) {
		t.Fatalf("stale Save() error = %v, want ErrVersionConflict", err)
	}

	current, err := store.Load(ctx, session.Token)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if current.Stage != StageIdentityPending {
		t.Errorf("stage = %s, want winner's %s", current.Stage, StageIdentityPending)
	}
}

func TestMemoryStoreUnknownAndExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.SetClock(func() time.Time { return testNow })

	if _, err := store.Load(ctx, "onb_missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("Load() error = %v, want core.ErrNotFound", err)
	}

	session := baseSession(StagePlanSelected)
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	store.SetClock(func() time.Time { return testNow.Add(25 * time.Hour) })
	if _, err := store.Load(ctx, session.Token); !errors.Is(err, ErrExpired) {
		t.Fatalf("Load() after TTL error = %v, want ErrExpired", err)
	}
}
