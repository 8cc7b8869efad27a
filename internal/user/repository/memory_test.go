package repository

import (
	"context"
	"errors"
	"testing"

	"outreach-tracker/backend/internal/user/domain"
)

func TestMemoryRepository_CreateEnforcesUniqueEID(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	if err := r.Create(ctx, &domain.User{EID: "dup"}, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := r.Create(ctx, &domain.User{EID: "dup"}, nil); !errors.Is(err, ErrDuplicateEID) {
		t.Fatalf("second Create: want ErrDuplicateEID, got %v", err)
	}
}

func TestMemoryRepository_ReadsAreCopies(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	u := &domain.User{EID: "copy", Name: "Original"}
	if err := r.Create(ctx, u, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, _ := r.GetByID(ctx, u.ID)
	got.Name = "Mutated"
	again, _ := r.GetByID(ctx, u.ID)
	if again.Name != "Original" {
		t.Errorf("Name = %q, stored record was mutated", again.Name)
	}
}

func TestMemoryRepository_InitRefreshTokenKeepsFirstValue(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	u := &domain.User{EID: "rt"}
	if err := r.Create(ctx, u, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	first, err := r.InitRefreshToken(ctx, u.ID, "one")
	if err != nil {
		t.Fatalf("InitRefreshToken: %v", err)
	}
	second, err := r.InitRefreshToken(ctx, u.ID, "two")
	if err != nil {
		t.Fatalf("InitRefreshToken: %v", err)
	}
	if first != "one" || second != "one" {
		t.Errorf("stored = %q then %q, want one both times", first, second)
	}
	missing, err := r.InitRefreshToken(ctx, 404, "x")
	if err != nil || missing != "" {
		t.Errorf("InitRefreshToken(missing) = %q, %v", missing, err)
	}
}

func TestMemoryRepository_DeleteRemovesRolesAndEID(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	u := &domain.User{EID: "gone"}
	if err := r.Create(ctx, u, []int64{1}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	ok, err := r.Delete(ctx, u.ID)
	if err != nil || !ok {
		t.Fatalf("Delete = %v, %v", ok, err)
	}
	if got, _ := r.GetByEID(ctx, "gone"); got != nil {
		t.Error("user still found by eid after delete")
	}
	if err := r.Create(ctx, &domain.User{EID: "gone"}, nil); err != nil {
		t.Fatalf("re-Create after delete: %v", err)
	}
}

func TestMemoryRepository_UnknownRoleWritesNothing(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	if err := r.Create(ctx, &domain.User{EID: "alice"}, []int64{1, 99}); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("Create: want ErrUnknownRole, got %v", err)
	}
	if got, _ := r.GetByEID(ctx, "alice"); got != nil {
		t.Fatalf("user stored despite unknown role: %+v", got)
	}

	bob := &domain.User{EID: "bob", Name: "Bob"}
	if err := r.Create(ctx, bob, []int64{1}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := r.Update(ctx, bob.ID, "Robert", []int64{99}); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("Update: want ErrUnknownRole, got %v", err)
	}
	got, _ := r.GetByID(ctx, bob.ID)
	if got.Name != "Bob" || len(got.Roles) != 1 || got.Roles[0].Name != domain.RoleAdmin {
		t.Errorf("after failed Update = %+v, want unchanged", got)
	}
}
