package lifecycle

import (
	"testing"
	"time"

	"github.com/hugopriorizen/Base/internal/core/domain"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestInterceptorInsertStampsCreatedAndActivates(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	deleted := now.Add(-time.Hour)
	account := &domain.Account{ID: "acc-1", IsActive: false, DeletedAt: &deleted}

	NewInterceptor().WithClock(fixedClock(now)).Apply(&Change{Op: OpInsert, Entity: account})

	if !account.CreatedAt.Equal(now) {
		t.Fatalf("expected created_at %v, got %v", now, account.CreatedAt)
	}
	if !account.IsActive {
		t.Fatalf("expected insert to force is_active")
	}
	if account.DeletedAt != nil {
		t.Fatalf("expected deleted_at to be cleared on insert")
	}
}

func TestInterceptorUpdateDeactivationStampsDeletedAt(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	created := now.Add(-48 * time.Hour)
	account := &domain.Account{ID: "acc-1", CreatedAt: created, IsActive: false}

	change := &Change{Op: OpUpdate, Entity: account}
	NewInterceptor().WithClock(fixedClock(now)).Apply(change)

	if account.DeletedAt == nil || !account.DeletedAt.Equal(now) {
		t.Fatalf("expected deleted_at %v, got %v", now, account.DeletedAt)
	}
	if !account.CreatedAt.Equal(created) {
		t.Fatalf("update must not touch created_at")
	}
	if change.Op != OpUpdate {
		t.Fatalf("expected op to stay update, got %s", change.Op)
	}
}

func TestInterceptorUpdateActiveLeavesTimestamps(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	created := now.Add(-48 * time.Hour)
	account := &domain.Account{ID: "acc-1", CreatedAt: created, IsActive: true}

	NewInterceptor().WithClock(fixedClock(now)).Apply(&Change{Op: OpUpdate, Entity: account})

	if account.DeletedAt != nil {
		t.Fatalf("expected deleted_at to stay nil")
	}
	if !account.CreatedAt.Equal(created) {
		t.Fatalf("expected created_at unchanged")
	}
}

func TestInterceptorDeleteBecomesUpdate(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	account := &domain.Account{ID: "acc-1", IsActive: true}

	change := &Change{Op: OpDelete, Entity: account}
	NewInterceptor().WithClock(fixedClock(now)).Apply(change)

	if change.Op != OpUpdate {
		t.Fatalf("expected delete to be rewritten to update, got %s", change.Op)
	}
	if account.IsActive {
		t.Fatalf("expected is_active=false after delete")
	}
	if account.DeletedAt == nil || !account.DeletedAt.Equal(now) {
		t.Fatalf("expected deleted_at %v, got %v", now, account.DeletedAt)
	}
}

func TestInterceptorDeleteTwiceKeepsFirstStamp(t *testing.T) {
	first := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	account := &domain.Account{ID: "acc-1", IsActive: true}

	NewInterceptor().WithClock(fixedClock(first)).Apply(&Change{Op: OpDelete, Entity: account})
	NewInterceptor().WithClock(fixedClock(first.Add(time.Hour))).Apply(&Change{Op: OpDelete, Entity: account})

	if !account.DeletedAt.Equal(first) {
		t.Fatalf("expected deleted_at to remain %v, got %v", first, account.DeletedAt)
	}
}

func TestInterceptorInvariantHoldsForEveryOperation(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	deleted := now.Add(-time.Minute)
	starts := []domain.Account{
		{IsActive: true},
		{IsActive: false},
		{IsActive: true, DeletedAt: &deleted},
		{IsActive: false, DeletedAt: &deleted},
	}

	for _, op := range []Operation{OpInsert, OpUpdate, OpDelete} {
		for i, start := range starts {
			account := start
			NewInterceptor().WithClock(fixedClock(now)).Apply(&Change{Op: op, Entity: &account})
			if !Satisfied(&account) {
				t.Fatalf("%s on start state %d violated invariant: active=%v deleted_at=%v", op, i, account.IsActive, account.DeletedAt)
			}
		}
	}
}

func TestInterceptorIgnoresNilChanges(t *testing.T) {
	NewInterceptor().Apply(nil, &Change{Op: OpInsert})
}
