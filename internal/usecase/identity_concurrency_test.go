package usecase

import (
	"context"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/hugopriorizen/Base/internal/core/domain"
	"github.com/hugopriorizen/Base/internal/repository/memory"
)

// interleavedAccounts runs beforeUpdate once, between the service loading an account and
// writing it back.
type interleavedAccounts struct {
	*memory.AccountRepository
	beforeUpdate func()
}

func (r *interleavedAccounts) Update(ctx context.Context, account *domain.Account, expectedStamp string) error {
	if hook := r.beforeUpdate; hook != nil {
		r.beforeUpdate = nil
		hook()
	}
	return r.AccountRepository.Update(ctx, account, expectedStamp)
}

func (h *harness) interleaved(t *testing.T) (*IdentityService, *interleavedAccounts) {
	t.Helper()
	accounts := &interleavedAccounts{AccountRepository: h.accounts}
	svc := NewIdentityService(accounts, h.roles, h.credentials, DefaultIdentityConfig(), zaptest.NewLogger(t)).
		WithClock(h.clock.Now)
	return svc, accounts
}

func TestIdentityService_ProfileUpdateKeepsConcurrentStampRotation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := h.register(t, "alice", "alice@example.com", strongPassword)

	issued, err := h.svc.GeneratePasswordResetToken(ctx, account.ID)
	if err != nil {
		t.Fatalf("GeneratePasswordResetToken: %v", err)
	}

	svc, accounts := h.interleaved(t)
	accounts.beforeUpdate = func() {
		if err := h.svc.ChangePassword(ctx, account.ID, strongPassword, "N3w!passwd"); err != nil {
			t.Fatalf("ChangePassword: %v", err)
		}
	}

	if _, err := svc.UpdateUser(ctx, ProfileUpdate{
		ID:        account.ID,
		FirstName: "Alicia",
		LastName:  "B",
		Email:     "alice@example.com",
		IsActive:  true,
	}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	requireKind(t, h.svc.ResetPassword(ctx, account.ID, issued.Value, "An0ther!pass"), ErrTokenInvalid)

	if ok, err := h.svc.ValidateUser(ctx, "alice", "N3w!passwd"); err != nil || !ok {
		t.Fatalf("expected changed password to remain valid, ok=%v err=%v", ok, err)
	}
}

func TestIdentityService_EmailChangeLosesToConcurrentStampRotation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := h.register(t, "alice", "alice@example.com", strongPassword)

	svc, accounts := h.interleaved(t)
	accounts.beforeUpdate = func() {
		if _, err := h.svc.GeneratePasswordResetToken(ctx, account.ID); err != nil {
			t.Fatalf("GeneratePasswordResetToken: %v", err)
		}
	}

	_, err := svc.UpdateUser(ctx, ProfileUpdate{
		ID:        account.ID,
		FirstName: "A",
		LastName:  "B",
		Email:     "alicia@example.com",
		IsActive:  true,
	})
	requireKind(t, err, ErrConflict)

	stored, _ := h.svc.GetUserByID(ctx, account.ID)
	if stored.Email != "alice@example.com" {
		t.Fatalf("expected email unchanged after lost race, got %q", stored.Email)
	}
}
