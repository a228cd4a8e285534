package usecase

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/hugopriorizen/Base/internal/core/domain"
	"github.com/hugopriorizen/Base/internal/repository/lifecycle"
	"github.com/hugopriorizen/Base/internal/repository/memory"
)

const strongPassword = "Str0ng!pw"

func TestIdentityService_CreateUserPostconditions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	account := h.register(t, "alice", "alice@example.com", strongPassword)

	stored, err := h.svc.GetUserByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if !stored.IsActive || stored.DeletedAt != nil {
		t.Fatalf("expected active account without deletion stamp, got %+v", stored)
	}
	if !stored.CreatedAt.Equal(h.clock.Now()) {
		t.Fatalf("expected created at %v, got %v", h.clock.Now(), stored.CreatedAt)
	}
	if stored.PasswordHash == strongPassword {
		t.Fatal("password stored in plain text")
	}
	if !h.credentials.Verify(strongPassword, stored.PasswordHash) {
		t.Fatal("stored hash does not verify")
	}
	if stored.SecurityStamp == "" {
		t.Fatal("expected security stamp")
	}
	if stored.EmailConfirmed {
		t.Fatal("email must start unconfirmed")
	}

	roles, err := h.svc.GetUserRoles(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetUserRoles: %v", err)
	}
	if len(roles) != 1 || roles[0] != domain.RoleUser {
		t.Fatalf("expected default role, got %v", roles)
	}

	if len(h.events.registered) != 1 || h.events.registered[0].AccountID != account.ID {
		t.Fatalf("expected registered event, got %+v", h.events.registered)
	}
	if len(h.events.confirmationsRequested) != 1 || h.events.confirmationsRequested[0].Token == "" {
		t.Fatalf("expected confirmation request, got %+v", h.events.confirmationsRequested)
	}
	if h.metrics.observations[len(h.metrics.observations)-1] != "CreateUser:success" {
		t.Fatalf("unexpected metrics %v", h.metrics.observations)
	}
}

func TestIdentityService_LoginAndDeactivate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	account := h.register(t, "alice", "alice@example.com", strongPassword)

	ok, err := h.svc.ValidateUser(ctx, "ALICE", strongPassword)
	if err != nil || !ok {
		t.Fatalf("expected valid credentials, got %v %v", ok, err)
	}

	stored, _ := h.svc.GetUserByID(ctx, account.ID)
	if stored.LastLoginAt == nil || !stored.LastLoginAt.Equal(h.clock.Now()) {
		t.Fatalf("expected last login stamped, got %v", stored.LastLoginAt)
	}

	h.clock.Advance(time.Minute)
	if err := h.svc.DeleteUser(ctx, account.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}

	stored, _ = h.svc.GetUserByID(ctx, account.ID)
	if stored.IsActive || stored.DeletedAt == nil || !stored.DeletedAt.Equal(h.clock.Now()) {
		t.Fatalf("expected soft-deleted account, got %+v", stored)
	}

	ok, err = h.svc.ValidateUser(ctx, "alice", strongPassword)
	if err != nil || ok {
		t.Fatalf("deactivated account must not validate, got %v %v", ok, err)
	}

	_, err = h.svc.Authenticate(ctx, "alice", strongPassword)
	requireKind(t, err, ErrAuthenticationFailed)
	if Message(err, "") != MsgInvalidCredentials {
		t.Fatalf("unexpected message %q", Message(err, ""))
	}

	if len(h.events.deactivated) != 1 || h.events.deactivated[0].Reason != deactivationReasonDeleted {
		t.Fatalf("expected deactivated event, got %+v", h.events.deactivated)
	}
}

func TestIdentityService_AuthenticateUnknownUserMatchesWrongPassword(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "alice", "alice@example.com", strongPassword)

	_, unknown := h.svc.Authenticate(ctx, "nobody", strongPassword)
	_, wrong := h.svc.Authenticate(ctx, "alice", "Wr0ng!pass")

	requireKind(t, unknown, ErrAuthenticationFailed)
	requireKind(t, wrong, ErrAuthenticationFailed)
	if unknown.Error() != wrong.Error() {
		t.Fatalf("failures must be indistinguishable: %q vs %q", unknown, wrong)
	}
}

func TestIdentityService_RequireConfirmedEmail(t *testing.T) {
	cfg := DefaultIdentityConfig()
	cfg.RequireConfirmedEmail = true
	h := newHarnessWithConfig(t, cfg)
	ctx := context.Background()

	account := h.register(t, "alice", "alice@example.com", strongPassword)

	_, err := h.svc.Authenticate(ctx, "alice", strongPassword)
	requireKind(t, err, ErrAuthenticationFailed)
	if Message(err, "") != MsgEmailNotConfirmed {
		t.Fatalf("unexpected message %q", Message(err, ""))
	}

	token := h.events.confirmationsRequested[0].Token
	if err := h.svc.ConfirmEmail(ctx, account.ID, token); err != nil {
		t.Fatalf("ConfirmEmail: %v", err)
	}

	if _, err := h.svc.Authenticate(ctx, "alice", strongPassword); err != nil {
		t.Fatalf("Authenticate after confirmation: %v", err)
	}
}

func TestIdentityService_CreateUserConflicts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "alice", "alice@example.com", strongPassword)

	_, err := h.svc.CreateUser(ctx, NewAccount{UserName: "bob", Email: "ALICE@example.com"}, strongPassword)
	requireKind(t, err, ErrConflict)
	if Message(err, "") != MsgEmailInUse {
		t.Fatalf("unexpected message %q", Message(err, ""))
	}

	_, err = h.svc.CreateUser(ctx, NewAccount{UserName: "Alice", Email: "alice@example.com"}, "short")
	requireKind(t, err, ErrConflict)
	var typed *Error
	errors.As(err, &typed)
	if len(typed.Messages) < 3 {
		t.Fatalf("expected conflicts and policy violations together, got %v", typed.Messages)
	}
	if typed.Messages[0] != MsgUserNameInUse || typed.Messages[1] != MsgEmailInUse {
		t.Fatalf("unexpected conflict order %v", typed.Messages)
	}

	count, err := h.svc.CountUsers(ctx, domain.AccountFilter{})
	if err != nil || count != 1 {
		t.Fatalf("expected a single stored account, got %d %v", count, err)
	}
}

func TestIdentityService_CreateUserWeakPassword(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.CreateUser(context.Background(), NewAccount{UserName: "carol", Email: "carol@example.com"}, "password")
	requireKind(t, err, ErrValidationFailed)

	message := Message(err, "")
	for _, want := range []string{"uppercase", "number", "special"} {
		if !strings.Contains(strings.ToLower(message), want) {
			t.Fatalf("expected %q among violations, got %q", want, message)
		}
	}
	if len(h.events.registered) != 0 {
		t.Fatal("rejected registration must not publish")
	}
}

func TestIdentityService_DeletedAccountKeepsIdentifiersReserved(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := h.register(t, "alice", "alice@example.com", strongPassword)

	if err := h.svc.DeleteUser(ctx, account.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}

	_, err := h.svc.CreateUser(ctx, NewAccount{UserName: "alice", Email: "alice2@example.com"}, strongPassword)
	requireKind(t, err, ErrConflict)
}

func TestIdentityService_DeleteTwice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := h.register(t, "alice", "alice@example.com", strongPassword)

	if err := h.svc.DeleteUser(ctx, account.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	first, _ := h.svc.GetUserByID(ctx, account.ID)

	h.clock.Advance(time.Hour)
	requireKind(t, h.svc.DeleteUser(ctx, account.ID), ErrNotFound)
	requireKind(t, h.svc.DeleteUser(ctx, "missing"), ErrNotFound)

	second, _ := h.svc.GetUserByID(ctx, account.ID)
	if !second.DeletedAt.Equal(*first.DeletedAt) {
		t.Fatalf("deletion stamp moved from %v to %v", first.DeletedAt, second.DeletedAt)
	}
	if len(h.events.deactivated) != 1 {
		t.Fatalf("expected one deactivation event, got %d", len(h.events.deactivated))
	}
}

func TestIdentityService_DeactivationRotatesStamp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice", "alice@example.com", strongPassword)
	bob := h.register(t, "bob", "bob@example.com", strongPassword)

	if err := h.svc.DeleteUser(ctx, alice.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	stored, _ := h.svc.GetUserByID(ctx, alice.ID)
	if stored.SecurityStamp == alice.SecurityStamp {
		t.Fatalf("expected delete to rotate the stamp")
	}

	if _, err := h.svc.UpdateUser(ctx, ProfileUpdate{
		ID:        bob.ID,
		FirstName: bob.FirstName,
		LastName:  bob.LastName,
		Email:     bob.Email,
		IsActive:  false,
	}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	stored, _ = h.svc.GetUserByID(ctx, bob.ID)
	if stored.IsActive || stored.SecurityStamp == bob.SecurityStamp {
		t.Fatalf("expected deactivation to rotate the stamp, got %+v", stored)
	}
}

func TestIdentityService_LockoutAfterRepeatedFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := h.register(t, "bob", "bob@example.com", strongPassword)

	for i := 0; i < 5; i++ {
		ok, err := h.svc.ValidateUser(ctx, "bob", "Wr0ng!pass")
		if err != nil || ok {
			t.Fatalf("attempt %d: expected rejection, got %v %v", i, ok, err)
		}
	}

	stored, _ := h.svc.GetUserByID(ctx, account.ID)
	lockedUntil := h.clock.Now().Add(5 * time.Minute)
	if stored.LockoutEnd == nil || !stored.LockoutEnd.Equal(lockedUntil) {
		t.Fatalf("expected lockout until %v, got %v", lockedUntil, stored.LockoutEnd)
	}
	if stored.AccessFailedCount != 0 {
		t.Fatalf("expected counter reset on lockout, got %d", stored.AccessFailedCount)
	}
	if stored.State(h.clock.Now()) != domain.AccountStateLocked {
		t.Fatalf("expected locked state, got %s", stored.State(h.clock.Now()))
	}

	ok, err := h.svc.ValidateUser(ctx, "bob", strongPassword)
	if err != nil || ok {
		t.Fatalf("locked account must reject the correct password, got %v %v", ok, err)
	}
	stored, _ = h.svc.GetUserByID(ctx, account.ID)
	if stored.LastLoginAt != nil || stored.AccessFailedCount != 0 {
		t.Fatalf("locked attempt must not touch counters, got %+v", stored)
	}

	h.clock.Advance(5*time.Minute + time.Second)
	ok, err = h.svc.ValidateUser(ctx, "bob", strongPassword)
	if err != nil || !ok {
		t.Fatalf("expected login after lockout expiry, got %v %v", ok, err)
	}
	stored, _ = h.svc.GetUserByID(ctx, account.ID)
	if stored.LockoutEnd != nil {
		t.Fatalf("expected lockout cleared, got %v", stored.LockoutEnd)
	}
}

func TestIdentityService_SuccessfulLoginResetsFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := h.register(t, "bob", "bob@example.com", strongPassword)

	for i := 0; i < 4; i++ {
		_, _ = h.svc.ValidateUser(ctx, "bob", "Wr0ng!pass")
	}
	if ok, _ := h.svc.ValidateUser(ctx, "bob", strongPassword); !ok {
		t.Fatal("expected login before threshold")
	}
	_, _ = h.svc.ValidateUser(ctx, "bob", "Wr0ng!pass")

	stored, _ := h.svc.GetUserByID(ctx, account.ID)
	if stored.AccessFailedCount != 1 || stored.LockoutEnd != nil {
		t.Fatalf("expected counter restarted, got %+v", stored)
	}
}

func TestIdentityService_ResetPassword(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := h.register(t, "alice", "alice@example.com", strongPassword)

	if err := h.svc.RequestPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	if len(h.events.resetRequested) != 1 {
		t.Fatalf("expected reset request event, got %d", len(h.events.resetRequested))
	}
	event := h.events.resetRequested[0]
	if event.AccountID != account.ID || event.Token == "" || !event.ExpiresAt.Equal(h.clock.Now().Add(time.Hour)) {
		t.Fatalf("unexpected reset event %+v", event)
	}

	const newPassword = "N3w!passw0rd"
	requireKind(t, h.svc.ResetPassword(ctx, account.ID, event.Token, "weak"), ErrValidationFailed)

	if err := h.svc.ResetPassword(ctx, account.ID, event.Token, newPassword); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if ok, _ := h.svc.ValidateUser(ctx, "alice", newPassword); !ok {
		t.Fatal("expected new password to validate")
	}
	if ok, _ := h.svc.ValidateUser(ctx, "alice", strongPassword); ok {
		t.Fatal("old password must stop validating")
	}

	requireKind(t, h.svc.ResetPassword(ctx, account.ID, event.Token, "An0ther!pass"), ErrTokenInvalid)

	if len(h.events.passwordChanged) != 1 || h.events.passwordChanged[0].Method != passwordChangeMethodReset {
		t.Fatalf("expected password changed event, got %+v", h.events.passwordChanged)
	}
}

func TestIdentityService_ResetTokenRejectedAfterPasswordChange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := h.register(t, "alice", "alice@example.com", strongPassword)

	token, err := h.svc.GeneratePasswordResetToken(ctx, account.ID)
	if err != nil {
		t.Fatalf("GeneratePasswordResetToken: %v", err)
	}

	if err := h.svc.ChangePassword(ctx, account.ID, strongPassword, "Ch4nged!pw"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	requireKind(t, h.svc.ResetPassword(ctx, account.ID, token.Value, "N3w!passw0rd"), ErrTokenInvalid)
}

func TestIdentityService_NewerResetTokenSupersedesOlder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := h.register(t, "alice", "alice@example.com", strongPassword)

	older, err := h.svc.GeneratePasswordResetToken(ctx, account.ID)
	if err != nil {
		t.Fatalf("GeneratePasswordResetToken: %v", err)
	}
	newer, err := h.svc.GeneratePasswordResetToken(ctx, account.ID)
	if err != nil {
		t.Fatalf("GeneratePasswordResetToken: %v", err)
	}

	requireKind(t, h.svc.ResetPassword(ctx, account.ID, older.Value, "N3w!passw0rd"), ErrTokenInvalid)
	if err := h.svc.ResetPassword(ctx, account.ID, newer.Value, "N3w!passw0rd"); err != nil {
		t.Fatalf("ResetPassword with newer token: %v", err)
	}
}

func TestIdentityService_ResetTokenExpires(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := h.register(t, "alice", "alice@example.com", strongPassword)

	token, err := h.svc.GeneratePasswordResetToken(ctx, account.ID)
	if err != nil {
		t.Fatalf("GeneratePasswordResetToken: %v", err)
	}

	h.clock.Advance(time.Hour + time.Second)
	requireKind(t, h.svc.ResetPassword(ctx, account.ID, token.Value, "N3w!passw0rd"), ErrTokenInvalid)
}

func TestIdentityService_RequestPasswordResetUnknownEmail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := h.register(t, "alice", "alice@example.com", strongPassword)

	if err := h.svc.RequestPasswordReset(ctx, "ghost@example.com"); err != nil {
		t.Fatalf("unknown email must succeed silently, got %v", err)
	}

	if err := h.svc.DeleteUser(ctx, account.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if err := h.svc.RequestPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("inactive email must succeed silently, got %v", err)
	}
	if len(h.events.resetRequested) != 0 {
		t.Fatalf("expected no reset events, got %d", len(h.events.resetRequested))
	}
}

func TestIdentityService_ChangePasswordFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := h.register(t, "alice", "alice@example.com", strongPassword)

	err := h.svc.ChangePassword(ctx, account.ID, "Wr0ng!pass", "N3w!passw0rd")
	requireKind(t, err, ErrValidationFailed)
	if Message(err, "") != MsgIncorrectPassword {
		t.Fatalf("unexpected message %q", Message(err, ""))
	}

	requireKind(t, h.svc.ChangePassword(ctx, account.ID, strongPassword, strongPassword), ErrValidationFailed)
	requireKind(t, h.svc.ChangePassword(ctx, account.ID, strongPassword, "weak"), ErrValidationFailed)
	requireKind(t, h.svc.ChangePassword(ctx, "missing", strongPassword, "N3w!passw0rd"), ErrNotFound)

	if len(h.events.passwordChanged) != 0 {
		t.Fatalf("failed changes must not publish, got %d", len(h.events.passwordChanged))
	}
}

func TestIdentityService_ChangePasswordCountsTowardLockout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := h.register(t, "alice", "alice@example.com", strongPassword)

	for i := 0; i < 5; i++ {
		err := h.svc.ChangePassword(ctx, account.ID, "Wr0ng!pass", "N3w!passw0rd")
		if Message(err, "") != MsgIncorrectPassword {
			t.Fatalf("attempt %d: unexpected error %v", i, err)
		}
	}

	stored, _ := h.svc.GetUserByID(ctx, account.ID)
	if !stored.IsLockedOut(h.clock.Now()) {
		t.Fatalf("expected lockout after repeated wrong current passwords, got %+v", stored)
	}

	err := h.svc.ChangePassword(ctx, account.ID, strongPassword, "N3w!passw0rd")
	requireKind(t, err, ErrValidationFailed)
	if Message(err, "") != MsgAccountLockedOut {
		t.Fatalf("unexpected message %q", Message(err, ""))
	}
	if ok, _ := h.svc.ValidateUser(ctx, "alice", strongPassword); ok {
		t.Fatal("locked account must not sign in")
	}

	h.clock.Advance(5*time.Minute + time.Second)
	if err := h.svc.ChangePassword(ctx, account.ID, strongPassword, "N3w!passw0rd"); err != nil {
		t.Fatalf("ChangePassword after lockout: %v", err)
	}
}

func TestIdentityService_EmailConfirmation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := h.register(t, "alice", "alice@example.com", strongPassword)

	token, err := h.svc.GenerateEmailConfirmationToken(ctx, account.ID)
	if err != nil {
		t.Fatalf("GenerateEmailConfirmationToken: %v", err)
	}

	requireKind(t, h.svc.ConfirmEmail(ctx, account.ID, token.Value+"x"), ErrTokenInvalid)

	ok, err := h.credentials.VerifyEmailConfirmation(ctx, account.ID, token.Value)
	if err != nil || !ok {
		t.Fatalf("expected token to verify, got %v %v", ok, err)
	}

	if err := h.svc.ConfirmEmail(ctx, account.ID, token.Value); err != nil {
		t.Fatalf("ConfirmEmail: %v", err)
	}
	stored, _ := h.svc.GetUserByID(ctx, account.ID)
	if !stored.EmailConfirmed {
		t.Fatal("expected email confirmed")
	}
}

func TestIdentityService_ConfirmationTokenDoesNotInvalidateReset(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := h.register(t, "alice", "alice@example.com", strongPassword)

	reset, err := h.svc.GeneratePasswordResetToken(ctx, account.ID)
	if err != nil {
		t.Fatalf("GeneratePasswordResetToken: %v", err)
	}
	if _, err := h.svc.GenerateEmailConfirmationToken(ctx, account.ID); err != nil {
		t.Fatalf("GenerateEmailConfirmationToken: %v", err)
	}

	if err := h.svc.ResetPassword(ctx, account.ID, reset.Value, "N3w!passw0rd"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
}

func TestIdentityService_UpdateUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := h.register(t, "alice", "alice@example.com", strongPassword)
	h.register(t, "bob", "bob@example.com", strongPassword)

	confirmation := h.events.confirmationsRequested[0].Token
	if err := h.svc.ConfirmEmail(ctx, account.ID, confirmation); err != nil {
		t.Fatalf("ConfirmEmail: %v", err)
	}
	before, _ := h.svc.GetUserByID(ctx, account.ID)

	_, err := h.svc.UpdateUser(ctx, ProfileUpdate{ID: account.ID, Email: "BOB@example.com", IsActive: true})
	requireKind(t, err, ErrConflict)

	address := "  1 Main St  "
	updated, err := h.svc.UpdateUser(ctx, ProfileUpdate{
		ID:        account.ID,
		FirstName: " Alice ",
		LastName:  "Liddell",
		Email:     "alice@wonderland.example",
		Address:   &address,
		IsActive:  true,
	})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if updated.FirstName != "Alice" || updated.Address == nil || *updated.Address != "1 Main St" {
		t.Fatalf("unexpected profile %+v", updated)
	}

	stored, _ := h.svc.GetUserByID(ctx, account.ID)
	if stored.EmailConfirmed {
		t.Fatal("email change must clear confirmation")
	}
	if stored.SecurityStamp == before.SecurityStamp {
		t.Fatal("email change must rotate the stamp")
	}
	if !stored.CreatedAt.Equal(before.CreatedAt) {
		t.Fatal("created at must not change on update")
	}

	if _, err := h.svc.GetUserByEmail(ctx, "alice@wonderland.example"); err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
}

func TestIdentityService_UpdateUserDeactivates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := h.register(t, "alice", "alice@example.com", strongPassword)

	h.clock.Advance(time.Minute)
	if _, err := h.svc.UpdateUser(ctx, ProfileUpdate{ID: account.ID, Email: "alice@example.com", IsActive: false}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	stored, _ := h.svc.GetUserByID(ctx, account.ID)
	if stored.IsActive || stored.DeletedAt == nil || !stored.DeletedAt.Equal(h.clock.Now()) {
		t.Fatalf("expected deactivation stamp, got %+v", stored)
	}
	if len(h.events.deactivated) != 1 || h.events.deactivated[0].Reason != deactivationReasonProfileUpdate {
		t.Fatalf("expected deactivation event, got %+v", h.events.deactivated)
	}

	_, err := h.svc.UpdateUser(ctx, ProfileUpdate{ID: account.ID, Email: "alice@example.com", IsActive: true})
	requireKind(t, err, ErrNotFound)
}

func TestIdentityService_RolesAndListing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice", "alice@example.com", strongPassword)
	h.clock.Advance(time.Second)
	bob := h.register(t, "bob", "bob@example.com", strongPassword)

	ok, err := h.svc.IsUserInRole(ctx, alice.ID, "user")
	if err != nil || !ok {
		t.Fatalf("expected case-insensitive role match, got %v %v", ok, err)
	}
	ok, _ = h.svc.IsUserInRole(ctx, alice.ID, domain.RoleAdmin)
	if ok {
		t.Fatal("alice must not be admin")
	}

	roles, err := h.svc.GetUserRoles(ctx, "missing")
	if err != nil || len(roles) != 0 {
		t.Fatalf("unknown account must hold no roles, got %v %v", roles, err)
	}

	listed, err := h.svc.ListUsers(ctx, domain.AccountsInRole(domain.RoleUser))
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != bob.ID {
		t.Fatalf("expected newest first, got %+v", listed)
	}

	if err := h.svc.DeleteUser(ctx, bob.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	active, _ := h.svc.CountUsers(ctx, domain.AccountFilter{})
	inactive, _ := h.svc.CountUsers(ctx, domain.InactiveAccounts())
	if active != 1 || inactive != 1 {
		t.Fatalf("expected 1 active and 1 inactive, got %d %d", active, inactive)
	}

	requireKind(t, func() error { _, err := h.svc.GetUserByUserName(ctx, "ghost"); return err }(), ErrNotFound)
}

func TestIdentityService_MissingDefaultRole(t *testing.T) {
	cfg := DefaultIdentityConfig()
	cfg.DefaultRole = "Guest"
	h := newHarnessWithConfig(t, cfg)

	account := h.register(t, "alice", "alice@example.com", strongPassword)
	roles, err := h.svc.GetUserRoles(context.Background(), account.ID)
	if err != nil || len(roles) != 0 {
		t.Fatalf("expected no roles, got %v %v", roles, err)
	}
}

type failingAccounts struct {
	*memory.AccountRepository
}

func (f failingAccounts) GetByUserName(context.Context, string) (*domain.Account, error) {
	return nil, errors.New("dial tcp 10.0.0.1:5432: connection refused")
}

func TestIdentityService_StoreFailureIsUnavailable(t *testing.T) {
	h := newHarness(t)
	failing := failingAccounts{AccountRepository: h.accounts}
	svc := NewIdentityService(failing, h.roles, h.credentials, DefaultIdentityConfig(), nil).WithMetrics(h.metrics)

	ok, err := svc.ValidateUser(context.Background(), "alice", strongPassword)
	if ok {
		t.Fatal("expected rejection")
	}
	requireKind(t, err, ErrUnavailable)
	if strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("store details leaked: %v", err)
	}
	if got := h.metrics.observations[len(h.metrics.observations)-1]; got != "Authenticate:unavailable" {
		t.Fatalf("unexpected metric %q", got)
	}
}

func TestIdentityService_EventFailureDoesNotFailOperation(t *testing.T) {
	h := newHarness(t)
	h.events.err = errors.New("broker down")

	h.register(t, "alice", "alice@example.com", strongPassword)
}

func TestIdentityService_InterceptorInvariantUnderRandomOperations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(20250402))

	names := []string{"ann", "ben", "cat", "dan", "eve", "fay"}
	passwords := []string{strongPassword, "Ch4nged!pw", "weak"}
	deletedAt := map[string]time.Time{}

	for step := 0; step < 400; step++ {
		h.clock.Advance(time.Duration(rng.Intn(90)) * time.Second)

		name := names[rng.Intn(len(names))]
		var id string
		if existing, err := h.accounts.GetByUserName(ctx, name); err == nil {
			id = existing.ID
		}

		var err error
		switch rng.Intn(7) {
		case 0:
			_, err = h.svc.CreateUser(ctx, NewAccount{UserName: name, Email: name + "@example.com"}, passwords[rng.Intn(len(passwords))])
		case 1:
			err = h.svc.DeleteUser(ctx, id)
		case 2:
			_, err = h.svc.UpdateUser(ctx, ProfileUpdate{ID: id, Email: names[rng.Intn(len(names))] + "@example.com", IsActive: rng.Intn(4) != 0})
		case 3:
			_, err = h.svc.ValidateUser(ctx, name, passwords[rng.Intn(len(passwords))])
		case 4:
			err = h.svc.ChangePassword(ctx, id, passwords[rng.Intn(len(passwords))], passwords[rng.Intn(len(passwords))])
		case 5:
			var token domain.IssuedToken
			token, err = h.svc.GeneratePasswordResetToken(ctx, id)
			if err == nil {
				err = h.svc.ResetPassword(ctx, id, token.Value, passwords[rng.Intn(len(passwords))])
			}
		case 6:
			err = h.svc.RequestPasswordReset(ctx, name+"@example.com")
		}

		if err != nil {
			var typed *Error
			if !errors.As(err, &typed) || errors.Is(err, ErrUnavailable) {
				t.Fatalf("step %d: unexpected failure %v", step, err)
			}
		}

		active, _ := h.accounts.List(ctx, domain.AccountFilter{})
		inactive, _ := h.accounts.List(ctx, domain.AccountFilter{Inactive: true})
		all := append(active, inactive...)

		userNames := map[string]bool{}
		emails := map[string]bool{}
		for i := range all {
			account := &all[i]
			if !lifecycle.Satisfied(account) {
				t.Fatalf("step %d: lifecycle invariant broken for %+v", step, account)
			}
			if account.AccessFailedCount >= h.credentials.lockout.MaxFailedAttempts {
				t.Fatalf("step %d: failure counter %d reached threshold", step, account.AccessFailedCount)
			}
			if userNames[strings.ToLower(account.UserName)] || emails[strings.ToLower(account.Email)] {
				t.Fatalf("step %d: duplicate identifier on %+v", step, account)
			}
			userNames[strings.ToLower(account.UserName)] = true
			emails[strings.ToLower(account.Email)] = true

			if account.DeletedAt != nil {
				if first, seen := deletedAt[account.ID]; seen && !first.Equal(*account.DeletedAt) {
					t.Fatalf("step %d: deletion stamp moved for %s", step, account.ID)
				}
				deletedAt[account.ID] = *account.DeletedAt
			}
		}

		for id := range deletedAt {
			stored, err := h.accounts.GetByID(ctx, id)
			if err != nil || stored.IsActive {
				t.Fatalf("step %d: deactivated account %s came back", step, id)
			}
		}
	}
}
