// Package memory provides in-process repositories for tests and single-node development runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hugopriorizen/Base/internal/core/domain"
	"github.com/hugopriorizen/Base/internal/core/port"
	"github.com/hugopriorizen/Base/internal/repository"
	"github.com/hugopriorizen/Base/internal/repository/lifecycle"
)

// AccountRepository keeps accounts in a map guarded by a mutex. It mirrors the PostgreSQL
// repository: user name and email are unique across every row and writes pass through the
// lifecycle interceptor.
type AccountRepository struct {
	mu          sync.RWMutex
	accounts    map[string]*domain.Account
	interceptor *lifecycle.Interceptor
	roles       *RoleRepository
}

// NewAccountRepository constructs an empty store.
func NewAccountRepository(interceptor *lifecycle.Interceptor) *AccountRepository {
	if interceptor == nil {
		interceptor = lifecycle.NewInterceptor()
	}
	return &AccountRepository{
		accounts:    make(map[string]*domain.Account),
		interceptor: interceptor,
	}
}

// WithRoles lets List and Count filter by role membership.
func (r *AccountRepository) WithRoles(roles *RoleRepository) *AccountRepository {
	r.roles = roles
	return r
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func clone(account *domain.Account) *domain.Account {
	copied := *account
	if account.Address != nil {
		value := *account.Address
		copied.Address = &value
	}
	if account.DeletedAt != nil {
		value := *account.DeletedAt
		copied.DeletedAt = &value
	}
	if account.LastLoginAt != nil {
		value := *account.LastLoginAt
		copied.LastLoginAt = &value
	}
	if account.LockoutEnd != nil {
		value := *account.LockoutEnd
		copied.LockoutEnd = &value
	}
	return &copied
}

// conflictLocked reports a collision with any row other than skipID. Callers hold the lock.
func (r *AccountRepository) conflictLocked(account *domain.Account, skipID string) error {
	userName := normalize(account.UserName)
	email := normalize(account.Email)
	for id, existing := range r.accounts {
		if id == skipID {
			continue
		}
		if normalize(existing.UserName) == userName {
			return &repository.ConflictError{Field: repository.FieldUserName}
		}
		if normalize(existing.Email) == email {
			return &repository.ConflictError{Field: repository.FieldEmail}
		}
	}
	return nil
}

// Create stores a new account.
func (r *AccountRepository) Create(_ context.Context, account *domain.Account) error {
	if account == nil {
		return fmt.Errorf("account is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[account.ID]; ok {
		return &repository.ConflictError{}
	}
	if err := r.conflictLocked(account, ""); err != nil {
		return err
	}

	r.interceptor.Apply(&lifecycle.Change{Op: lifecycle.OpInsert, Entity: account})
	account.AccessFailedCount = 0
	r.accounts[account.ID] = clone(account)
	return nil
}

// Update persists profile, email and lifecycle changes of an active account. The stamp and
// confirmation flag are copied only when expectedStamp matches the stored stamp.
func (r *AccountRepository) Update(_ context.Context, account *domain.Account, expectedStamp string) error {
	if account == nil {
		return fmt.Errorf("account is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.accounts[account.ID]
	if !ok || !stored.IsActive {
		return repository.ErrNotFound
	}
	if expectedStamp != "" && stored.SecurityStamp != expectedStamp {
		return repository.ErrStaleStamp
	}
	if err := r.conflictLocked(account, account.ID); err != nil {
		return err
	}

	r.interceptor.Apply(&lifecycle.Change{Op: lifecycle.OpUpdate, Entity: account})

	stored.UserName = account.UserName
	stored.Email = account.Email
	stored.FirstName = account.FirstName
	stored.LastName = account.LastName
	stored.Address = clone(account).Address
	if expectedStamp != "" {
		stored.EmailConfirmed = account.EmailConfirmed
		stored.SecurityStamp = account.SecurityStamp
	}
	stored.IsActive = account.IsActive
	stored.DeletedAt = clone(account).DeletedAt
	return nil
}

// Delete soft-deletes an active account.
func (r *AccountRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.accounts[id]
	if !ok || !stored.IsActive {
		return repository.ErrNotFound
	}

	r.interceptor.Apply(&lifecycle.Change{Op: lifecycle.OpDelete, Entity: stored})
	return nil
}

func (r *AccountRepository) find(match func(*domain.Account) bool) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, account := range r.accounts {
		if match(account) {
			return clone(account), nil
		}
	}
	return nil, repository.ErrNotFound
}

// GetByID retrieves an account in any lifecycle state.
func (r *AccountRepository) GetByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(account), nil
}

// GetByEmail retrieves an account by case-insensitive email.
func (r *AccountRepository) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	key := normalize(email)
	return r.find(func(a *domain.Account) bool { return normalize(a.Email) == key })
}

// GetByUserName retrieves an account by case-insensitive user name.
func (r *AccountRepository) GetByUserName(_ context.Context, userName string) (*domain.Account, error) {
	key := normalize(userName)
	return r.find(func(a *domain.Account) bool { return normalize(a.UserName) == key })
}

func (r *AccountRepository) existsActive(match func(*domain.Account) bool) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, account := range r.accounts {
		if account.IsActive && match(account) {
			return true
		}
	}
	return false
}

// ExistsByID reports whether an active account has the id.
func (r *AccountRepository) ExistsByID(_ context.Context, id string) (bool, error) {
	return r.existsActive(func(a *domain.Account) bool { return a.ID == id }), nil
}

// ExistsByEmail reports whether an active account uses the email.
func (r *AccountRepository) ExistsByEmail(_ context.Context, email string) (bool, error) {
	key := normalize(email)
	return r.existsActive(func(a *domain.Account) bool { return normalize(a.Email) == key }), nil
}

// ExistsByUserName reports whether an active account uses the user name.
func (r *AccountRepository) ExistsByUserName(_ context.Context, userName string) (bool, error) {
	key := normalize(userName)
	return r.existsActive(func(a *domain.Account) bool { return normalize(a.UserName) == key }), nil
}

func (r *AccountRepository) filtered(ctx context.Context, filter domain.AccountFilter) ([]domain.Account, error) {
	var members map[string]struct{}
	if filter.Role != "" {
		if r.roles == nil {
			return []domain.Account{}, nil
		}
		members = r.roles.membersOf(filter.Role)
	}

	r.mu.RLock()
	matched := make([]domain.Account, 0, len(r.accounts))
	for _, account := range r.accounts {
		if account.IsActive == filter.Inactive {
			continue
		}
		if filter.CreatedAfter != nil && !account.CreatedAt.After(*filter.CreatedAfter) {
			continue
		}
		if members != nil {
			if _, ok := members[account.ID]; !ok {
				continue
			}
		}
		matched = append(matched, *clone(account))
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	return matched, ctx.Err()
}

// List returns accounts matching the filter, newest first.
func (r *AccountRepository) List(ctx context.Context, filter domain.AccountFilter) ([]domain.Account, error) {
	matched, err := r.filtered(ctx, filter)
	if err != nil {
		return nil, err
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []domain.Account{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// Count returns the number of accounts matching the filter.
func (r *AccountRepository) Count(ctx context.Context, filter domain.AccountFilter) (int, error) {
	matched, err := r.filtered(ctx, filter)
	if err != nil {
		return 0, err
	}
	return len(matched), nil
}

// UpdateCredentials swaps the password hash and stamp only if the stamp still matches expectedStamp.
func (r *AccountRepository) UpdateCredentials(_ context.Context, id, expectedStamp, passwordHash, newStamp string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.accounts[id]
	if !ok || !stored.IsActive || stored.SecurityStamp != expectedStamp {
		return repository.ErrStaleStamp
	}

	stored.PasswordHash = passwordHash
	stored.SecurityStamp = newStamp
	return nil
}

// RotateSecurityStamp replaces the stamp.
func (r *AccountRepository) RotateSecurityStamp(_ context.Context, id, newStamp string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.accounts[id]
	if !ok || !stored.IsActive {
		return repository.ErrNotFound
	}

	stored.SecurityStamp = newStamp
	return nil
}

// MarkEmailConfirmed flags the email as confirmed if the stamp is unchanged.
func (r *AccountRepository) MarkEmailConfirmed(_ context.Context, id, expectedStamp string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.accounts[id]
	if !ok || !stored.IsActive || stored.SecurityStamp != expectedStamp {
		return repository.ErrStaleStamp
	}

	stored.EmailConfirmed = true
	return nil
}

// RecordLoginFailure increments the failure counter. Reaching the threshold opens the lockout
// window and resets the counter.
func (r *AccountRepository) RecordLoginFailure(_ context.Context, id string, policy domain.LockoutPolicy, at time.Time) (domain.LockoutState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.accounts[id]
	if !ok || !stored.IsActive {
		return domain.LockoutState{}, repository.ErrNotFound
	}

	if stored.AccessFailedCount+1 >= policy.MaxFailedAttempts {
		until := at.Add(policy.Duration)
		stored.LockoutEnd = &until
		stored.AccessFailedCount = 0
	} else {
		stored.AccessFailedCount++
	}

	state := domain.LockoutState{AccessFailedCount: stored.AccessFailedCount}
	if stored.LockoutEnd != nil {
		until := *stored.LockoutEnd
		state.LockoutEnd = &until
	}
	return state, nil
}

// RecordLoginSuccess stamps the last login and clears lockout state.
func (r *AccountRepository) RecordLoginSuccess(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.accounts[id]
	if !ok || !stored.IsActive {
		return repository.ErrNotFound
	}

	loginAt := at
	stored.LastLoginAt = &loginAt
	stored.AccessFailedCount = 0
	stored.LockoutEnd = nil
	return nil
}

var _ port.AccountRepository = (*AccountRepository)(nil)
