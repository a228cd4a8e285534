package port

import (
	"context"
	"time"

	"github.com/hugopriorizen/Base/internal/core/domain"
)

// AccountRepository exposes persistence behavior for accounts. Lookups by user name and email are
// case-insensitive. Listing, counting and Exists* only consider active accounts unless the filter
// asks for inactive ones.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	// Update writes profile and lifecycle columns. The security stamp and email confirmation flag
	// are written only when expectedStamp is non-empty, and only while the stored stamp still
	// equals it; otherwise it fails with repository.ErrStaleStamp.
	Update(ctx context.Context, account *domain.Account, expectedStamp string) error
	Delete(ctx context.Context, id string) error

	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetByUserName(ctx context.Context, userName string) (*domain.Account, error)

	ExistsByID(ctx context.Context, id string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByUserName(ctx context.Context, userName string) (bool, error)

	List(ctx context.Context, filter domain.AccountFilter) ([]domain.Account, error)
	Count(ctx context.Context, filter domain.AccountFilter) (int, error)

	UpdateCredentials(ctx context.Context, id, expectedStamp, passwordHash, newStamp string) error
	RotateSecurityStamp(ctx context.Context, id, newStamp string) error
	MarkEmailConfirmed(ctx context.Context, id, expectedStamp string) error
	RecordLoginFailure(ctx context.Context, id string, policy domain.LockoutPolicy, at time.Time) (domain.LockoutState, error)
	RecordLoginSuccess(ctx context.Context, id string, at time.Time) error
}
