package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/hugopriorizen/Base/internal/core/domain"
	"github.com/hugopriorizen/Base/internal/infra/security"
	"github.com/hugopriorizen/Base/internal/repository/lifecycle"
	"github.com/hugopriorizen/Base/internal/repository/memory"
)

const fakeHashPrefix = "fake$"

type fakeHasher struct{}

func (fakeHasher) Hash(password string) (string, error) {
	return fakeHashPrefix + password, nil
}

func (fakeHasher) Verify(password, encoded string) (bool, error) {
	if !strings.HasPrefix(encoded, fakeHashPrefix) {
		return false, errors.New("unexpected hash format")
	}
	return encoded == fakeHashPrefix+password, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu                     sync.Mutex
	registered             []domain.AccountRegisteredEvent
	deactivated            []domain.AccountDeactivatedEvent
	passwordChanged        []domain.PasswordChangedEvent
	resetRequested         []domain.PasswordResetRequestedEvent
	confirmationsRequested []domain.EmailConfirmationRequestedEvent
	err                    error
}

func (p *recordingPublisher) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registered = append(p.registered, event)
	return p.err
}

func (p *recordingPublisher) PublishAccountDeactivated(_ context.Context, event domain.AccountDeactivatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deactivated = append(p.deactivated, event)
	return p.err
}

func (p *recordingPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.passwordChanged = append(p.passwordChanged, event)
	return p.err
}

func (p *recordingPublisher) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetRequested = append(p.resetRequested, event)
	return p.err
}

func (p *recordingPublisher) PublishEmailConfirmationRequested(_ context.Context, event domain.EmailConfirmationRequestedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirmationsRequested = append(p.confirmationsRequested, event)
	return p.err
}

type recordingMetrics struct {
	observations []string
}

func (m *recordingMetrics) Observe(operation, outcome string) {
	m.observations = append(m.observations, operation+":"+outcome)
}

type harness struct {
	svc         *IdentityService
	credentials *CredentialService
	accounts    *memory.AccountRepository
	roles       *memory.RoleRepository
	events      *recordingPublisher
	metrics     *recordingMetrics
	clock       *testClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithConfig(t, DefaultIdentityConfig())
}

func newHarnessWithConfig(t *testing.T, cfg IdentityConfig) *harness {
	t.Helper()

	clock := newTestClock()
	roles := memory.NewRoleRepository()
	accounts := memory.NewAccountRepository(lifecycle.NewInterceptor().WithClock(clock.Now)).WithRoles(roles)

	codec, err := security.NewActionTokenCodec(security.ActionTokenConfig{
		Secret:          []byte("identity-test-secret"),
		Issuer:          "identity",
		ResetTTL:        time.Hour,
		ConfirmationTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewActionTokenCodec: %v", err)
	}

	log := zaptest.NewLogger(t)
	policy := security.NewPasswordPolicy(security.DefaultPasswordPolicyConfig())
	credentials := NewCredentialService(accounts, fakeHasher{}, policy, codec, cfg.Lockout, log)

	events := &recordingPublisher{}
	metrics := &recordingMetrics{}
	svc := NewIdentityService(accounts, roles, credentials, cfg, log).
		WithEvents(events).
		WithMetrics(metrics).
		WithClock(clock.Now)

	seeder := NewSeeder(accounts, roles, credentials, log)
	if err := seeder.Seed(context.Background(), SeedConfig{Roles: []string{domain.RoleAdmin, domain.RoleUser, domain.RoleManager}}); err != nil {
		t.Fatalf("Seed roles: %v", err)
	}

	return &harness{
		svc:         svc,
		credentials: credentials,
		accounts:    accounts,
		roles:       roles,
		events:      events,
		metrics:     metrics,
		clock:       clock,
	}
}

func (h *harness) register(t *testing.T, userName, email, password string) *domain.Account {
	t.Helper()
	account, err := h.svc.CreateUser(context.Background(), NewAccount{
		UserName:  userName,
		Email:     email,
		FirstName: "A",
		LastName:  "B",
	}, password)
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", userName, err)
	}
	return account
}

func requireKind(t *testing.T, err error, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("expected %v, got %v", kind, err)
	}
	var typed *Error
	if !errors.As(err, &typed) {
		t.Fatalf("expected *usecase.Error, got %T", err)
	}
}
