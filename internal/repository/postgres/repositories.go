package postgres

import "github.com/hugopriorizen/Base/internal/repository/lifecycle"

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Accounts *AccountRepository
	Roles    *RoleRepository
}

// NewRepositories wires all repositories backed by the provided executor.
func NewRepositories(exec pgExecutor, interceptor *lifecycle.Interceptor) *Repositories {
	return &Repositories{
		Accounts: NewAccountRepository(exec, interceptor),
		Roles:    NewRoleRepository(exec),
	}
}
