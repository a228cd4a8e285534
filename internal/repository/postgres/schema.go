package postgres

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the iam tables and indexes when they are missing.
func EnsureSchema(ctx context.Context, exec pgExecutor) error {
	if _, err := exec.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure iam schema: %w", err)
	}
	return nil
}
