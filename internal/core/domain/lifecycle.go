package domain

import "time"

// HasLifecycle is implemented by persisted entities that are soft-deleted instead of removed.
type HasLifecycle interface {
	GetCreatedAt() time.Time
	SetCreatedAt(time.Time)
	GetDeletedAt() *time.Time
	SetDeletedAt(*time.Time)
	GetIsActive() bool
	SetIsActive(bool)
}
