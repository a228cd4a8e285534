// Package lifecycle rewrites pending writes of soft-deletable entities before they are committed.
package lifecycle

import (
	"time"

	"github.com/hugopriorizen/Base/internal/core/domain"
)

// Operation is the kind of pending write.
type Operation int

const (
	OpInsert Operation = iota + 1
	OpUpdate
	OpDelete
)

func (o Operation) String() string {
	switch o {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Change is a pending write. After Apply, Op is never OpDelete.
type Change struct {
	Op     Operation
	Entity domain.HasLifecycle
}

// Interceptor stamps lifecycle fields and turns deletes into deactivating updates.
type Interceptor struct {
	now func() time.Time
}

// NewInterceptor constructs an interceptor using the wall clock in UTC.
func NewInterceptor() *Interceptor {
	return &Interceptor{now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the time source (primarily for tests).
func (i *Interceptor) WithClock(now func() time.Time) *Interceptor {
	if now != nil {
		i.now = now
	}
	return i
}

// Apply rewrites every change in place. All changes in one call share a single timestamp.
func (i *Interceptor) Apply(changes ...*Change) {
	now := i.now()
	for _, change := range changes {
		if change == nil || change.Entity == nil {
			continue
		}
		entity := change.Entity

		switch change.Op {
		case OpInsert:
			entity.SetCreatedAt(now)
			entity.SetIsActive(true)
			entity.SetDeletedAt(nil)
		case OpUpdate:
			if !entity.GetIsActive() {
				if entity.GetDeletedAt() == nil {
					stamp := now
					entity.SetDeletedAt(&stamp)
				}
			} else if entity.GetDeletedAt() != nil {
				entity.SetDeletedAt(nil)
			}
		case OpDelete:
			change.Op = OpUpdate
			entity.SetIsActive(false)
			if entity.GetDeletedAt() == nil {
				stamp := now
				entity.SetDeletedAt(&stamp)
			}
		}
	}
}

// Satisfied reports whether the entity holds the active/deleted invariant.
func Satisfied(entity domain.HasLifecycle) bool {
	return entity.GetIsActive() == (entity.GetDeletedAt() == nil)
}
