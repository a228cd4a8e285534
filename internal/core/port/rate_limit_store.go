package port

import (
	"context"
	"time"
)

// RateLimitStore keeps a timestamped log of attempts per key. A window ends at now and spans
// the preceding duration.
type RateLimitStore interface {
	// TrimWindow drops attempts that fell out of the window.
	TrimWindow(ctx context.Context, key string, window time.Duration, now time.Time) error
	CountAttempts(ctx context.Context, key string, window time.Duration, now time.Time) (int, error)
	RecordAttempt(ctx context.Context, key string, at time.Time) error
	// OldestAttempt reports false when the window is empty.
	OldestAttempt(ctx context.Context, key string, window time.Duration, now time.Time) (time.Time, bool, error)
}
