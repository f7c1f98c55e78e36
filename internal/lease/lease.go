// Package lease provides short-lived exclusive leases keyed by string.
package lease

import (
	"context"
	"errors"
	"strconv"
	"time"
)

var ErrHeld = errors.New("lease is held by another holder")

// Locker hands out exclusive leases. The returned release func is safe to call
// more than once and never releases a lease that has since been taken over.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// GradeKey is the lease key guarding one grade's feedback area.
func GradeKey(gradeID uint) string {
	return "feedback:sync:" + strconv.FormatUint(uint64(gradeID), 10)
}
