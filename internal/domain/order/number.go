package order

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// NewNumber generates a human-readable order number: a second-resolution
// timestamp prefix plus a 6-digit random suffix, e.g. ORD-20260901153012-483920.
// The timestamp keeps numbers roughly sortable and easy to eyeball in support
// tooling; the suffix guards against same-second collisions. Global uniqueness
// is ultimately enforced by the store's unique constraint.
func NewNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%06d", now.Format("20060102150405"), rand.IntN(1_000_000))
}
