package requisition

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// newNumber builds a human-readable requisition number of the form
// REQ-<year><month>-<4-digit-random>. No existence check or collision retry
// is performed before persisting; concurrent same-month creations can draw
// the same suffix.
func newNumber(now time.Time, randInt func(n int) int) string {
	if randInt == nil {
		randInt = rand.IntN
	}
	return fmt.Sprintf("REQ-%s-%04d", now.Format("200601"), randInt(10000))
}
