// Package advisory provides the optional, non-authoritative snapshot
// reader. Advisors consume a read-only snapshot and return free-text
// commentary; they never mutate state and are never read by the decision
// rules. Failures and timeouts are identical: both yield unavailable.
package advisory

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/vigild/internal/snapshot"
)

// ErrUnavailable is returned for any advisory failure or timeout. The
// pipeline proceeds with the deterministic decision regardless.
var ErrUnavailable = errors.New("advisory unavailable")

// Unavailable is the text logged in the audit trail when no advisory
// commentary could be obtained.
const Unavailable = "unavailable"

// Advisor observes a snapshot and returns commentary. Implementations
// must respect ctx cancellation; callers bound the call with a timeout.
type Advisor interface {
	Observe(ctx context.Context, snap *snapshot.Snapshot) (string, error)
}

// Nop is the advisor wired when the advisory component is disabled.
type Nop struct{}

// Observe implements Advisor. Always unavailable.
func (Nop) Observe(context.Context, *snapshot.Snapshot) (string, error) {
	return "", ErrUnavailable
}
