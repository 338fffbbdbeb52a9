package routing

import (
	"fmt"
	"strings"
	"time"
)

// Criticality classifies how margin-sensitive an operation's routing is.
type Criticality string

// Criticality levels, lowest to highest.
const (
	CriticalityLow    Criticality = "LOW"
	CriticalityMedium Criticality = "MEDIUM"
	CriticalityHigh   Criticality = "HIGH"
)

// rank orders criticalities for threshold comparison. Unknown values
// rank highest so misconfigured routes get flagged, not waved through.
func (c Criticality) rank() int {
	switch c {
	case CriticalityLow:
		return 0
	case CriticalityMedium:
		return 1
	case CriticalityHigh:
		return 2
	default:
		return 3
	}
}

// AtLeast reports whether c is at or above the given level.
func (c Criticality) AtLeast(level Criticality) bool {
	return c.rank() >= level.rank()
}

// ParseCriticality normalizes a configured criticality string.
func ParseCriticality(s string) (Criticality, error) {
	switch Criticality(strings.ToUpper(strings.TrimSpace(s))) {
	case CriticalityLow:
		return CriticalityLow, nil
	case CriticalityMedium:
		return CriticalityMedium, nil
	case CriticalityHigh:
		return CriticalityHigh, nil
	default:
		return "", fmt.Errorf("unknown criticality %q (valid: LOW, MEDIUM, HIGH)", s)
	}
}

// RouteConfig is the routing table row for one operation. Rows are
// seeded at startup and afterwards mutated only through an approved
// route change.
type RouteConfig struct {
	// OperationID identifies the operation type this route covers.
	OperationID string

	// PrimaryBackend is the backend tried first.
	PrimaryBackend string

	// FallbackBackends is the ordered list walked when the primary
	// does not fit the remaining budget.
	FallbackBackends []string

	// CostCriticality classifies the route for approval flagging.
	CostCriticality Criticality

	// GatingToggle is the feature toggle consulted before routing.
	// Empty means the built-in "autonomous-execution-allowed" toggle.
	GatingToggle string

	// UpdatedAt is when this row last changed.
	UpdatedAt time.Time
}

// clone returns a copy with its own fallback slice.
func (rc *RouteConfig) clone() *RouteConfig {
	copied := *rc
	copied.FallbackBackends = append([]string(nil), rc.FallbackBackends...)
	return &copied
}

// Estimate is the caller's best-effort usage forecast for one
// operation call.
type Estimate struct {
	// InputUnits and OutputUnits forecast the usage metrics (e.g.
	// token counts) the operation will incur.
	InputUnits  int64
	OutputUnits int64
}

// Decision is a binding routing decision.
type Decision struct {
	// Backend is the selected backend.
	Backend string

	// EstimatedCost is the forecast cost of the operation on the
	// selected backend.
	EstimatedCost float64

	// CacheHit is true when the decision was served from the decision
	// cache without re-reading the route table.
	CacheHit bool

	// ApprovalRequired flags routes whose estimated cost or
	// criticality crosses the configured approval threshold. The route
	// stays usable; the flag is advisory.
	ApprovalRequired bool

	// Fallback is true when the selected backend is not the primary.
	Fallback bool

	// AttemptedBackends lists backends whose estimates were rejected
	// before selection, in the order tried.
	AttemptedBackends []string
}

// Snapshot is a point-in-time view of router statistics.
type Snapshot struct {
	// TotalRequests is the total number of routing requests processed.
	TotalRequests int64

	// CacheHits is the number of requests served from the decision cache.
	CacheHits int64

	// RequestsPerBackend tracks decisions per selected backend.
	RequestsPerBackend map[string]int64

	// FallbackCount is the number of decisions that selected a
	// non-primary backend.
	FallbackCount int64

	// ApprovalFlaggedCount is the number of decisions flagged
	// approvalRequired.
	ApprovalFlaggedCount int64

	// Errors is the total number of routing errors.
	Errors int64

	// LastResetTime is when statistics were last reset.
	LastResetTime time.Time
}
