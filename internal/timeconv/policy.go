package timeconv

import (
	"fmt"
	"strings"
)

// GapPolicy decides how a wall-clock value inside a DST "spring forward" gap
// is resolved.
type GapPolicy string

const (
	// GapShiftForward moves the value forward by the length of the gap.
	GapShiftForward GapPolicy = "shift_forward"
	// GapReject fails with ErrNonexistentLocalTime.
	GapReject GapPolicy = "reject"
)

// OverlapPolicy decides which instant is used for a wall-clock value that
// occurs twice on a DST "fall back" day.
type OverlapPolicy string

const (
	// OverlapEarlier picks the first occurrence (the pre-transition offset).
	OverlapEarlier OverlapPolicy = "earlier"
	// OverlapLater picks the second occurrence.
	OverlapLater OverlapPolicy = "later"
)

// Policy bundles the DST resolution choices applied by LocalToUTC.
type Policy struct {
	Gap     GapPolicy
	Overlap OverlapPolicy
}

// DefaultPolicy shifts gap values forward and picks the earlier overlap instant.
func DefaultPolicy() Policy {
	return Policy{Gap: GapShiftForward, Overlap: OverlapEarlier}
}

// ParsePolicy builds a Policy from configuration strings. Empty values fall
// back to DefaultPolicy.
func ParsePolicy(gap, overlap string) (Policy, error) {
	policy := DefaultPolicy()

	switch GapPolicy(strings.ToLower(strings.TrimSpace(gap))) {
	case "":
	case GapShiftForward:
		policy.Gap = GapShiftForward
	case GapReject:
		policy.Gap = GapReject
	default:
		return Policy{}, fmt.Errorf("%w: unknown gap policy %q", ErrInvalidInput, gap)
	}

	switch OverlapPolicy(strings.ToLower(strings.TrimSpace(overlap))) {
	case "":
	case OverlapEarlier:
		policy.Overlap = OverlapEarlier
	case OverlapLater:
		policy.Overlap = OverlapLater
	default:
		return Policy{}, fmt.Errorf("%w: unknown overlap policy %q", ErrInvalidInput, overlap)
	}

	return policy, nil
}
