package crs

import (
	"github.com/paulmach/orb"

	"github.com/tingold/orb-geoconv/internal/geodata"
)

// Plan is the outcome of reconciling the CRS of several collections.
type Plan struct {
	Target      geodata.CRS
	Projections []orb.Projection // one per input, nil when no reprojection is needed
	Warnings    geodata.Warnings
}

// Reconcile picks the target CRS for merging collections whose CRS are
// given in input order, and the projection bringing each of them to it.
//
// When every CRS is unknown the target is unknown and coordinates pass
// through untouched. A mix of known and unknown CRS is an error. Otherwise
// the target is override when set, else the first CRS.
func Reconcile(systems []geodata.CRS, override geodata.CRS) (*Plan, error) {
	plan := &Plan{Projections: make([]orb.Projection, len(systems))}
	if len(systems) == 0 {
		plan.Target = override
		return plan, nil
	}

	firstKnown, firstUnknown := -1, -1
	for i, c := range systems {
		if c.IsUnknown() {
			if firstUnknown < 0 {
				firstUnknown = i
			}
		} else if firstKnown < 0 {
			firstKnown = i
		}
	}

	switch {
	case firstKnown < 0:
		plan.Warnings = append(plan.Warnings, geodata.Warn(geodata.WarnCRSUnknownPassthrough,
			"no input declares a CRS; coordinates are merged without reprojection"))
		return plan, nil
	case firstUnknown >= 0:
		e := geodata.NewError(geodata.ErrCRSMismatch, geodata.FormatUnknown,
			"input has no CRS while input #%d is %s", firstKnown+1, systems[firstKnown])
		e.Input = firstUnknown
		return nil, e
	}

	plan.Target = systems[0]
	if !override.IsUnknown() {
		plan.Target = override
	}
	for i, c := range systems {
		proj, err := Transformer(c, plan.Target)
		if err != nil {
			e := geodata.Annotate(err, geodata.StageReceived, i, "", geodata.FormatUnknown)
			return nil, e
		}
		plan.Projections[i] = proj
	}
	return plan, nil
}
