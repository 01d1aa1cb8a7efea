// Package merge combines several feature collections into one, reconciling
// their coordinate reference systems and attribute schemas.
package merge

import (
	"github.com/tingold/orb-geoconv/internal/crs"
	"github.com/tingold/orb-geoconv/internal/geodata"
	"github.com/tingold/orb-geoconv/internal/schema"
)

// Input is one collection taking part in a merge. Err records a failed
// read; a merge never drops such an input silently.
type Input struct {
	Name       string
	Collection *geodata.FeatureCollection
	Err        error
}

// Options configures Merge.
type Options struct {
	// TargetCRS overrides the CRS of the first input as merge target.
	TargetCRS geodata.CRS
	// DropDuplicates removes features equal in geometry and attributes to
	// an earlier feature.
	DropDuplicates bool
	// Name of the merged collection; defaults to the first input's name.
	Name string
}

// Merge concatenates the inputs in order into one collection expressed in
// a single CRS and carrying the unified schema. Mixed geometry types are
// kept; writers that cannot represent them reject the result.
func Merge(inputs []Input, opts Options) (*geodata.FeatureCollection, geodata.Warnings, error) {
	if len(inputs) == 0 {
		return nil, nil, geodata.NewError(geodata.ErrEmptyInputSet, geodata.FormatUnknown, "nothing to merge")
	}

	for i, in := range inputs {
		switch {
		case in.Err != nil:
			return nil, nil, geodata.Annotate(in.Err, geodata.StageParseFailed, i, in.Name, geodata.FormatUnknown)
		case in.Collection == nil:
			e := geodata.Malformed(geodata.FormatUnknown, "input produced no collection")
			return nil, nil, geodata.Annotate(e, geodata.StageParseFailed, i, in.Name, geodata.FormatUnknown)
		}
	}

	systems := make([]geodata.CRS, len(inputs))
	schemas := make([]*geodata.Schema, len(inputs))
	total := 0
	for i, in := range inputs {
		systems[i] = in.Collection.CRS
		schemas[i] = in.Collection.Schema
		total += in.Collection.Len()
	}

	plan, err := crs.Reconcile(systems, opts.TargetCRS)
	if err != nil {
		e := geodata.Annotate(err, geodata.StageMergeFailed, -1, "", geodata.FormatUnknown)
		if e.Input >= 0 && e.Name == "" {
			e.Name = inputs[e.Input].Name
		}
		return nil, nil, e
	}
	warnings := append(geodata.Warnings{}, plan.Warnings...)

	unified, widened := schema.Unify(schemas)
	warnings = append(warnings, widened...)

	name := opts.Name
	if name == "" {
		name = inputs[0].Collection.Name
	}
	if name == "" {
		name = inputs[0].Name
	}

	out := &geodata.FeatureCollection{
		Name:     name,
		CRS:      plan.Target,
		Schema:   unified,
		Features: make([]*geodata.Feature, 0, total),
	}
	for i, in := range inputs {
		features := schema.Apply(in.Collection.Features, unified)
		if proj := plan.Projections[i]; proj != nil {
			for _, f := range features {
				f.Geometry = crs.Reproject(f.Geometry, proj)
			}
		}
		out.Features = append(out.Features, features...)
	}

	if opts.DropDuplicates {
		if dropped := dedupe(out); dropped > 0 {
			warnings = append(warnings, geodata.Warn(geodata.WarnDuplicatesDropped,
				"%d duplicate features dropped", dropped))
		}
	}
	return out, warnings, nil
}

// dedupe keeps the first feature of every group with an equal fingerprint
// and returns how many were removed.
func dedupe(fc *geodata.FeatureCollection) int {
	names := fc.Schema.Names()
	seen := make(map[geodata.Fingerprint]struct{}, len(fc.Features))
	kept := fc.Features[:0]
	for _, f := range fc.Features {
		fp := geodata.FeatureFingerprint(f, names)
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}
		kept = append(kept, f)
	}
	dropped := len(fc.Features) - len(kept)
	fc.Features = kept
	return dropped
}
