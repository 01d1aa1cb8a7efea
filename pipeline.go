package geoconv

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/tingold/orb-geoconv/internal/adapter/fgbio"
	"github.com/tingold/orb-geoconv/internal/crs"
	"github.com/tingold/orb-geoconv/internal/geodata"
	"github.com/tingold/orb-geoconv/internal/merge"
)

// request tracks one call through the stage machine. Transitions are
// logged at debug level on the logger found in the context.
type request struct {
	id       string
	log      zerolog.Logger
	stage    Stage
	warnings Warnings
}

func newRequest(ctx context.Context, opts Options) *request {
	id := opts.RequestID
	if id == "" {
		id = uuid.NewString()
	}
	r := &request{
		id:  id,
		log: zerolog.Ctx(ctx).With().Str("request_id", id).Logger(),
	}
	r.log.Debug().Stringer("stage", geodata.StageReceived).Msg("request received")
	return r
}

func (r *request) enter(s Stage) {
	r.log.Debug().Stringer("from", r.stage).Stringer("to", s).Msg("stage transition")
	r.stage = s
}

// fail moves the request to the terminal stage s and returns err annotated
// with it.
func (r *request) fail(s Stage, err error, input int, name string, f Format) error {
	r.enter(s)
	e := geodata.Annotate(err, s, input, name, f)
	r.log.Error().Err(e).Stringer("stage", s).Msg("request failed")
	return e
}

func (r *request) warn(ws Warnings) {
	for _, w := range ws {
		r.log.Warn().Str("kind", string(w.Kind)).Int("input", w.Input).Msg(w.Detail)
	}
	r.warnings = append(r.warnings, ws...)
}

func (r *request) result(data []byte, out Format, fc *FeatureCollection) *Result {
	r.enter(geodata.StageDone)
	r.log.Debug().Int("bytes", len(data)).Int("features", fc.Len()).Stringer("format", out).Msg("request done")
	return &Result{
		Data:       data,
		Format:     out,
		Collection: fc,
		Warnings:   r.warnings,
		RequestID:  r.id,
		Stage:      r.stage,
	}
}

// Convert reads one input and writes it in format out. With
// Options.TargetCRS set the collection is reprojected first.
func Convert(ctx context.Context, in Input, out Format, opts Options) (*Result, error) {
	r := newRequest(ctx, opts)
	if _, err := lookup(out); err != nil {
		return nil, r.fail(geodata.StageParseFailed, err, -1, "", out)
	}

	r.enter(geodata.StageParsing)
	parsed, err := readAll(ctx, r, []Input{in}, opts)
	if err != nil {
		return nil, err
	}
	r.enter(geodata.StageParsed)

	fc := parsed[0].Collection
	var target CRS
	switch {
	case opts.TargetCRS.IsUnknown() || fc.CRS.Equal(opts.TargetCRS):
	case fc.CRS.IsUnknown():
		r.warn(Warnings{{Kind: geodata.WarnCRSUnknownPassthrough, Input: 0,
			Detail: "input has no CRS; coordinates are not reprojected to " + opts.TargetCRS.String()}})
	default:
		target = opts.TargetCRS
	}
	return write(r, fc, out, opts, target)
}

// MergeAndConvert reads every input concurrently, merges them in input
// order and writes the merged collection in format out.
func MergeAndConvert(ctx context.Context, ins []Input, out Format, opts Options) (*Result, error) {
	r := newRequest(ctx, opts)
	if len(ins) == 0 {
		err := geodata.NewError(ErrEmptyInputSet, geodata.FormatUnknown, "no inputs")
		return nil, r.fail(geodata.StageParseFailed, err, -1, "", geodata.FormatUnknown)
	}
	if _, err := lookup(out); err != nil {
		return nil, r.fail(geodata.StageParseFailed, err, -1, "", out)
	}

	r.enter(geodata.StageParsing)
	parsed, err := readAll(ctx, r, ins, opts)
	if err != nil {
		return nil, err
	}
	r.enter(geodata.StageParsed)

	r.enter(geodata.StageMerging)
	fc, ws, err := merge.Merge(parsed, merge.Options{
		TargetCRS:      opts.TargetCRS,
		DropDuplicates: opts.DropDuplicates,
	})
	if err != nil {
		return nil, r.fail(geodata.StageMergeFailed, err, -1, "", geodata.FormatUnknown)
	}
	r.warn(ws)
	r.enter(geodata.StageMerged)
	r.log.Debug().Int("inputs", len(ins)).Int("features", fc.Len()).Stringer("crs", fc.CRS).Msg("inputs merged")

	return write(r, fc, out, opts, CRS{})
}

// Read parses a single input into a collection.
func Read(ctx context.Context, in Input, opts Options) (*FeatureCollection, Warnings, error) {
	r := newRequest(ctx, opts)
	r.enter(geodata.StageParsing)
	parsed, err := readAll(ctx, r, []Input{in}, opts)
	if err != nil {
		return nil, nil, err
	}
	r.enter(geodata.StageParsed)
	return parsed[0].Collection, r.warnings, nil
}

// Write serializes fc in format out, reprojecting to the native CRS of the
// format when it has one.
func Write(ctx context.Context, fc *FeatureCollection, out Format, opts Options) (*Result, error) {
	r := newRequest(ctx, opts)
	if fc == nil {
		err := geodata.NewError(ErrEmptyInputSet, out, "nil collection")
		return nil, r.fail(geodata.StageSerializeFailed, err, -1, "", out)
	}
	return write(r, fc, out, opts, CRS{})
}

// write serializes fc, first reprojecting it to target when target is
// known.
func write(r *request, fc *FeatureCollection, out Format, opts Options, target CRS) (*Result, error) {
	r.enter(geodata.StageSerializing)
	c, err := lookup(out)
	if err != nil {
		return nil, r.fail(geodata.StageSerializeFailed, err, -1, "", out)
	}

	if !target.IsUnknown() {
		r.log.Debug().Stringer("from", fc.CRS).Stringer("to", target).Msg("reprojecting to target CRS")
		projected, err := crs.ReprojectCollection(fc, target)
		if err != nil {
			return nil, r.fail(geodata.StageSerializeFailed, err, -1, fc.Name, out)
		}
		fc = projected
	}

	if !c.native.IsUnknown() {
		switch {
		case fc.CRS.IsUnknown():
			r.warn(Warnings{geodata.Warn(geodata.WarnCRSAssumed,
				"collection has no CRS; coordinates are written to %s as %s", out, c.native)})
		case !fc.CRS.Equal(c.native):
			r.log.Debug().Stringer("from", fc.CRS).Stringer("to", c.native).Msg("reprojecting to native CRS")
			projected, err := crs.ReprojectCollection(fc, c.native)
			if err != nil {
				return nil, r.fail(geodata.StageSerializeFailed, err, -1, fc.Name, out)
			}
			fc = projected
		}
	}

	data, ws, err := c.adapter.Write(fc, opts.Write)
	if err != nil {
		return nil, r.fail(geodata.StageSerializeFailed, err, -1, fc.Name, out)
	}
	r.warn(ws)
	return r.result(data, out, fc), nil
}

type readResult struct {
	fc       *FeatureCollection
	format   Format
	warnings Warnings
	err      error
}

// readAll parses ins concurrently, at most opts.Workers at a time, and
// returns the collections in input order. When several inputs fail the
// error of the lowest index is returned. A cancelled context stops inputs
// that have not started yet.
func readAll(ctx context.Context, r *request, ins []Input, opts Options) ([]merge.Input, error) {
	results := make([]readResult, len(ins))
	sem := make(chan struct{}, opts.workers(len(ins)))

	var wg sync.WaitGroup
	for i, in := range ins {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i].err = ctx.Err()
				return
			}
			if err := ctx.Err(); err != nil {
				results[i].err = err
				return
			}
			results[i] = readOne(in, opts)
			r.log.Debug().Int("input", i).Str("name", in.Name).Stringer("format", results[i].format).
				Bool("ok", results[i].err == nil).Msg("input read")
		}()
	}
	wg.Wait()

	parsed := make([]merge.Input, len(ins))
	for i, res := range results {
		if res.err != nil {
			return nil, r.fail(geodata.StageParseFailed, res.err, i, ins[i].Name, res.format)
		}
		parsed[i] = merge.Input{Name: ins[i].Name, Collection: res.fc}
	}
	for i, res := range results {
		r.warn(res.warnings.ForInput(i))
	}
	return parsed, nil
}

func readOne(in Input, opts Options) readResult {
	f, err := resolveFormat(in)
	if err != nil {
		return readResult{err: err}
	}
	c, err := lookup(f)
	if err != nil {
		return readResult{format: f, err: err}
	}

	ro := opts.Read
	ro.Name = in.Name

	if opts.Bound != nil && f == FlatGeobuf {
		fc, err := fgbio.Search(in.Data, *opts.Bound, ro)
		if err == nil {
			return readResult{fc: fc, format: f}
		}
		if !errors.Is(err, fgbio.ErrNoIndex) {
			return readResult{format: f, err: err}
		}
	}

	fc, ws, err := c.adapter.Read(in.Data, ro)
	if err != nil {
		return readResult{format: f, err: err}
	}
	if opts.Bound != nil {
		filter(fc, *opts.Bound)
	}
	return readResult{fc: fc, format: f, warnings: ws}
}

// filter keeps the features whose bounding box intersects b.
func filter(fc *FeatureCollection, b orb.Bound) {
	kept := fc.Features[:0]
	for _, f := range fc.Features {
		if f.Geometry != nil && f.Geometry.Bound().Intersects(b) {
			kept = append(kept, f)
		}
	}
	clear(fc.Features[len(kept):])
	fc.Features = kept
}
