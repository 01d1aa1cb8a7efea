package geodata

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by the engine matches one of these
// with errors.Is.
var (
	ErrUnsupportedFormat         = errors.New("geoconv: unsupported format")
	ErrNoShapefileFound          = errors.New("geoconv: no shapefile found in archive")
	ErrMissingGeometryColumn     = errors.New("geoconv: missing geometry column")
	ErrMalformedInput            = errors.New("geoconv: malformed input")
	ErrCRSMismatch               = errors.New("geoconv: crs mismatch")
	ErrIncompatibleGeometryTypes = errors.New("geoconv: incompatible geometry types")
	ErrEmptyInputSet             = errors.New("geoconv: empty input set")
)

// Stage is a step of the conversion state machine.
type Stage int

const (
	StageReceived Stage = iota
	StageParsing
	StageParseFailed
	StageParsed
	StageMerging
	StageMergeFailed
	StageMerged
	StageSerializing
	StageSerializeFailed
	StageDone
)

var stageNames = [...]string{
	StageReceived:        "received",
	StageParsing:         "parsing",
	StageParseFailed:     "parse_failed",
	StageParsed:          "parsed",
	StageMerging:         "merging",
	StageMergeFailed:     "merge_failed",
	StageMerged:          "merged",
	StageSerializing:     "serializing",
	StageSerializeFailed: "serialize_failed",
	StageDone:            "done",
}

func (s Stage) String() string {
	if int(s) >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Terminal reports whether no transition leaves s.
func (s Stage) Terminal() bool {
	switch s {
	case StageParseFailed, StageMergeFailed, StageSerializeFailed, StageDone:
		return true
	}
	return false
}

// Error describes a failed request. Kind is one of the Err* sentinels and
// Err an optional underlying cause.
type Error struct {
	Kind   error
	Stage  Stage
	Input  int // index of the offending input, -1 when not tied to one
	Name   string
	Format Format
	Detail string
	Err    error
}

// NewError returns an Error of the given kind for format f.
func NewError(kind error, f Format, format string, args ...any) *Error {
	return &Error{Kind: kind, Input: -1, Format: f, Detail: fmt.Sprintf(format, args...)}
}

// Malformed returns an ErrMalformedInput error for format f.
func Malformed(f Format, format string, args ...any) *Error {
	return NewError(ErrMalformedInput, f, format, args...)
}

// Wrap attaches cause to e and returns e.
func (e *Error) Wrap(cause error) *Error {
	e.Err = cause
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	} else {
		b.WriteString("geoconv: error")
	}
	if e.Format != FormatUnknown {
		fmt.Fprintf(&b, " (%s)", e.Format)
	}
	if e.Input >= 0 {
		fmt.Fprintf(&b, " input #%d", e.Input+1)
	}
	if e.Name != "" {
		fmt.Fprintf(&b, " %q", e.Name)
	}
	if e.Stage != StageReceived {
		fmt.Fprintf(&b, " while %s", e.Stage)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Annotate returns err as an *Error carrying the given stage and input
// position. Fields already set on err are kept. A foreign error is wrapped.
func Annotate(err error, stage Stage, input int, name string, f Format) *Error {
	if err == nil {
		return nil
	}
	var src *Error
	var out Error
	if errors.As(err, &src) {
		out = *src
	} else {
		out = Error{Input: -1, Err: err}
	}
	if out.Stage == StageReceived {
		out.Stage = stage
	}
	if out.Input < 0 {
		out.Input = input
	}
	if out.Name == "" {
		out.Name = name
	}
	if out.Format == FormatUnknown {
		out.Format = f
	}
	return &out
}
