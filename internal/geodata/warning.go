package geodata

import "fmt"

// WarningKind classifies a non-fatal condition.
type WarningKind string

const (
	WarnSchemaTypeWidened     WarningKind = "SchemaTypeWidened"
	WarnCRSUnknownPassthrough WarningKind = "CRSUnknownPassthrough"
	WarnMultipleShapefiles    WarningKind = "MultipleShapefiles"
	WarnCRSAssumed            WarningKind = "CRSAssumed"
	WarnValueTruncated        WarningKind = "ValueTruncated"
	WarnFieldRenamed          WarningKind = "FieldRenamed"
	WarnDuplicatesDropped     WarningKind = "DuplicatesDropped"
	WarnCRSDropped            WarningKind = "CRSDropped"
)

// Warning is returned next to a successful result.
type Warning struct {
	Kind   WarningKind
	Input  int // -1 when the warning is not tied to one input
	Detail string
}

// Warn builds a Warning not tied to a specific input.
func Warn(kind WarningKind, format string, args ...any) Warning {
	return Warning{Kind: kind, Input: -1, Detail: fmt.Sprintf(format, args...)}
}

func (w Warning) String() string {
	if w.Input >= 0 {
		return fmt.Sprintf("%s (input #%d): %s", w.Kind, w.Input+1, w.Detail)
	}
	return fmt.Sprintf("%s: %s", w.Kind, w.Detail)
}

// Warnings is an ordered list of warnings.
type Warnings []Warning

// ForInput returns a copy of ws attributed to input i where unattributed.
func (ws Warnings) ForInput(i int) Warnings {
	out := make(Warnings, len(ws))
	for j, w := range ws {
		if w.Input < 0 {
			w.Input = i
		}
		out[j] = w
	}
	return out
}

// Has reports whether ws contains a warning of kind k.
func (ws Warnings) Has(k WarningKind) bool {
	for _, w := range ws {
		if w.Kind == k {
			return true
		}
	}
	return false
}
