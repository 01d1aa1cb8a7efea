package geodata

import "strings"

// ValueType is the declared type of an attribute column.
type ValueType int

const (
	// TypeNull marks a column in which no non-null value was observed.
	// Writers treat it as a string column.
	TypeNull ValueType = iota
	TypeString
	TypeInteger
	TypeFloat
	TypeBoolean
)

func (t ValueType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeBoolean:
		return "boolean"
	}
	return "null"
}

// Field is one attribute column.
type Field struct {
	Name string
	Type ValueType
}

// Schema is an ordered set of attribute columns. The zero value is an
// empty schema ready to use.
type Schema struct {
	fields []Field
	index  map[string]int
}

// NewSchema returns a schema holding fields in order.
func NewSchema(fields ...Field) *Schema {
	s := &Schema{}
	for _, f := range fields {
		s.Add(f.Name, f.Type)
	}
	return s
}

// Len returns the number of columns.
func (s *Schema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.fields)
}

// Fields returns a copy of the columns in order.
func (s *Schema) Fields() []Field {
	if s == nil {
		return nil
	}
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Names returns the column names in order.
func (s *Schema) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Lookup returns the column called name.
func (s *Schema) Lookup(name string) (Field, bool) {
	if s == nil || s.index == nil {
		return Field{}, false
	}
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Add appends a column, or promotes the type of an existing one.
// It returns the resulting column type.
func (s *Schema) Add(name string, t ValueType) ValueType {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if i, ok := s.index[name]; ok {
		s.fields[i].Type = Promote(s.fields[i].Type, t)
		return s.fields[i].Type
	}
	s.index[name] = len(s.fields)
	s.fields = append(s.fields, Field{Name: name, Type: t})
	return t
}

// SetType overrides the type of an existing column.
func (s *Schema) SetType(name string, t ValueType) {
	if i, ok := s.index[name]; ok {
		s.fields[i].Type = t
	}
}

// Clone returns a deep copy of s.
func (s *Schema) Clone() *Schema {
	return NewSchema(s.Fields()...)
}

// Equal reports whether s and o have the same columns in the same order.
func (s *Schema) Equal(o *Schema) bool {
	if s.Len() != o.Len() {
		return false
	}
	for i := range s.fields {
		if s.fields[i] != o.fields[i] {
			return false
		}
	}
	return true
}

func (s *Schema) String() string {
	parts := make([]string, 0, s.Len())
	for _, f := range s.Fields() {
		parts = append(parts, f.Name+":"+f.Type.String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
