package fgbio

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb/geojson"

	"github.com/tingold/orb-geoconv/internal/geodata"
)

var errShortProperty = errors.New("property value runs past the buffer")

// columnType maps a schema type onto the FlatGeobuf column type used to
// store it.
func columnType(t geodata.ValueType) flattypes.ColumnType {
	switch t {
	case geodata.TypeInteger:
		return flattypes.ColumnTypeLong
	case geodata.TypeFloat:
		return flattypes.ColumnTypeDouble
	case geodata.TypeBoolean:
		return flattypes.ColumnTypeBool
	}
	return flattypes.ColumnTypeString
}

// valueType maps any FlatGeobuf column type onto the schema type its
// values decode to.
func valueType(t flattypes.ColumnType) geodata.ValueType {
	switch t {
	case flattypes.ColumnTypeByte, flattypes.ColumnTypeUByte,
		flattypes.ColumnTypeShort, flattypes.ColumnTypeUShort,
		flattypes.ColumnTypeInt, flattypes.ColumnTypeUInt,
		flattypes.ColumnTypeLong, flattypes.ColumnTypeULong:
		return geodata.TypeInteger
	case flattypes.ColumnTypeFloat, flattypes.ColumnTypeDouble:
		return geodata.TypeFloat
	case flattypes.ColumnTypeBool:
		return geodata.TypeBoolean
	}
	return geodata.TypeString
}

// buildColumns declares one nullable column per schema field, in schema
// order.
func buildColumns(s *geodata.Schema, builder *flatbuffers.Builder) []*writer.Column {
	fields := s.Fields()
	if len(fields) == 0 {
		return nil
	}
	columns := make([]*writer.Column, len(fields))
	for i, f := range fields {
		col := writer.NewColumn(builder)
		col.SetName(f.Name)
		col.SetTitle(f.Name)
		col.SetType(columnType(f.Type))
		col.SetNullable(true)
		columns[i] = col
	}
	return columns
}

// encodeProperties lays out the non-null attributes of props as
// [uint16 column index][value] pairs in column order.
func encodeProperties(props geojson.Properties, fields []geodata.Field) []byte {
	var buf []byte
	for i, f := range fields {
		v := props[f.Name]
		if v == nil {
			continue
		}
		buf = binary.LittleEndian.AppendUint16(buf, uint16(i))
		buf = appendValue(buf, geodata.Coerce(v, f.Type), columnType(f.Type))
	}
	return buf
}

func appendValue(buf []byte, v any, t flattypes.ColumnType) []byte {
	switch t {
	case flattypes.ColumnTypeBool:
		if b, _ := v.(bool); b {
			return append(buf, 1)
		}
		return append(buf, 0)
	case flattypes.ColumnTypeLong:
		n, _ := v.(int64)
		return binary.LittleEndian.AppendUint64(buf, uint64(n))
	case flattypes.ColumnTypeDouble:
		f, _ := v.(float64)
		return binary.LittleEndian.AppendUint64(buf, math.Float64bits(f))
	}
	s := geodata.FormatValue(v)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// column is a decoded header column.
type column struct {
	name string
	typ  flattypes.ColumnType
}

func headerColumns(h *flattypes.Header) []column {
	n := h.ColumnsLength()
	columns := make([]column, 0, n)
	for i := 0; i < n; i++ {
		var c flattypes.Column
		if h.Columns(&c, i) {
			columns = append(columns, column{name: string(c.Name()), typ: c.Type()})
		}
	}
	return columns
}

// decodeProperties reads the property buffer of one feature. Columns
// missing from the buffer are null.
func decodeProperties(data []byte, columns []column) ([]any, error) {
	values := make([]any, len(columns))
	for off := 0; off < len(data); {
		if off+2 > len(data) {
			return nil, errShortProperty
		}
		idx := int(binary.LittleEndian.Uint16(data[off:]))
		off += 2
		if idx >= len(columns) {
			return nil, fmt.Errorf("column index %d out of range", idx)
		}
		v, n, err := readValue(data[off:], columns[idx].typ)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", columns[idx].name, err)
		}
		values[idx] = v
		off += n
	}
	return values, nil
}

// readValue decodes one value and returns the number of bytes consumed.
func readValue(data []byte, t flattypes.ColumnType) (any, int, error) {
	fixed := func(size int) error {
		if len(data) < size {
			return errShortProperty
		}
		return nil
	}

	switch t {
	case flattypes.ColumnTypeBool:
		if err := fixed(1); err != nil {
			return nil, 0, err
		}
		return data[0] != 0, 1, nil
	case flattypes.ColumnTypeByte:
		if err := fixed(1); err != nil {
			return nil, 0, err
		}
		return int64(int8(data[0])), 1, nil
	case flattypes.ColumnTypeUByte:
		if err := fixed(1); err != nil {
			return nil, 0, err
		}
		return int64(data[0]), 1, nil
	case flattypes.ColumnTypeShort:
		if err := fixed(2); err != nil {
			return nil, 0, err
		}
		return int64(int16(binary.LittleEndian.Uint16(data))), 2, nil
	case flattypes.ColumnTypeUShort:
		if err := fixed(2); err != nil {
			return nil, 0, err
		}
		return int64(binary.LittleEndian.Uint16(data)), 2, nil
	case flattypes.ColumnTypeInt:
		if err := fixed(4); err != nil {
			return nil, 0, err
		}
		return int64(int32(binary.LittleEndian.Uint32(data))), 4, nil
	case flattypes.ColumnTypeUInt:
		if err := fixed(4); err != nil {
			return nil, 0, err
		}
		return int64(binary.LittleEndian.Uint32(data)), 4, nil
	case flattypes.ColumnTypeLong:
		if err := fixed(8); err != nil {
			return nil, 0, err
		}
		return int64(binary.LittleEndian.Uint64(data)), 8, nil
	case flattypes.ColumnTypeULong:
		if err := fixed(8); err != nil {
			return nil, 0, err
		}
		u := binary.LittleEndian.Uint64(data)
		if u > math.MaxInt64 {
			return float64(u), 8, nil
		}
		return int64(u), 8, nil
	case flattypes.ColumnTypeFloat:
		if err := fixed(4); err != nil {
			return nil, 0, err
		}
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(data))), 4, nil
	case flattypes.ColumnTypeDouble:
		if err := fixed(8); err != nil {
			return nil, 0, err
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(data)), 8, nil
	case flattypes.ColumnTypeString, flattypes.ColumnTypeJson,
		flattypes.ColumnTypeDateTime, flattypes.ColumnTypeBinary:
		if err := fixed(4); err != nil {
			return nil, 0, err
		}
		n := int(binary.LittleEndian.Uint32(data))
		if len(data) < 4+n {
			return nil, 0, errShortProperty
		}
		raw := data[4 : 4+n]
		if t == flattypes.ColumnTypeBinary {
			return hex.EncodeToString(raw), 4 + n, nil
		}
		return string(raw), 4 + n, nil
	}
	return nil, 0, fmt.Errorf("unsupported column type %d", t)
}
