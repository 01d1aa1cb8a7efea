package shpio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"

	"github.com/tingold/orb-geoconv/internal/geodata"
)

const (
	dbfHeaderSize  = 32
	dbfFieldSize   = 32
	dbfNameLen     = 10
	dbfMaxCharLen  = 254
	dbfMaxFields   = 255
	dbfMaxRecord   = 65535
	dbfTerminator  = 0x0D
	dbfEndOfFile   = 0x1A
	ldidWindows    = 0x57
	ldidWindowsAlt = 0x03
)

// dbfField is one column descriptor of a .dbf file.
type dbfField struct {
	name     string
	kind     byte
	length   int
	decimals int
}

func (f dbfField) valueType() geodata.ValueType {
	switch f.kind {
	case 'N', 'F':
		if f.decimals == 0 && f.length < 19 {
			return geodata.TypeInteger
		}
		return geodata.TypeFloat
	case 'L':
		return geodata.TypeBoolean
	}
	return geodata.TypeString
}

// codePage resolves the content of a .cpg sidecar. Unknown labels fall back
// to UTF-8.
func codePage(label string) encoding.Encoding {
	l := strings.ToUpper(strings.TrimSpace(label))
	switch l {
	case "", "UTF-8", "UTF8", "65001":
		return unicode.UTF8
	case "1252", "ANSI 1252", "CP1252", "WINDOWS-1252":
		return charmap.Windows1252
	case "88591", "8859-1", "ISO-8859-1", "ISO88591", "LATIN1":
		return charmap.ISO8859_1
	case "866", "CP866":
		return charmap.CodePage866
	case "1251", "ANSI 1251", "CP1251", "WINDOWS-1251":
		return charmap.Windows1251
	}
	if enc, err := htmlindex.Get(strings.TrimSpace(label)); err == nil {
		return enc
	}
	return unicode.UTF8
}

// textDecoder turns raw DBF bytes into UTF-8. A nil enc decodes UTF-8 and
// falls back to Windows-1252 for byte sequences that are not valid UTF-8.
type textDecoder struct {
	enc encoding.Encoding
}

func (d textDecoder) decode(b []byte) string {
	if d.enc == nil || d.enc == unicode.UTF8 {
		if utf8.Valid(b) {
			return string(b)
		}
		if d.enc == nil {
			if s, err := charmap.Windows1252.NewDecoder().Bytes(b); err == nil {
				return string(s)
			}
		}
		return strings.ToValidUTF8(string(b), "�")
	}
	s, err := d.enc.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "�")
	}
	return string(s)
}

// dbfTable is a decoded .dbf file.
type dbfTable struct {
	fields  []dbfField
	records [][]any
}

// decodeDBF parses a .dbf file. cpg is the .cpg content, empty when absent.
func decodeDBF(data []byte, cpg string) (*dbfTable, error) {
	if len(data) < dbfHeaderSize+1 {
		return nil, errors.New("file shorter than its header")
	}
	numRecords := int(binary.LittleEndian.Uint32(data[4:8]))
	headerLen := int(binary.LittleEndian.Uint16(data[8:10]))
	recordLen := int(binary.LittleEndian.Uint16(data[10:12]))
	if headerLen > len(data) || headerLen < dbfHeaderSize+1 {
		return nil, fmt.Errorf("invalid header length %d", headerLen)
	}

	dec := textDecoder{}
	switch {
	case strings.TrimSpace(cpg) != "":
		dec.enc = codePage(cpg)
	case data[29] == ldidWindows || data[29] == ldidWindowsAlt:
		dec.enc = charmap.Windows1252
	}

	var fields []dbfField
	width := 1
	for off := dbfHeaderSize; off+dbfFieldSize <= headerLen && data[off] != dbfTerminator; off += dbfFieldSize {
		d := data[off : off+dbfFieldSize]
		name := d[:11]
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}
		f := dbfField{
			name:     strings.TrimSpace(dec.decode(name)),
			kind:     d[11],
			length:   int(d[16]),
			decimals: int(d[17]),
		}
		if f.kind == 'C' {
			// dBase stores long character lengths in the decimal byte.
			f.length += int(d[17]) << 8
			f.decimals = 0
		}
		fields = append(fields, f)
		width += f.length
	}
	if recordLen < width {
		return nil, fmt.Errorf("record length %d shorter than fields (%d)", recordLen, width)
	}

	t := &dbfTable{fields: fields, records: make([][]any, 0, numRecords)}
	for i := 0; i < numRecords; i++ {
		start := headerLen + i*recordLen
		if start+recordLen > len(data) {
			return nil, fmt.Errorf("record %d: truncated", i+1)
		}
		rec := data[start+1 : start+recordLen]
		values := make([]any, len(fields))
		pos := 0
		for j, f := range fields {
			v, err := decodeCell(rec[pos:pos+f.length], f, dec)
			if err != nil {
				return nil, fmt.Errorf("record %d field %s: %w", i+1, f.name, err)
			}
			values[j] = v
			pos += f.length
		}
		t.records = append(t.records, values)
	}
	return t, nil
}

func decodeCell(raw []byte, f dbfField, dec textDecoder) (any, error) {
	switch f.kind {
	case 'N', 'F':
		s := strings.TrimSpace(string(bytes.TrimRight(raw, "\x00")))
		if s == "" || strings.Trim(s, "*") == "" {
			return nil, nil
		}
		if f.valueType() == geodata.TypeInteger {
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				return i, nil
			}
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", s)
		}
		if f.valueType() == geodata.TypeInteger {
			return int64(v), nil
		}
		return v, nil
	case 'L':
		switch strings.TrimSpace(string(raw)) {
		case "T", "t", "Y", "y":
			return true, nil
		case "F", "f", "N", "n":
			return false, nil
		}
		return nil, nil
	case 'D':
		s := strings.TrimSpace(string(raw))
		if s == "" || strings.Trim(s, "0") == "" {
			return nil, nil
		}
		if len(s) == 8 {
			return s[0:4] + "-" + s[4:6] + "-" + s[6:8], nil
		}
		return s, nil
	}
	s := dec.decode(bytes.TrimRight(raw, " \x00"))
	if s == "" {
		return nil, nil
	}
	return s, nil
}

// dbfWriter lays out a .dbf file for a schema.
type dbfWriter struct {
	fields   []dbfField
	names    []string // schema names, parallel to fields
	warnings geodata.Warnings
}

// newDBFWriter sizes the columns from the values they will hold. Names are
// shortened to the dBase limit and made unique.
func newDBFWriter(fc *geodata.FeatureCollection) *dbfWriter {
	w := &dbfWriter{}
	used := make(map[string]bool)
	for _, field := range fc.Schema.Fields() {
		name := uniqueName(field.Name, used)
		if name != field.Name {
			w.warnings = append(w.warnings, geodata.Warn(geodata.WarnFieldRenamed,
				"attribute %q written as DBF field %q", field.Name, name))
		}

		f := dbfField{name: name}
		switch field.Type {
		case geodata.TypeInteger:
			f.kind, f.length = 'N', 1
			for _, feat := range fc.Features {
				if v, ok := feat.Properties[field.Name].(int64); ok {
					f.length = max(f.length, len(strconv.FormatInt(v, 10)))
				}
			}
		case geodata.TypeFloat:
			f.kind, f.length, f.decimals = 'N', 3, 1
			for _, feat := range fc.Features {
				if v, ok := feat.Properties[field.Name].(float64); ok {
					s := formatDBFFloat(v)
					f.length = max(f.length, len(s))
					if dot := strings.IndexByte(s, '.'); dot >= 0 && !strings.ContainsAny(s, "eE") {
						f.decimals = max(f.decimals, len(s)-dot-1)
					}
				}
			}
			f.decimals = min(f.decimals, 15)
			f.length = min(max(f.length, f.decimals+2), dbfMaxCharLen)
		case geodata.TypeBoolean:
			f.kind, f.length = 'L', 1
		default:
			f.kind, f.length = 'C', 1
			truncated := 0
			for _, feat := range fc.Features {
				if v, ok := feat.Properties[field.Name]; ok && v != nil {
					n := len(geodata.FormatValue(v))
					if n > dbfMaxCharLen {
						truncated++
					}
					f.length = max(f.length, min(n, dbfMaxCharLen))
				}
			}
			if truncated > 0 {
				w.warnings = append(w.warnings, geodata.Warn(geodata.WarnValueTruncated,
					"%d values of %q truncated to %d bytes", truncated, field.Name, dbfMaxCharLen))
			}
		}
		w.fields = append(w.fields, f)
		w.names = append(w.names, field.Name)
	}
	return w
}

// uniqueName shortens name to the DBF limit on a rune boundary and
// appends a counter while it collides with an earlier name.
func uniqueName(name string, used map[string]bool) string {
	if name == "" {
		name = "FIELD"
	}
	base := truncateBytes(name, dbfNameLen)
	candidate := base
	for i := 1; used[strings.ToUpper(candidate)]; i++ {
		suffix := "_" + strconv.Itoa(i)
		candidate = truncateBytes(base, dbfNameLen-len(suffix)) + suffix
	}
	used[strings.ToUpper(candidate)] = true
	return candidate
}

// truncateBytes cuts s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func formatDBFFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if len(s) > 24 {
		s = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return s
}

func (w *dbfWriter) recordLen() int {
	n := 1
	for _, f := range w.fields {
		n += f.length
	}
	return n
}

// encode returns the .dbf file for features in order. Tables wider than
// the dBase header can describe are rejected.
func (w *dbfWriter) encode(features []*geodata.Feature) ([]byte, error) {
	if len(w.fields) > dbfMaxFields {
		return nil, geodata.Malformed(geodata.FormatShapefile,
			"%d attributes exceed the DBF limit of %d fields", len(w.fields), dbfMaxFields)
	}
	headerLen := dbfHeaderSize + dbfFieldSize*len(w.fields) + 1
	recordLen := w.recordLen()
	if recordLen > dbfMaxRecord {
		return nil, geodata.Malformed(geodata.FormatShapefile,
			"record length %d exceeds the DBF limit of %d bytes", recordLen, dbfMaxRecord)
	}
	buf := make([]byte, headerLen, headerLen+recordLen*len(features)+1)

	buf[0] = 0x03
	buf[1], buf[2], buf[3] = 80, 1, 1 // fixed 1980-01-01 update date
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(features)))
	binary.LittleEndian.PutUint16(buf[8:10], uint16(headerLen))
	binary.LittleEndian.PutUint16(buf[10:12], uint16(recordLen))

	for i, f := range w.fields {
		d := buf[dbfHeaderSize+i*dbfFieldSize:]
		copy(d[:dbfNameLen], f.name)
		d[11] = f.kind
		d[16] = byte(f.length)
		d[17] = byte(f.decimals)
	}
	buf[headerLen-1] = dbfTerminator

	rec := make([]byte, recordLen)
	for _, feat := range features {
		rec[0] = ' '
		pos := 1
		for i, f := range w.fields {
			cell := rec[pos : pos+f.length]
			encodeCell(cell, f, feat.Properties[w.names[i]])
			pos += f.length
		}
		buf = append(buf, rec...)
	}
	return append(buf, dbfEndOfFile), nil
}

func encodeCell(cell []byte, f dbfField, v any) {
	for i := range cell {
		cell[i] = ' '
	}
	if v == nil {
		if f.kind == 'L' {
			cell[0] = '?'
		}
		return
	}

	switch f.kind {
	case 'N':
		var s string
		switch n := v.(type) {
		case int64:
			s = strconv.FormatInt(n, 10)
		case float64:
			s = formatDBFFloat(n)
		default:
			s = geodata.FormatValue(v)
		}
		if len(s) > len(cell) {
			return
		}
		copy(cell[len(cell)-len(s):], s)
	case 'L':
		if b, ok := v.(bool); ok && b {
			cell[0] = 'T'
		} else {
			cell[0] = 'F'
		}
	default:
		copy(cell, truncateBytes(geodata.FormatValue(v), len(cell)))
	}
}
