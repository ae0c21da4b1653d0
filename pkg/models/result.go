package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ResultRow is one extracted record: ordered column names with nullable text values.
// A nil value is a NULL field.
type ResultRow struct {
	Columns []string
	Values  []*string
}

// NewResultRow creates an empty row with the given columns, every value NULL
func NewResultRow(columns ...string) *ResultRow {
	return &ResultRow{
		Columns: append([]string(nil), columns...),
		Values:  make([]*string, len(columns)),
	}
}

// Set stores value under column, appending the column if it is new
func (r *ResultRow) Set(column, value string) {
	v := value
	if i := r.index(column); i >= 0 {
		r.Values[i] = &v
		return
	}
	r.Columns = append(r.Columns, column)
	r.Values = append(r.Values, &v)
}

// SetNull marks column as NULL, appending the column if it is new
func (r *ResultRow) SetNull(column string) {
	if i := r.index(column); i >= 0 {
		r.Values[i] = nil
		return
	}
	r.Columns = append(r.Columns, column)
	r.Values = append(r.Values, nil)
}

// Get returns the value of column and whether it is present and non-NULL
func (r *ResultRow) Get(column string) (string, bool) {
	i := r.index(column)
	if i < 0 || r.Values[i] == nil {
		return "", false
	}
	return *r.Values[i], true
}

// NullColumns returns the names of NULL columns in column order.
// Blank strings count as NULL.
func (r *ResultRow) NullColumns() []string {
	var nulls []string
	for i, col := range r.Columns {
		if r.Values[i] == nil || strings.TrimSpace(*r.Values[i]) == "" {
			nulls = append(nulls, col)
		}
	}
	return nulls
}

// Len returns the number of columns
func (r *ResultRow) Len() int { return len(r.Columns) }

func (r *ResultRow) index(column string) int {
	for i, col := range r.Columns {
		if strings.EqualFold(col, column) {
			return i
		}
	}
	return -1
}

// ToEntity returns the row as an ordered entity for document export
func (r *ResultRow) ToEntity() Entity {
	e := make(Entity, len(r.Columns))
	for i, col := range r.Columns {
		e[i] = EntityField{Name: col, Value: r.Values[i]}
	}
	return e
}

// EntityField is a single named, nullable text field
type EntityField struct {
	Name  string
	Value *string
}

// Entity is an ordered list of fields that marshals as a JSON object,
// keeping column order and writing NULL fields as null.
type Entity []EntityField

// MarshalJSON implements json.Marshaler
func (e Entity) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range e {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if f.Value == nil {
			buf.WriteString("null")
			continue
		}
		val, err := json.Marshal(*f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
