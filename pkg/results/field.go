// Package results holds the result-set model shared by the streaming engine,
// the display surface and the exporters: fields, positional rows, batches,
// the accumulated FullResults of a session and the push messages.
package results

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Field describes one result column. Key is the column position rendered as a
// string; rows are keyed by it because two columns may share a Name
// (self-joins, SELECT a.x, b.x).
type Field struct {
	Name        string `json:"name"`
	TypeOID     uint32 `json:"typeOid"`
	Format      string `json:"format"`
	DisplayType string `json:"displayType"`
	Key         string `json:"positionalKey"`
}

// PositionalKey returns the key used for the column at index i.
func PositionalKey(i int) string {
	return strconv.Itoa(i)
}

// Cell is one (key, value) pair of a Row.
type Cell struct {
	Key   string
	Value any
}

// Row is an ordered sequence of cells, one per Field of the owning result set.
type Row []Cell

// NewRow builds a Row from positional values.
func NewRow(values []any) Row {
	row := make(Row, len(values))
	for i, v := range values {
		row[i] = Cell{Key: PositionalKey(i), Value: NormalizeValue(v)}
	}
	return row
}

// NormalizeValue gives decoded values that have no text form of their own the
// one PostgreSQL prints. pgx decodes uuid to [16]byte.
func NormalizeValue(v any) any {
	switch t := v.(type) {
	case [16]byte:
		return uuid.UUID(t).String()
	case pgtype.UUID:
		if !t.Valid {
			return nil
		}
		return uuid.UUID(t.Bytes).String()
	}
	return v
}

// Get returns the value stored under key. ok is false when the row has no
// cell for that key, which is different from a cell holding a nil value.
func (r Row) Get(key string) (value any, ok bool) {
	for _, c := range r {
		if c.Key == key {
			return c.Value, true
		}
	}
	return nil, false
}

// MarshalJSON encodes the row as an object whose keys keep the column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(c.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// SameShape reports whether two field lists have the same count and order.
func SameShape(a, b []Field) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key != b[i].Key || a[i].TypeOID != b[i].TypeOID {
			return false
		}
	}
	return true
}
