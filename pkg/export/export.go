// Package export writes an accumulated result as CSV or JSON records.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"pgresults/pkg/results"
)

// ErrNoData is returned when there are no rows to export.
var ErrNoData = errors.New("unable to save data - table has no data")

// ColumnNames names the output columns after the fields. Repeated names get
// _1, _2, ... appended in order of appearance.
func ColumnNames(fields []results.Field) []string {
	seen := make(map[string]int, len(fields))
	names := make([]string, len(fields))
	for i, f := range fields {
		n, dup := seen[f.Name]
		if dup {
			n++
			names[i] = f.Name + "_" + strconv.Itoa(n)
		} else {
			names[i] = f.Name
		}
		seen[f.Name] = n
	}
	return names
}

// WriteCSV writes a header line and one record per row.
func WriteCSV(w io.Writer, r *results.FullResults) error {
	if len(r.Rows) == 0 {
		return ErrNoData
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(ColumnNames(r.Fields)); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(r.Fields))
	for _, row := range r.Rows {
		for i, f := range r.Fields {
			v, _ := row.Get(f.Key)
			record[i] = csvValue(v)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvValue(v any) string {
	switch t := results.NormalizeValue(v).(type) {
	case nil:
		return ""
	case bool:
		if t {
			return "true"
		}
		return "false"
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return t.String()
	}
	if data, err := json.Marshal(v); err == nil {
		var s string
		if json.Unmarshal(data, &s) == nil {
			return s
		}
		return string(data)
	}
	return fmt.Sprint(v)
}

type record struct {
	names []string
	row   results.Row
	keys  []string
}

func (rec record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range rec.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		v, _ := rec.row.Get(rec.keys[i])
		val, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// WriteJSON writes an indented array with one object per row, keyed by the
// column names in field order.
func WriteJSON(w io.Writer, r *results.FullResults) error {
	if len(r.Rows) == 0 {
		return ErrNoData
	}
	names := ColumnNames(r.Fields)
	keys := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		keys[i] = f.Key
	}
	records := make([]record, len(r.Rows))
	for i, row := range r.Rows {
		records[i] = record{names: names, row: row, keys: keys}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json records: %w", err)
	}
	_, err = w.Write(data)
	return err
}
