// Package format renders result values and summaries for the display surface.
package format

import (
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"pgresults/pkg/results"
)

// NullMarker is what a SQL NULL renders as. An absent value renders as "".
const NullMarker = "<i>null</i>"

// TextPreviewLimit is the longest text value shown before it is cut.
const TextPreviewLimit = 150

const ellipsis = "&hellip;"

// Value renders one cell for the display surface. present is false when the
// row has no cell for the field. The result is already escaped for markup.
func Value(field results.Field, value any, present bool) string {
	if !present {
		return ""
	}
	value = results.NormalizeValue(value)
	if value == nil {
		return NullMarker
	}

	var text string
	switch field.Format {
	case "interval":
		text = intervalText(value)
	case "json", "jsonb", "point", "circle":
		text = structuralText(value)
	case "timestamptz":
		text = timestampText(value)
	case "text":
		return truncateText(textual(value), TextPreviewLimit)
	default:
		text = textual(value)
	}
	return Escape(text)
}

// ValueAt looks up field.Key in row and renders it.
func ValueAt(field results.Field, row results.Row) string {
	v, ok := row.Get(field.Key)
	return Value(field, v, ok)
}

func truncateText(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return Escape(s)
	}
	return Escape(string(runes[:limit-2])) + ellipsis
}

func intervalText(v any) string {
	switch iv := v.(type) {
	case pgtype.Interval:
		return FormatInterval(IntervalFromPg(iv))
	case *pgtype.Interval:
		return FormatInterval(IntervalFromPg(*iv))
	case Interval:
		return FormatInterval(iv)
	case time.Duration:
		return FormatInterval(IntervalFromPg(pgtype.Interval{Microseconds: iv.Microseconds(), Valid: true}))
	}
	return textual(v)
}

func structuralText(v any) string {
	switch p := v.(type) {
	case pgtype.Point:
		v = map[string]float64{"x": p.P.X, "y": p.P.Y}
	case pgtype.Circle:
		v = map[string]float64{"x": p.P.X, "y": p.P.Y, "radius": p.R}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return textual(v)
	}
	return string(data)
}

func timestampText(v any) string {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format("2006-01-02T15:04:05.000Z")
	}
	return textual(v)
}

// textual is the default conversion of a decoded value to text.
func textual(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return `\x` + hex.EncodeToString(t)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return t.String()
	case driver.Valuer:
		dv, err := t.Value()
		if err == nil && dv != nil {
			return textual(dv)
		}
	}
	return fmt.Sprint(v)
}

// Escape replaces characters outside printable ASCII, and <>&"', with
// numeric character references. Newline, tab and carriage return are kept
// as they are so multi-line values still break where they did.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '<' || r == '>' || r == '&' || r == '"' || r == '\'':
			fmt.Fprintf(&b, "&#%d;", r)
		case r < 0x20 && r != '\n' && r != '\t' && r != '\r', r > 0x7e:
			fmt.Fprintf(&b, "&#%d;", r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
