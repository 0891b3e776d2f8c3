package format

import (
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// Interval is an interval split into calendar and clock components.
// Components left at zero are treated as absent.
type Interval struct {
	Years        int64
	Months       int64
	Days         int64
	Hours        int64
	Minutes      int64
	Seconds      int64
	Milliseconds float64
}

// IntervalFromPg decomposes a PostgreSQL interval value.
func IntervalFromPg(v pgtype.Interval) Interval {
	us := v.Microseconds
	iv := Interval{
		Years:  int64(v.Months) / 12,
		Months: int64(v.Months) % 12,
		Days:   int64(v.Days),
	}
	iv.Hours = us / 3_600_000_000
	us %= 3_600_000_000
	iv.Minutes = us / 60_000_000
	us %= 60_000_000
	iv.Seconds = us / 1_000_000
	us %= 1_000_000
	iv.Milliseconds = float64(us) / 1000
	return iv
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

// FormatInterval renders iv as an ISO-8601 duration. A negative component
// makes the whole value negative: every component is taken as its absolute
// value and the result is prefixed with "-".
func FormatInterval(iv Interval) string {
	negative := iv.Years < 0 || iv.Months < 0 || iv.Days < 0 ||
		iv.Hours < 0 || iv.Minutes < 0 || iv.Seconds < 0 || iv.Milliseconds < 0

	years, months, days := abs64(iv.Years), abs64(iv.Months), abs64(iv.Days)
	hours, minutes := abs64(iv.Hours), abs64(iv.Minutes)
	ms := iv.Milliseconds
	if ms < 0 {
		ms = -ms
	}
	seconds := float64(abs64(iv.Seconds)) + ms/1000

	var b strings.Builder
	b.WriteString("P")
	if years != 0 {
		b.WriteString(strconv.FormatInt(years, 10) + "Y")
	}
	if months != 0 {
		b.WriteString(strconv.FormatInt(months, 10) + "M")
	}
	if days != 0 {
		b.WriteString(strconv.FormatInt(days, 10) + "D")
	}
	if b.Len() == 1 || hours != 0 || minutes != 0 || seconds != 0 {
		b.WriteString("T")
	}
	if hours != 0 {
		b.WriteString(strconv.FormatInt(hours, 10) + "H")
	}
	if minutes != 0 {
		b.WriteString(strconv.FormatInt(minutes, 10) + "M")
	}
	if seconds != 0 {
		b.WriteString(strconv.FormatFloat(seconds, 'f', -1, 64) + "S")
	}

	iso := b.String()
	if iso == "PT" {
		iso = "PT0S"
	}
	if negative {
		return "-" + iso
	}
	return iso
}
