package format

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"pgresults/pkg/results"
)

// Summary is the one-line text shown above a result.
func Summary(r *results.FullResults) string {
	switch r.Command {
	case results.CommandNone, results.CommandSelect:
		return rowCountText(int64(len(r.Rows)), "returned")
	case results.CommandUpdate:
		return rowCountText(r.RowCount, "updated")
	case results.CommandDelete:
		return rowCountText(r.RowCount, "deleted")
	case results.CommandInsert:
		return rowCountText(r.RowCount, "inserted")
	case results.CommandCreate:
		return rowCountText(r.RowCount, "created")
	case results.CommandExplain:
		return rowCountText(int64(len(r.Rows)), "in plan")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf("%+v", *r)
	}
	return string(data)
}

func rowCountText(n int64, verb string) string {
	return "Rows " + verb + ": " + strconv.FormatInt(n, 10)
}

// Header renders the table header: a row-number column then one cell per
// field with its name and display type.
func Header(fields []results.Field) string {
	var b strings.Builder
	b.WriteString("<tr><th></th>")
	for _, f := range fields {
		fmt.Fprintf(&b, `<th><div class="field-name">%s</div><div class="field-type">%s</div></th>`,
			Escape(f.Name), Escape(f.DisplayType))
	}
	b.WriteString("</tr>")
	return b.String()
}

// RowsHTML renders rows as table rows. Row numbers start at offset+1 so an
// incremental batch can be appended below the rows already shown.
func RowsHTML(fields []results.Field, rows []results.Row, offset int) string {
	var b strings.Builder
	for i, row := range rows {
		fmt.Fprintf(&b, "<tr><th>%d</th>", offset+i+1)
		for _, f := range fields {
			b.WriteString("<td>")
			b.WriteString(ValueAt(f, row))
			b.WriteString("</td>")
		}
		b.WriteString("</tr>")
	}
	return b.String()
}
