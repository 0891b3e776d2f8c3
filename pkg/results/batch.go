package results

import "errors"

// CommandKind is the SQL command reported by the terminal batch of a result.
// The empty value means the command is not known yet (intermediate batches).
type CommandKind string

const (
	CommandNone    CommandKind = ""
	CommandSelect  CommandKind = "SELECT"
	CommandInsert  CommandKind = "INSERT"
	CommandUpdate  CommandKind = "UPDATE"
	CommandDelete  CommandKind = "DELETE"
	CommandCreate  CommandKind = "CREATE"
	CommandExplain CommandKind = "EXPLAIN"
)

// ErrFieldShapeMismatch is returned by Merge when a batch carries a field list
// that disagrees with the one fixed by the first batch.
var ErrFieldShapeMismatch = errors.New("batch field list does not match the first batch")

// Batch is one page of rows fetched from a cursor. Command and RowCount are
// only set on the batch that closes the cursor.
type Batch struct {
	Command  CommandKind `json:"command"`
	RowCount int64       `json:"rowCount"`
	Fields   []Field     `json:"fields"`
	Rows     []Row       `json:"rows"`
}

// FullResults is everything accumulated for one session so far.
type FullResults struct {
	Command  CommandKind `json:"command"`
	RowCount int64       `json:"rowCount"`
	Fields   []Field     `json:"fields"`
	Rows     []Row       `json:"rows"`

	fieldsSet bool
}

// HasFields reports whether the field list was fixed by a first batch.
func (r *FullResults) HasFields() bool {
	return r.fieldsSet
}

// Merge appends the rows of b and returns the offset at which they start.
// The field list is taken from the first merged batch and never replaced; a
// later batch with a different shape still has its rows appended and
// ErrFieldShapeMismatch is returned so the caller can report it.
func (r *FullResults) Merge(b Batch) (int, error) {
	offset := len(r.Rows)
	var err error
	if !r.fieldsSet {
		r.Fields = b.Fields
		r.fieldsSet = true
	} else if !SameShape(r.Fields, b.Fields) {
		err = ErrFieldShapeMismatch
	}
	r.Rows = append(r.Rows, b.Rows...)
	if b.Command != CommandNone {
		r.Command = b.Command
		r.RowCount = b.RowCount
	}
	return offset, err
}

// Clone returns a copy whose slices do not alias r. Row values are shared.
func (r *FullResults) Clone() FullResults {
	out := FullResults{
		Command:   r.Command,
		RowCount:  r.RowCount,
		Fields:    append([]Field(nil), r.Fields...),
		Rows:      append([]Row(nil), r.Rows...),
		fieldsSet: r.fieldsSet,
	}
	return out
}
