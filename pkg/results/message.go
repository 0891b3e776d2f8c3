package results

// Message is a push message sent to a display surface.
type Message interface {
	MessageKind() string
}

// DisplaySink receives the push messages of one session. Post must not block
// on the engine: it is called while the session state is held.
type DisplaySink interface {
	Post(msg Message) error
}

// Page is the results payload of a DataMessage.
type Page struct {
	Fields []Field `json:"fields"`
	Rows   []Row   `json:"rows"`
}

// DataMessage carries a batch (or the whole accumulated result on restore).
// Command is nil until the terminal batch reports the SQL command.
type DataMessage struct {
	Command *string `json:"command"`
	Summary string  `json:"summary"`
	Results Page    `json:"results"`
	Offset  int     `json:"offset"`
}

func (DataMessage) MessageKind() string { return "data" }

// ErrorMessage is terminal: nothing else is pushed for the session after it.
type ErrorMessage struct {
	Command string `json:"command"`
	Summary string `json:"summary"`
	Header  string `json:"header"`
	Results string `json:"results"`
}

func (ErrorMessage) MessageKind() string { return "error" }

// NewErrorMessage builds the terminal ErrorMessage shown as summary.
func NewErrorMessage(summary string) ErrorMessage {
	return ErrorMessage{Command: "ERROR", Summary: summary}
}

// NewPage builds a Page, never leaving Fields or Rows nil.
func NewPage(fields []Field, rows []Row) Page {
	if fields == nil {
		fields = []Field{}
	}
	if rows == nil {
		rows = []Row{}
	}
	return Page{Fields: fields, Rows: rows}
}

// CommandPtr returns nil for CommandNone, so it encodes as JSON null.
func CommandPtr(c CommandKind) *string {
	if c == CommandNone {
		return nil
	}
	s := string(c)
	return &s
}
