// Package sql classifies SQL text using pg_query_go/v5, so the engine can
// decide how to open a cursor for it and which command it will report.
package sql

import (
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v5"
)

// Statement is what the engine needs to know about the SQL it runs.
type Statement struct {
	// Kind is SELECT, INSERT, UPDATE, DELETE, CREATE, EXPLAIN or the first
	// keyword of the statement for anything else.
	Kind string
	// Text is the statement without surrounding whitespace or trailing ';'.
	Text string
	// Cursorable is true when Text can be wrapped in DECLARE ... CURSOR FOR.
	Cursorable bool
}

// ParseStatements parses SQL and returns one RawStmt per statement.
func ParseStatements(sql string) ([]*pg_query.RawStmt, error) {
	tree, err := pg_query.Parse(sql)
	if err != nil {
		return nil, err
	}
	if tree == nil || tree.Stmts == nil {
		return nil, nil
	}
	return tree.Stmts, nil
}

// CommandStringFromRaw returns the SQL substring for a single RawStmt.
// StmtLen 0 means "until the end of the string".
func CommandStringFromRaw(query string, raw *pg_query.RawStmt) string {
	if raw == nil {
		return ""
	}
	start := int(raw.GetStmtLocation())
	if start < 0 || start >= len(query) {
		return ""
	}
	end := len(query)
	if length := int(raw.GetStmtLen()); length > 0 && start+length < end {
		end = start + length
	}
	return strings.TrimSpace(query[start:end])
}

// Classify inspects sql. Text that does not parse (or holds several
// statements) is never cursorable; the server reports the real error when
// it runs it.
func Classify(sql string) Statement {
	text := strings.TrimRight(strings.TrimSpace(sql), "; \t\r\n")
	stmts, err := ParseStatements(sql)
	if err != nil || len(stmts) != 1 || stmts[0].Stmt == nil {
		return Statement{Kind: firstKeyword(text), Text: text}
	}
	node := stmts[0].Stmt
	if cmd := CommandStringFromRaw(sql, stmts[0]); cmd != "" {
		text = strings.TrimRight(cmd, "; \t\r\n")
	}
	return Statement{
		Kind:       ClassifyStatement(node),
		Text:       text,
		Cursorable: isCursorable(node),
	}
}

// ClassifyStatement returns the command kind of a parsed statement.
func ClassifyStatement(stmt *pg_query.Node) string {
	switch {
	case stmt == nil:
		return "OTHER"
	case stmt.GetSelectStmt() != nil:
		return "SELECT"
	case stmt.GetInsertStmt() != nil:
		return "INSERT"
	case stmt.GetUpdateStmt() != nil:
		return "UPDATE"
	case stmt.GetDeleteStmt() != nil:
		return "DELETE"
	case stmt.GetExplainStmt() != nil:
		return "EXPLAIN"
	case stmt.GetCreateStmt() != nil,
		stmt.GetCreateTableAsStmt() != nil,
		stmt.GetViewStmt() != nil,
		stmt.GetIndexStmt() != nil,
		stmt.GetCreateSchemaStmt() != nil,
		stmt.GetCreateFunctionStmt() != nil,
		stmt.GetCreateSeqStmt() != nil:
		return "CREATE"
	case stmt.GetDropStmt() != nil:
		return "DROP"
	case stmt.GetVariableSetStmt() != nil:
		return "SET"
	case stmt.GetTransactionStmt() != nil:
		return "TRANSACTION"
	}
	return "OTHER"
}

// isCursorable is true for a plain query: SELECT/VALUES/TABLE without INTO
// and without data-modifying WITH queries, which DECLARE rejects.
func isCursorable(stmt *pg_query.Node) bool {
	sel := stmt.GetSelectStmt()
	if sel == nil || sel.GetIntoClause() != nil {
		return false
	}
	for _, cte := range sel.GetWithClause().GetCtes() {
		if q := cte.GetCommonTableExpr().GetCtequery(); q != nil && q.GetSelectStmt() == nil {
			return false
		}
	}
	return true
}

func firstKeyword(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "OTHER"
	}
	return strings.ToUpper(strings.Trim(fields[0], "(;"))
}
