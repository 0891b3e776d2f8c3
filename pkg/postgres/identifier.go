package postgres

import (
	"strings"
)

// cursorPrefix identifica os cursores abertos por este processo em pg_cursors.
const cursorPrefix = "pgresults_"

// QuoteIdentifier escapa um identificador PostgreSQL (cursor, tabela, coluna, etc.)
// Adiciona aspas duplas e escapa aspas duplas internas duplicando-as.
// Exemplo: "public" → `"public"`, `schema name` → `"schema name"`
func QuoteIdentifier(identifier string) string {
	if identifier == "" {
		return `""`
	}
	escaped := strings.ReplaceAll(identifier, `"`, `""`)
	return `"` + escaped + `"`
}

// CursorName devolve o nome (já escapado) do cursor de servidor de uma sessão.
// Hífens do identificador da sessão viram underscores.
func CursorName(sessionID string) string {
	return QuoteIdentifier(cursorPrefix + strings.ReplaceAll(sessionID, "-", "_"))
}
