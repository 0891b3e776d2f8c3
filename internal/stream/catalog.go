package stream

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"pgresults/pkg/results"
)

const typeCatalogQuery = "select oid, format_type(oid, typtypmod) as display_type, typname from pg_type"

// unknownType is the display type of an OID missing from the catalog.
const unknownType = "unknown"

// Queryer is the part of a connection the catalog needs.
type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// TypeCatalogEntry maps a type OID to its display name (format_type) and
// base type name (typname, used to pick value formatting rules).
type TypeCatalogEntry struct {
	OID         uint32 `db:"oid"`
	DisplayType string `db:"display_type"`
	TypeName    string `db:"typname"`
}

// TypeCatalog resolves type OIDs. It is loaded once per execution and only
// read afterwards.
type TypeCatalog struct {
	byOID map[uint32]TypeCatalogEntry
}

func NewTypeCatalog(entries []TypeCatalogEntry) *TypeCatalog {
	c := &TypeCatalog{byOID: make(map[uint32]TypeCatalogEntry, len(entries))}
	for _, e := range entries {
		c.byOID[e.OID] = e
	}
	return c
}

// LoadTypeCatalog runs the pg_type introspection query on q.
func LoadTypeCatalog(ctx context.Context, q Queryer) (*TypeCatalog, error) {
	rows, err := q.Query(ctx, typeCatalogQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to load type catalog: %w", err)
	}
	entries, err := pgx.CollectRows(rows, pgx.RowToStructByName[TypeCatalogEntry])
	if err != nil {
		return nil, fmt.Errorf("failed to read type catalog: %w", err)
	}
	return NewTypeCatalog(entries), nil
}

func (c *TypeCatalog) Len() int { return len(c.byOID) }

// Resolve returns the entry for oid, or an "unknown" entry.
func (c *TypeCatalog) Resolve(oid uint32) TypeCatalogEntry {
	if e, ok := c.byOID[oid]; ok {
		return e
	}
	return TypeCatalogEntry{OID: oid, DisplayType: unknownType, TypeName: unknownType}
}

// Fields builds the field list of a result from its row description.
func (c *TypeCatalog) Fields(descs []pgconn.FieldDescription) []results.Field {
	fields := make([]results.Field, len(descs))
	for i, d := range descs {
		entry := c.Resolve(d.DataTypeOID)
		fields[i] = results.Field{
			Name:        d.Name,
			TypeOID:     d.DataTypeOID,
			Format:      entry.TypeName,
			DisplayType: entry.DisplayType,
			Key:         results.PositionalKey(i),
		}
	}
	return fields
}

// sameDescShape reports whether descs still matches the fields fixed by
// the first batch.
func sameDescShape(fields []results.Field, descs []pgconn.FieldDescription) bool {
	if len(fields) != len(descs) {
		return false
	}
	for i := range fields {
		if fields[i].TypeOID != descs[i].DataTypeOID {
			return false
		}
	}
	return true
}
