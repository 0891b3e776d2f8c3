package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"pgresults/pkg/logger"
	"pgresults/pkg/postgres"
	"pgresults/pkg/results"
	sqlpkg "pgresults/pkg/sql"
)

// RawBatch is what a Cursor returns for one read: undecorated field
// descriptions and decoded values. Command and RowCount are only set when
// the read exhausted the cursor.
type RawBatch struct {
	Fields   []pgconn.FieldDescription
	Values   [][]any
	Command  results.CommandKind
	RowCount int64
}

// Cursor is a server-side paginated query handle. Read and Close are never
// called concurrently.
type Cursor interface {
	Read(ctx context.Context, max int) (RawBatch, error)
	Close(ctx context.Context) error
}

// Conn is one checked-out connection. *pgxpool.Conn satisfies it.
type Conn interface {
	Queryer
	Begin(ctx context.Context) (pgx.Tx, error)
	Release()
}

// OpenCursor starts sql on conn. Plain queries get a real server-side
// cursor (DECLARE ... CURSOR inside a transaction, paged with FETCH);
// anything else is run directly and its rows are read from the wire in
// pages of the same size.
func OpenCursor(ctx context.Context, conn Conn, sessionID, sql string) (Cursor, error) {
	stmt := sqlpkg.Classify(sql)
	if stmt.Cursorable {
		return openDeclaredCursor(ctx, conn, postgres.CursorName(sessionID), stmt)
	}
	return openRowsCursor(ctx, conn, stmt)
}

// commandFromTag maps "INSERT 0 3", "CREATE TABLE", "SELECT 5"... to the
// command verb.
func commandFromTag(tag pgconn.CommandTag) results.CommandKind {
	s := strings.TrimSpace(tag.String())
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}
	return results.CommandKind(strings.ToUpper(s))
}

// readRows collects up to max rows. It does not close rows unless iteration
// ended on its own.
func readRows(rows pgx.Rows, max int, values [][]any) ([][]any, bool, error) {
	for len(values) < max {
		if !rows.Next() {
			return values, true, rows.Err()
		}
		v, err := rowValues(rows)
		if err != nil {
			return values, false, err
		}
		values = append(values, v)
	}
	return values, false, nil
}

func rowValues(rows pgx.Rows) ([]any, error) {
	v, err := rows.Values()
	if err != nil {
		return nil, err
	}
	return keepJSONText(rows.FieldDescriptions(), rows.RawValues(), v), nil
}

// keepJSONText puts the text PostgreSQL sent back in place of decoded
// json/jsonb values: decoding into a map loses the key order. raw is only
// valid until the next call to Next, so it is copied.
func keepJSONText(fields []pgconn.FieldDescription, raw [][]byte, values []any) []any {
	for i, f := range fields {
		if i >= len(values) || i >= len(raw) || raw[i] == nil {
			continue
		}
		if f.DataTypeOID != pgtype.JSONOID && f.DataTypeOID != pgtype.JSONBOID {
			continue
		}
		// jsonb in binary format carries a version byte.
		if f.Format != pgtype.TextFormatCode {
			continue
		}
		values[i] = json.RawMessage(bytes.Clone(raw[i]))
	}
	return values
}

type declaredCursor struct {
	tx     pgx.Tx
	name   string
	kind   results.CommandKind
	total  int64
	failed bool
}

func openDeclaredCursor(ctx context.Context, conn Conn, name string, stmt sqlpkg.Statement) (*declaredCursor, error) {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin cursor transaction: %w", err)
	}
	declare := "DECLARE " + name + " NO SCROLL CURSOR FOR " + stmt.Text
	if _, err := tx.Exec(ctx, declare, pgx.QueryExecModeSimpleProtocol); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			logger.Debug("rollback after failed DECLARE: %v", rbErr)
		}
		return nil, err
	}
	return &declaredCursor{tx: tx, name: name, kind: results.CommandKind(stmt.Kind)}, nil
}

func (c *declaredCursor) Read(ctx context.Context, max int) (RawBatch, error) {
	rows, err := c.tx.Query(ctx, fmt.Sprintf("FETCH FORWARD %d FROM %s", max, c.name), pgx.QueryExecModeSimpleProtocol)
	if err != nil {
		c.failed = true
		return RawBatch{}, err
	}
	defer rows.Close()

	values, _, err := readRows(rows, max, make([][]any, 0, max))
	if err != nil {
		c.failed = true
		return RawBatch{}, err
	}
	batch := RawBatch{Fields: rows.FieldDescriptions(), Values: values}
	c.total += int64(len(values))
	if len(values) < max {
		batch.Command = c.kind
		batch.RowCount = c.total
	}
	return batch, nil
}

// Close closes the cursor and ends its transaction. After a failed fetch the
// transaction is aborted and is only rolled back.
func (c *declaredCursor) Close(ctx context.Context) error {
	if c.failed {
		return c.tx.Rollback(ctx)
	}
	var errs []error
	if _, err := c.tx.Exec(ctx, "CLOSE "+c.name, pgx.QueryExecModeSimpleProtocol); err != nil {
		errs = append(errs, fmt.Errorf("close cursor %s: %w", c.name, err))
	}
	if err := c.tx.Commit(ctx); err != nil {
		errs = append(errs, fmt.Errorf("commit cursor transaction: %w", err))
		if rbErr := c.tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			errs = append(errs, rbErr)
		}
	}
	return errors.Join(errs...)
}

// rowsCursor pages through a statement that cannot be declared as a cursor
// (DML with RETURNING, EXPLAIN, DDL...).
type rowsCursor struct {
	rows    pgx.Rows
	pending []any
	done    bool
}

func openRowsCursor(ctx context.Context, conn Conn, stmt sqlpkg.Statement) (*rowsCursor, error) {
	rows, err := conn.Query(ctx, stmt.Text, pgx.QueryExecModeSimpleProtocol)
	if err != nil {
		return nil, err
	}
	c := &rowsCursor{rows: rows}
	// pgx reports statement errors on the first Next; surface them as open
	// errors and keep the first row for Read.
	if rows.Next() {
		v, err := rowValues(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		c.pending = v
		return c, nil
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	c.done = true
	return c, nil
}

func (c *rowsCursor) Read(ctx context.Context, max int) (RawBatch, error) {
	values := make([][]any, 0, max)
	if c.pending != nil {
		values = append(values, c.pending)
		c.pending = nil
	}
	if !c.done {
		var err error
		values, c.done, err = readRows(c.rows, max, values)
		if err != nil {
			c.rows.Close()
			return RawBatch{}, err
		}
	}
	batch := RawBatch{Fields: c.rows.FieldDescriptions(), Values: values}
	if len(values) < max {
		c.rows.Close()
		if err := c.rows.Err(); err != nil {
			return RawBatch{}, err
		}
		tag := c.rows.CommandTag()
		batch.Command = commandFromTag(tag)
		batch.RowCount = tag.RowsAffected()
	}
	return batch, nil
}

func (c *rowsCursor) Close(ctx context.Context) error {
	c.rows.Close()
	return nil
}
