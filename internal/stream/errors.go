package stream

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrSessionNotFound is returned for ids that are not (or no longer) registered.
// A display surface getting it must re-run the query.
var ErrSessionNotFound = errors.New("session not found: the query must be re-run to see its results")

// ConnectionError means no connection could be checked out or the type
// catalog could not be loaded. No session exists when it is returned.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string { return fmt.Sprintf("connection error: %v", e.Err) }
func (e *ConnectionError) Unwrap() error { return e.Err }

// CursorOpenError means the query could not be started.
type CursorOpenError struct {
	Err error
}

func (e *CursorOpenError) Error() string { return fmt.Sprintf("failed to open cursor: %v", e.Err) }
func (e *CursorOpenError) Unwrap() error { return e.Err }

// FetchError means reading batch number Batch (1-based) failed.
type FetchError struct {
	Batch int
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch batch %d: %v", e.Batch, e.Err)
}
func (e *FetchError) Unwrap() error { return e.Err }

// displayMessage is the text shown to the user for err: the server message
// when the cause is a PostgreSQL error, err.Error() otherwise.
func displayMessage(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Detail != "" {
			return pgErr.Message + ": " + pgErr.Detail
		}
		return pgErr.Message
	}
	return err.Error()
}
