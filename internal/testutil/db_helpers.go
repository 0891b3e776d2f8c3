// Package testutil tem os helpers dos testes que precisam de um PostgreSQL
// real. Sem PGRESULTS_TEST_DSN esses testes são pulados.
package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DSNEnv é a variável com a string de conexão dos testes com banco.
const DSNEnv = "PGRESULTS_TEST_DSN"

// LivePool abre um pool para o banco de testes, ou pula o teste se não houver
// banco acessível. O pool é fechado no fim do teste.
func LivePool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(DSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", DSNEnv)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Skipf("cannot connect: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("cannot connect: %v", err)
	}
	LogIfVerboseWithTest(t, "connected to test database (%s)", DSNEnv)
	t.Cleanup(pool.Close)
	return pool
}

// CreateTable cria uma tabela com as colunas especificadas e a remove no fim
// do teste.
func CreateTable(t *testing.T, pool *pgxpool.Pool, tableName string, columns string) {
	t.Helper()
	ctx := context.Background()
	if _, err := pool.Exec(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", tableName, columns)); err != nil {
		t.Fatalf("Failed to create table %s: %v", tableName, err)
	}
	t.Cleanup(func() {
		if _, err := pool.Exec(context.Background(), "DROP TABLE IF EXISTS "+tableName); err != nil {
			t.Logf("Failed to drop table %s: %v", tableName, err)
		}
	})
}

// CreateSeriesTable cria tableName (id INT, name TEXT) com as linhas 1..n.
func CreateSeriesTable(t *testing.T, pool *pgxpool.Pool, tableName string, n int) {
	t.Helper()
	CreateTable(t, pool, tableName, "id INT, name TEXT")
	query := fmt.Sprintf("INSERT INTO %s SELECT g, 'row ' || g FROM generate_series(1, $1::int) g", tableName)
	tag, err := pool.Exec(context.Background(), query, n)
	if err != nil {
		t.Fatalf("Failed to fill table %s: %v", tableName, err)
	}
	if tag.RowsAffected() != int64(n) {
		t.Fatalf("INSERT into %s should affect %d rows, got: %d", tableName, n, tag.RowsAffected())
	}
}

// AssertTableCount verifica que a contagem de linhas na tabela corresponde ao valor esperado.
func AssertTableCount(t *testing.T, pool *pgxpool.Pool, tableName string, expectedCount int, contextMsg string) {
	t.Helper()
	var count int
	err := pool.QueryRow(context.Background(), fmt.Sprintf("SELECT COUNT(*) FROM %s", tableName)).Scan(&count)
	if err != nil {
		msg := fmt.Sprintf("Failed to check table count for %s", tableName)
		if contextMsg != "" {
			msg = fmt.Sprintf("%s (%s)", msg, contextMsg)
		}
		t.Fatalf("%s: %v", msg, err)
	}
	if count != expectedCount {
		msg := fmt.Sprintf("Table %s count = %d, want %d", tableName, count, expectedCount)
		if contextMsg != "" {
			msg = fmt.Sprintf("%s (%s)", msg, contextMsg)
		}
		t.Fatalf("%s", msg)
	}
}

// AssertNoIdleTransactions verifica que nenhuma conexão do pool ficou presa
// em uma transação (cursor não fechado).
func AssertNoIdleTransactions(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	var n int
	err := pool.QueryRow(context.Background(),
		"SELECT COUNT(*) FROM pg_stat_activity WHERE datname = current_database() AND state LIKE 'idle in transaction%' AND pid <> pg_backend_pid()").Scan(&n)
	if err != nil {
		t.Fatalf("Failed to read pg_stat_activity: %v", err)
	}
	if n != 0 {
		t.Errorf("%d connections left idle in transaction", n)
	}
}
