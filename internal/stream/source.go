package stream

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"pgresults/internal/config"
	"pgresults/pkg/logger"
)

// Source hands out connections. Each session checks out its own connection;
// sessions never share one.
type Source interface {
	Acquire(ctx context.Context) (Conn, error)
}

// PoolSource is a Source backed by a pgx pool.
type PoolSource struct {
	pool *pgxpool.Pool
}

// NewPoolSource abre o pool e confirma que o servidor responde.
func NewPoolSource(ctx context.Context, pg config.PostgresConfig) (*PoolSource, error) {
	poolCfg, err := pgxpool.ParseConfig(pg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if pg.MaxConns > 0 {
		poolCfg.MaxConns = pg.MaxConns
	}
	dialer := &net.Dialer{
		KeepAlive: 30 * time.Second,
		Timeout:   30 * time.Second,
	}
	poolCfg.ConnConfig.DialFunc = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialer.DialContext(ctx, network, addr)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to verify PostgreSQL connection (ping failed): %w", err)
	}
	logger.Info("Connected to PostgreSQL at %s:%d/%s (max %d connections)", pg.Host, pg.Port, pg.Database, poolCfg.MaxConns)
	return &PoolSource{pool: pool}, nil
}

// WrapPool uses an already open pool.
func WrapPool(pool *pgxpool.Pool) *PoolSource {
	return &PoolSource{pool: pool}
}

func (s *PoolSource) Acquire(ctx context.Context) (Conn, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (s *PoolSource) Close() {
	s.pool.Close()
}
