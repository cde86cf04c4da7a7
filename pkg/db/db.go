package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"notifyrouter/pkg/config"
)

// Handle is an open audit database. DB is always set; pool only for postgres.
type Handle struct {
	DB      *sql.DB
	Dialect string
	pool    *pgxpool.Pool
}

// Open connects to the configured driver and verifies the connection.
func Open(ctx context.Context, cfg config.DBConfig, logger *zap.Logger) (*Handle, error) {
	if cfg.IsSQLite() {
		return openSQLite(ctx, cfg, logger)
	}
	return openPostgres(ctx, cfg, logger)
}

func openPostgres(ctx context.Context, cfg config.DBConfig, logger *zap.Logger) (*Handle, error) {
	logger.Info("Initializing PostgreSQL connection pool",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("db", cfg.Name),
	)

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse db config: %w", err)
	}

	poolCfg.MaxConns = 10
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = 2
	poolCfg.MaxConnIdleTime = time.Minute
	poolCfg.ConnConfig.Tracer = NewSlowQueryTracer(logger, cfg.SlowQueryThreshold)

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
	defer pingCancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping: %w", err)
	}

	logger.Info("PostgreSQL connection established successfully")
	return &Handle{
		DB:      stdlib.OpenDBFromPool(pool),
		Dialect: config.DriverPostgres,
		pool:    pool,
	}, nil
}

// Ping checks the database is reachable; used by the readiness probe.
func (h *Handle) Ping(ctx context.Context) error {
	return h.DB.PingContext(ctx)
}

func (h *Handle) Close() {
	if h.DB != nil {
		_ = h.DB.Close()
	}
	if h.pool != nil {
		h.pool.Close()
	}
}
