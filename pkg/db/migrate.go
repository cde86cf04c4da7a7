package db

import (
	"context"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"notifyrouter/pkg/config"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Migrate applies the embedded schema migrations for the handle's dialect.
func Migrate(ctx context.Context, h *Handle, logger *zap.Logger) error {
	dialect, dir := "postgres", "migrations/postgres"
	if h.Dialect == config.DriverSQLite {
		dialect, dir = "sqlite3", "migrations/sqlite"
	}

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(&gooseLogger{log: logger.Sugar()})
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	if err := goose.UpContext(ctx, h.DB, dir); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// gooseLogger routes goose output through zap instead of stdout.
type gooseLogger struct {
	log *zap.SugaredLogger
}

func (l *gooseLogger) Fatalf(format string, v ...any) {
	l.log.Errorf(format, v...)
}

func (l *gooseLogger) Printf(format string, v ...any) {
	l.log.Infof(format, v...)
}
