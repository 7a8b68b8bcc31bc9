package migrations

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // pgx5:// scheme
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed *.sql
var fs embed.FS

// Source exposes the embedded NNN_name.{up,down}.sql files as a migrate source.
func Source() (source.Driver, error) {
	return iofs.New(fs, ".")
}

type zapLogger struct{}

func (zapLogger) Printf(format string, v ...any) {
	zap.L().Debug("migrate", zap.String("msg", fmt.Sprintf(format, v...)))
}

func (zapLogger) Verbose() bool { return false }

// Apply migrates the database at databaseURL (pgx5://...) to the latest
// embedded version. A database that is already current is not an error.
func Apply(ctx context.Context, databaseURL string) (err error) {
	src, err := Source()
	if err != nil {
		return fmt.Errorf("migrations source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}
	m.Log = zapLogger{}
	defer func() {
		srcErr, dbErr := m.Close()
		if err == nil {
			err = errors.Join(srcErr, dbErr)
		}
	}()

	if _, dirty, verr := m.Version(); verr == nil && dirty {
		return errors.New("migrations: database is dirty, fix it and force the version by hand")
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.GracefulStop <- true
		case <-done:
		}
	}()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			zap.L().Info("migrations up to date")
			return nil
		}
		return fmt.Errorf("migrate up: %w", err)
	}

	version, _, _ := m.Version()
	zap.L().Info("migrations applied", zap.Uint("version", version))
	return nil
}
