package postgres

import (
	"context"
	"embed"

	"github.com/jackc/pgx/v4/stdlib"
	"github.com/pkg/errors"
	migrate "github.com/rubenv/sql-migrate"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const migrationTable = "schema_migrations"

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Migrate applies (up) or rolls back (down) at most limit migrations; limit 0 means all.
// It returns the number of applied migrations.
func (s *Store) Migrate(_ context.Context, direction Direction, limit int) (int, error) {
	var dir migrate.MigrationDirection
	switch direction {
	case Up:
		dir = migrate.Up
	case Down:
		dir = migrate.Down
	default:
		return 0, errors.Errorf("unknown migration direction %q", direction)
	}

	db := stdlib.OpenDB(*s.pool.Config().ConnConfig)
	defer db.Close()

	source := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrationFiles,
		Root:       "migrations",
	}

	migrate.SetTable(migrationTable)

	n, err := migrate.ExecMax(db, "postgres", source, dir, limit)
	if err != nil {
		return n, errors.Wrapf(err, "unable to migrate %s", direction)
	}

	s.logger.Info().Str("direction", string(direction)).Int("applied", n).Msg("migrations executed")

	return n, nil
}
