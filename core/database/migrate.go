package database

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/m3rciful/shopbot/core/logger"
)

const (
	migrateComponent = "db.migrate"
	previewLimit     = 6
	readyTimeout     = 30 * time.Second
)

// migrationFile is one embedded *.up.sql script.
type migrationFile struct {
	name    string
	version uint64
}

// migrationSet lists up scripts ordered by version.
type migrationSet []migrationFile

func scanMigrations(fsys fs.FS) migrationSet {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil
	}
	var set migrationSet
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".up.sql") {
			continue
		}
		set = append(set, migrationFile{name: e.Name(), version: versionOf(e.Name())})
	}
	slices.SortFunc(set, func(a, b migrationFile) int {
		if c := cmp.Compare(a.version, b.version); c != 0 {
			return c
		}
		return strings.Compare(a.name, b.name)
	})
	return set
}

// versionOf reads the numeric prefix before the first underscore.
func versionOf(name string) uint64 {
	prefix, _, _ := strings.Cut(name, "_")
	v, _ := strconv.ParseUint(prefix, 10, 64)
	return v
}

func (s migrationSet) names() []string {
	out := make([]string, 0, len(s))
	for _, f := range s {
		out = append(out, f.name)
	}
	return out
}

// between returns the scripts in (from, to].
func (s migrationSet) between(from, to uint64) migrationSet {
	var out migrationSet
	for _, f := range s {
		if f.version > from && f.version <= to {
			out = append(out, f)
		}
	}
	return out
}

func filesAttrs(names []string) []slog.Attr {
	attrs := []slog.Attr{slog.Int("files_total", len(names))}
	preview, truncated := logger.SummarizeStrings(names, previewLimit)
	if preview != "" {
		attrs = append(attrs, slog.String("files_preview", preview))
	}
	if truncated {
		attrs = append(attrs, slog.Bool("files_truncated", true))
	}
	return attrs
}

// openMigrator waits for the database and builds a migrator over fsys.
func openMigrator(ctx context.Context, cfg Config, fsys fs.FS) (*migrate.Migrate, error) {
	dsn := cfg.URL()
	if err := WaitForPostgres(dsn, readyTimeout); err != nil {
		logger.Error(ctx, migrateComponent, "migrate.db_not_ready", slog.String("err", err.Error()))
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	src, err := iofs.New(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("open migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		logger.Error(ctx, migrateComponent, "migrate.init_failed", slog.String("err", err.Error()))
		return nil, fmt.Errorf("init migrations: %w", err)
	}
	return m, nil
}

// currentVersion treats an empty schema as version zero.
func currentVersion(m *migrate.Migrate) uint64 {
	v, _, err := m.Version()
	if err != nil {
		return 0
	}
	return uint64(v)
}

// RunMigrations applies every pending up script found in fsys.
func RunMigrations(cfg Config, fsys fs.FS) error {
	ctx := context.Background()
	set := scanMigrations(fsys)
	logger.Debug(ctx, migrateComponent, "migrate.resolve",
		append([]slog.Attr{slog.String("source", "embedded")}, filesAttrs(set.names())...)...)

	m, err := openMigrator(ctx, cfg, fsys)
	if err != nil {
		return err
	}
	defer m.Close()

	from := currentVersion(m)
	start := time.Now()
	upErr := m.Up()
	took := logger.RoundMS(time.Since(start))

	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		logger.Error(ctx, migrateComponent, "migrate.failed",
			slog.String("err", upErr.Error()),
			slog.Duration("duration", took),
		)
		return fmt.Errorf("apply migrations: %w", upErr)
	}

	to := currentVersion(m)
	applied := set.between(from, to)
	if len(applied) > 0 {
		logger.Debug(ctx, migrateComponent, "migrate.applied", filesAttrs(applied.names())...)
	}
	logger.Info(ctx, migrateComponent, "migrate.summary",
		slog.Uint64("from_ver", from),
		slog.Uint64("to_ver", to),
		slog.Int("files", len(applied)),
		slog.Duration("duration", took),
	)
	return nil
}

// RollbackMigrations reverts the last steps migrations.
func RollbackMigrations(cfg Config, fsys fs.FS, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("rollback steps must be > 0, got %d", steps)
	}
	ctx := context.Background()
	m, err := openMigrator(ctx, cfg, fsys)
	if err != nil {
		return err
	}
	defer m.Close()

	from := currentVersion(m)
	start := time.Now()
	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Error(ctx, migrateComponent, "migrate.rollback_failed",
			slog.Int("steps", steps),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("roll back migrations: %w", err)
	}
	logger.Info(ctx, migrateComponent, "migrate.rollback",
		slog.Uint64("from_ver", from),
		slog.Uint64("to_ver", currentVersion(m)),
		slog.Int("steps", steps),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return nil
}
