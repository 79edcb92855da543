package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where the dialect folders live relative to the repository root.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations
var embedded embed.FS

// goose keeps its dialect and base filesystem in package globals.
var gooseMu sync.Mutex

// Source locates a dialect's migration files. A nil FS reads from disk.
type Source struct {
	FS  fs.FS
	Dir string
}

// DiskSource reads the dialect folder under base, for authoring and one-off runs.
func DiskSource(base, dialect string) Source {
	return Source{Dir: DirFor(base, dialect)}
}

// EmbeddedSource reads the migrations compiled into the binary.
func EmbeddedSource(dialect string) Source {
	return Source{FS: embedded, Dir: path.Join("migrations", folderFor(dialect))}
}

func (s Source) String() string {
	if s.FS != nil {
		return "embed:" + s.Dir
	}
	return s.Dir
}

// DirFor returns the on-disk migrations directory for the given gorm dialect name.
func DirFor(base, dialect string) string {
	if base == "" {
		base = DefaultDir
	}
	return filepath.Join(base, folderFor(dialect))
}

// GooseDialect maps gorm dialect names onto the names goose expects.
func GooseDialect(dialect string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case "sqlite", "sqlite3":
		return "sqlite3", nil
	case "postgres", "postgresql", "pgx":
		return "postgres", nil
	}
	return "", fmt.Errorf("unsupported migration dialect %q", dialect)
}

func folderFor(dialect string) string {
	if d, err := GooseDialect(dialect); err == nil && d == "postgres" {
		return "postgres"
	}
	return "sqlite"
}

func withGoose(dialect string, src Source, fn func() error) error {
	gooseDialect, err := GooseDialect(dialect)
	if err != nil {
		return err
	}
	if src.Dir == "" {
		return fmt.Errorf("migrations dir is required")
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()
	goose.SetBaseFS(src.FS)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return fn()
}

// Run executes a goose command (up, down, status, ...) against db.
func Run(ctx context.Context, db *sql.DB, dialect string, src Source, command string, args ...string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	return withGoose(dialect, src, func() error {
		if err := goose.RunContext(ctx, command, db, src.Dir, args...); err != nil {
			return fmt.Errorf("goose %s: %w", command, err)
		}
		return nil
	})
}

// MigrateToVersion moves the schema up or down until it sits at targetVersion.
func MigrateToVersion(ctx context.Context, db *sql.DB, dialect string, src Source, targetVersion string) error {
	target, err := strconv.ParseInt(strings.TrimSpace(targetVersion), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}
	return withGoose(dialect, src, func() error {
		current, err := goose.GetDBVersionContext(ctx, db)
		if err != nil {
			return fmt.Errorf("get db version: %w", err)
		}
		switch {
		case current < target:
			err = goose.UpToContext(ctx, db, src.Dir, target)
		case current > target:
			err = goose.DownToContext(ctx, db, src.Dir, target)
		}
		if err != nil {
			return fmt.Errorf("goose migrate %d -> %d: %w", current, target, err)
		}
		return nil
	})
}
