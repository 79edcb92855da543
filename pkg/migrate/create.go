package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Dialects lists the migration folders kept in lockstep.
var Dialects = []string{"sqlite", "postgres"}

var nameSanitizeRe = regexp.MustCompile(`[^a-z0-9_]+`)

// CreateSQLMigration writes one goose file per dialect folder under base, all sharing a version:
//
//	<base>/{sqlite,postgres}/<YYYYMMDDHHMMSS>_<name>.sql
func CreateSQLMigration(base, name string) ([]string, error) {
	if base == "" {
		base = DefaultDir
	}
	safe := sanitizeName(name)
	if safe == "" {
		return nil, fmt.Errorf("name %q results in empty sanitized filename", name)
	}

	filename := fmt.Sprintf("%s_%s.sql", time.Now().UTC().Format(versionLayout), safe)

	paths := make([]string, 0, len(Dialects))
	for _, dialect := range Dialects {
		dir := DirFor(base, dialect)
		full := filepath.Join(dir, filename)
		if _, err := os.Stat(full); err == nil {
			return paths, fmt.Errorf("migration already exists: %s", full)
		}
		paths = append(paths, full)
	}

	for i, dialect := range Dialects {
		if err := os.MkdirAll(filepath.Dir(paths[i]), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %q: %w", filepath.Dir(paths[i]), err)
		}
		if err := os.WriteFile(paths[i], []byte(migrationTemplate(dialect, safe)), 0o644); err != nil {
			return nil, fmt.Errorf("write migration %q: %w", paths[i], err)
		}
	}
	return paths, nil
}

func sanitizeName(name string) string {
	safe := strings.ToLower(strings.TrimSpace(name))
	safe = nameSanitizeRe.ReplaceAllString(safe, "_")
	return strings.Trim(safe, "_")
}

func migrationTemplate(dialect, name string) string {
	return fmt.Sprintf(`-- +goose Up
-- +goose StatementBegin
-- %[1]s (%[2]s)
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- rollback %[1]s (%[2]s)
-- +goose StatementEnd
`, name, dialect)
}
