package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const versionLayout = "20060102150405"

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ValidateDir checks one dialect folder and returns its migration filenames in version order.
// Each file must be named <version>_<name>.sql, use a unique version and
// carry an Up section before its Down section.
func ValidateDir(dir string) ([]string, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}

	versions := map[string]string{}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, ok := versions[m[1]]; ok {
			return nil, fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name)
		}
		versions[m[1]] = name

		if err := checkSections(filepath.Join(dir, name)); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ValidateDialects validates every dialect folder under base and requires
// them to hold the same set of migration files.
func ValidateDialects(base string) error {
	if base == "" {
		base = DefaultDir
	}
	var (
		reference []string
		refDir    string
	)
	for _, dialect := range Dialects {
		dir := DirFor(base, dialect)
		names, err := ValidateDir(dir)
		if err != nil {
			return err
		}
		if refDir == "" {
			reference, refDir = names, dir
			continue
		}
		if missing := difference(reference, names); len(missing) > 0 {
			return fmt.Errorf("%s is missing %s", dir, strings.Join(missing, ", "))
		}
		if extra := difference(names, reference); len(extra) > 0 {
			return fmt.Errorf("%s is missing %s", refDir, strings.Join(extra, ", "))
		}
	}
	return nil
}

func checkSections(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file %q: %w", path, err)
	}
	txt := string(b)
	up := strings.Index(txt, "-- +goose Up")
	down := strings.Index(txt, "-- +goose Down")
	switch {
	case up < 0:
		return fmt.Errorf("migration %q missing \"-- +goose Up\"", filepath.Base(path))
	case down < 0:
		return fmt.Errorf("migration %q missing \"-- +goose Down\"", filepath.Base(path))
	case down < up:
		return fmt.Errorf("migration %q declares Down before Up", filepath.Base(path))
	}
	return nil
}

// difference returns the entries of a that b lacks.
func difference(a, b []string) []string {
	have := make(map[string]struct{}, len(b))
	for _, s := range b {
		have[s] = struct{}{}
	}
	var out []string
	for _, s := range a {
		if _, ok := have[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}
