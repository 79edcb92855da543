package migrate_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/credstock/pkg/migrate"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestMigrationDirsValidate(t *testing.T) {
	if err := migrate.ValidateDialects("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
	names, err := migrate.ValidateDir(migrate.DirFor("migrations", "sqlite"))
	if err != nil {
		t.Fatalf("validate sqlite: %v", err)
	}
	if len(names) != 3 || !strings.HasSuffix(names[0], "_create_inventories.sql") {
		t.Fatalf("unexpected sqlite migrations %v", names)
	}
}

func TestCreateSQLMigrationWritesEveryDialect(t *testing.T) {
	base := t.TempDir()
	paths, err := migrate.CreateSQLMigration(base, "Add Order Index!")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected one file per dialect, got %v", paths)
	}
	if filepath.Base(paths[0]) != filepath.Base(paths[1]) {
		t.Fatalf("dialect files must share a version: %v", paths)
	}
	if !strings.HasSuffix(paths[0], "_add_order_index.sql") {
		t.Fatalf("unexpected sanitized name %q", paths[0])
	}
	if err := migrate.ValidateDialects(base); err != nil {
		t.Fatalf("fresh migrations should validate: %v", err)
	}

	if _, err := migrate.CreateSQLMigration(base, "!!!"); err == nil {
		t.Fatal("expected empty sanitized name to fail")
	}
}

func TestValidateDialectsDetectsDrift(t *testing.T) {
	base := t.TempDir()
	up := "-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n"
	writeFile(t, filepath.Join(base, "sqlite", "20260101000001_a.sql"), up)
	writeFile(t, filepath.Join(base, "postgres", "20260101000001_a.sql"), up)
	writeFile(t, filepath.Join(base, "postgres", "20260101000002_b.sql"), up)

	err := migrate.ValidateDialects(base)
	if err == nil || !strings.Contains(err.Error(), "20260101000002_b.sql") {
		t.Fatalf("expected drift error naming the missing file, got %v", err)
	}
}

func TestValidateDirRejectsBadFiles(t *testing.T) {
	cases := map[string]string{
		"bad_name.sql":               "-- +goose Up\n-- +goose Down\n",
		"20260101000001_no_down.sql": "-- +goose Up\n",
		"20260101000001_swapped.sql": "-- +goose Down\n-- +goose Up\n",
	}
	for name, body := range cases {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, name), body)
		if _, err := migrate.ValidateDir(dir); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestProductsMigrationContainsFIFOIndexes(t *testing.T) {
	for _, dialect := range []string{"sqlite", "postgres"} {
		content := readMigration(t, migrate.DirFor("migrations", dialect), "*_create_products.sql")
		checks := []string{
			"CREATE TABLE IF NOT EXISTS products",
			"REFERENCES inventories(id)",
			"CREATE INDEX IF NOT EXISTS idx_products_inventory_sold",
			"moved_at",
			"DROP TABLE IF EXISTS products",
		}
		for _, sub := range checks {
			if !strings.Contains(content, sub) {
				t.Errorf("%s: missing expected statement %q", dialect, sub)
			}
		}
	}
}

func TestInventoriesMigrationSeedsDefaults(t *testing.T) {
	content := readMigration(t, migrate.DirFor("migrations", "postgres"), "*_create_inventories.sql")
	for _, sub := range []string{"'ExpressVPN'", "'Email Trial'", "ON CONFLICT (id) DO NOTHING", "setval"} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestRunAppliesSQLiteMigrations(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:migrate_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	ctx := context.Background()
	if err := migrate.Run(ctx, sqlDB, "sqlite", migrate.DiskSource("migrations", "sqlite"), "up"); err != nil {
		t.Fatalf("goose up: %v", err)
	}

	var inventories int64
	if err := conn.Table("inventories").Count(&inventories).Error; err != nil {
		t.Fatalf("count inventories: %v", err)
	}
	if inventories != 3 {
		t.Fatalf("expected 3 seeded inventories, got %d", inventories)
	}
	for _, table := range []string{"products", "api_keys", "settings"} {
		if !conn.Migrator().HasTable(table) {
			t.Fatalf("expected table %s to exist", table)
		}
	}
}

func TestEmbeddedMigrationsMatchDisk(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:embed_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	ctx := context.Background()
	src := migrate.EmbeddedSource("sqlite")
	if src.String() != "embed:migrations/sqlite" {
		t.Fatalf("unexpected source %s", src)
	}
	if err := migrate.Run(ctx, sqlDB, "sqlite", src, "up"); err != nil {
		t.Fatalf("embedded up: %v", err)
	}
	names, err := migrate.ValidateDir(migrate.DirFor("migrations", "sqlite"))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	first := strings.SplitN(names[0], "_", 2)[0]
	if err := migrate.MigrateToVersion(ctx, sqlDB, "sqlite", src, first); err != nil {
		t.Fatalf("down to first version: %v", err)
	}
	if conn.Migrator().HasTable("api_keys") {
		t.Fatal("api_keys should be rolled back")
	}
	if !conn.Migrator().HasTable("inventories") {
		t.Fatal("inventories should survive the rollback")
	}
	if err := migrate.MigrateToVersion(ctx, sqlDB, "sqlite", src, "nope"); err == nil {
		t.Fatal("expected invalid version error")
	}
}

func TestGooseDialect(t *testing.T) {
	cases := map[string]string{"sqlite": "sqlite3", "postgres": "postgres", "pgx": "postgres"}
	for in, want := range cases {
		got, err := migrate.GooseDialect(in)
		if err != nil || got != want {
			t.Fatalf("GooseDialect(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := migrate.GooseDialect("mysql"); err == nil {
		t.Fatal("expected unsupported dialect error")
	}
	if got := migrate.DirFor("", "postgres"); got != filepath.Join(migrate.DefaultDir, "postgres") {
		t.Fatalf("unexpected dir %q", got)
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readMigration(t *testing.T, dir, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %s in %s", pattern, dir)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
