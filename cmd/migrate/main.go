package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/credstock/internal/apikeys"
	"github.com/angelmondragon/credstock/pkg/config"
	"github.com/angelmondragon/credstock/pkg/db"
	"github.com/angelmondragon/credstock/pkg/logger"
	"github.com/angelmondragon/credstock/pkg/migrate"
	"github.com/angelmondragon/credstock/pkg/security"
)

func main() {
	ctx := context.Background()
	// bootstrap logger early (then re-init after config load)
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "command: up|down|status|version|create|validate|hash-token|issue-key")
	dir := flag.String("dir", "", "migrations base directory; empty uses the embedded set (create/validate default to "+migrate.DefaultDir+")")

	name := flag.String("name", "", "migration name (create) or key name (issue-key)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	inventory := flag.Int64("inventory", 0, "inventory id bound to the key (issue-key)")
	kiosk := flag.Bool("kiosk", false, "pin the key to -inventory (issue-key)")
	description := flag.String("description", "", "key description (issue-key)")

	flag.Parse()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	src := migrate.EmbeddedSource(cfg.DB.Driver)
	if *dir != "" {
		src = migrate.DiskSource(*dir, cfg.DB.Driver)
	}
	authoringDir := *dir
	if authoringDir == "" {
		authoringDir = migrate.DefaultDir
	}
	ctx = logg.WithFields(context.Background(), map[string]any{
		"env":    cfg.App.Env,
		"cmd":    *cmd,
		"source": src.String(),
	})

	// Commands that do NOT require DB
	switch *cmd {
	case "create":
		if *name == "" {
			fmt.Fprintln(os.Stderr, "missing -name for create")
			os.Exit(1)
		}
		paths, err := migrate.CreateSQLMigration(authoringDir, *name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create migration: %v\n", err)
			os.Exit(1)
		}
		for _, path := range paths {
			fmt.Println("created migration:", path)
		}
		return

	case "validate":
		if err := migrate.ValidateDialects(authoringDir); err != nil {
			fmt.Fprintf(os.Stderr, "migration validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("migration validation passed")
		return

	case "hash-token":
		token := readSecret()
		if token == "" {
			fmt.Fprintln(os.Stderr, "empty token on stdin")
			os.Exit(1)
		}
		hash, err := security.HashToken(token, cfg.Admin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to hash token: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s=%s\n", config.EnvAdminTokenHash, hash)
		return
	}

	// Everything else needs DB
	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)

	dialect := dbClient.Dialect()
	logg.Info(logg.WithField(ctx, "dialect", dialect), "migrate ready")

	switch *cmd {
	case "up", "down", "status":
		if err := migrate.Run(ctx, sqlDB, dialect, src, *cmd); err != nil {
			fmt.Fprintf(os.Stderr, "goose %s failed: %v\n", *cmd, err)
			os.Exit(1)
		}

	case "version":
		if *version == "" {
			fmt.Fprintln(os.Stderr, "missing -version for version command")
			os.Exit(1)
		}
		if err := migrate.MigrateToVersion(ctx, sqlDB, dialect, src, *version); err != nil {
			fmt.Fprintf(os.Stderr, "goose version migrate failed: %v\n", err)
			os.Exit(1)
		}

	case "issue-key":
		input := apikeys.IssueInput{Name: *name, Description: *description, IsKiosk: *kiosk}
		if *inventory > 0 {
			input.InventoryID = inventory
		}
		svc := apikeys.NewService(apikeys.NewRepository(dbClient.DB()), logg)
		raw, key, err := svc.Issue(ctx, input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to issue key: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("issued key %d (%s); store it now, it is not shown again:\n%s\n", key.ID, key.Name, raw)

	default:
		fmt.Fprintln(os.Stderr, "unknown -cmd value:", *cmd)
		os.Exit(1)
	}
}

func readSecret() string {
	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text())
	}
	return ""
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
