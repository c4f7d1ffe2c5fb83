package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/dbnexus/dbnexus/internal/config"
	"github.com/dbnexus/dbnexus/internal/migration"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	var (
		configPath = flag.String("config", "", "path to configuration file (YAML or TOML)")
		dir        = flag.String("dir", "migrations", "migration files directory")
	)
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	switch args[0] {
	case "create":
		if len(args) < 2 {
			log.Fatal("create requires a description")
		}
		runCreate(*dir, args[1])
	case "up":
		runUp(loadConfig(*configPath), *dir)
	case "status":
		runStatus(loadConfig(*configPath), *dir)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: dbnexus-migrate [-config file] [-dir dir] <command>

commands:
  create <description>   write a new migration file skeleton
  up                     apply all pending migrations
  status                 show applied and pending migrations`)
}

func loadConfig(path string) config.DbConfig {
	if path != "" {
		cfg, err := config.LoadFile(path)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		return config.Correct(cfg)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("Failed to load config from environment: %v", err)
	}
	return config.Correct(cfg)
}

func openDatabase(cfg config.DbConfig) *sql.DB {
	dt := cfg.DatabaseType()
	db, err := sql.Open(dt.DriverName(), config.DSN(cfg.URL))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.AcquireTimeoutDuration())
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	return db
}

func runCreate(dir, description string) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Fatalf("Failed to create migration directory: %v", err)
	}

	version := uint32(time.Now().Unix())
	path, err := migration.CreateFile(dir, version, description)
	if err != nil {
		log.Fatalf("Failed to create migration file: %v", err)
	}
	fmt.Printf("Created %s\n", path)
}

func runUp(cfg config.DbConfig, dir string) {
	files, err := migration.LoadDir(dir)
	if err != nil {
		log.Fatalf("Failed to load migrations: %v", err)
	}

	db := openDatabase(cfg)
	defer db.Close()

	runner := migration.NewRunner(db, cfg.DatabaseType())
	ctx := context.Background()
	if err := runner.LoadHistory(ctx); err != nil {
		log.Fatalf("Failed to load migration history: %v", err)
	}

	applied := 0
	for _, f := range files {
		if runner.IsApplied(f.Version) {
			continue
		}
		if err := runner.ApplyFile(ctx, f, migration.FileName(f.Version, f.Description)); err != nil {
			log.Fatalf("Migration %d failed: %v", f.Version, err)
		}
		fmt.Printf("Applied %d: %s\n", f.Version, f.Description)
		applied++
	}

	if applied == 0 {
		fmt.Println("No pending migrations")
	} else {
		fmt.Printf("Applied %d migration(s)\n", applied)
	}
}

func runStatus(cfg config.DbConfig, dir string) {
	files, err := migration.LoadDir(dir)
	if err != nil {
		log.Fatalf("Failed to load migrations: %v", err)
	}

	db := openDatabase(cfg)
	defer db.Close()

	runner := migration.NewRunner(db, cfg.DatabaseType())
	if err := runner.LoadHistory(context.Background()); err != nil {
		log.Fatalf("Failed to load migration history: %v", err)
	}

	for _, f := range files {
		state := "pending"
		if runner.IsApplied(f.Version) {
			state = "applied"
		}
		fmt.Printf("%-8s %d  %s\n", state, f.Version, f.Description)
	}
	if len(files) == 0 {
		fmt.Println("No migration files found")
	}
}
