package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"contentforge/internal/infra"
)

// Applies the .sql files under the migrations directory in lexical order,
// tracking applied versions in schema_migrations.
func main() {
	_ = godotenv.Load()

	dir := flag.String("dir", "migrations", "directory containing .sql migration files")
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("migrate: open database")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("migrate: ping database")
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		logger.Fatal().Err(err).Msg("migrate: ensure schema_migrations")
	}

	files, err := listMigrations(*dir)
	if err != nil {
		logger.Fatal().Err(err).Msg("migrate: list migrations")
	}

	applied := 0
	for _, file := range files {
		version := strings.TrimSuffix(filepath.Base(file), ".sql")

		var exists bool
		if err := db.QueryRow(`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, version).Scan(&exists); err != nil {
			logger.Fatal().Err(err).Str("version", version).Msg("migrate: check version")
		}
		if exists {
			continue
		}

		script, err := os.ReadFile(file)
		if err != nil {
			logger.Fatal().Err(err).Str("file", file).Msg("migrate: read migration")
		}

		tx, err := db.Begin()
		if err != nil {
			logger.Fatal().Err(err).Msg("migrate: begin transaction")
		}
		if _, err := tx.Exec(string(script)); err != nil {
			_ = tx.Rollback()
			logger.Fatal().Err(err).Str("version", version).Msg("migrate: apply migration")
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
			_ = tx.Rollback()
			logger.Fatal().Err(err).Str("version", version).Msg("migrate: record version")
		}
		if err := tx.Commit(); err != nil {
			logger.Fatal().Err(err).Str("version", version).Msg("migrate: commit migration")
		}
		logger.Info().Str("version", version).Msg("migrate: applied")
		applied++
	}

	logger.Info().Msg(fmt.Sprintf("migrate: done, %d applied", applied))
}

func listMigrations(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
