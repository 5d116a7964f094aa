package snapshot

import (
	"fmt"
	"os"
	"strings"
)

const (
	ModeFile     = "file"
	ModeSQLite   = "sqlite"
	ModePostgres = "postgres"

	defaultDatasetPath = "apps/server/data/dialogue.yaml"
)

// Config selects a source. Empty fields fall back to the environment.
type Config struct {
	Mode       string
	Path       string
	SQLitePath string
	DSN        string
}

func modeFromEnv(raw string) string {
	if strings.TrimSpace(raw) == "" {
		raw = os.Getenv("DIALOGUE_SOURCE")
	}
	switch mode := strings.ToLower(strings.TrimSpace(raw)); mode {
	case "", ModeFile, "json", "yaml":
		return ModeFile
	case ModeSQLite, "local":
		return ModeSQLite
	case ModePostgres, "postgresql", "db":
		return ModePostgres
	default:
		return mode
	}
}

// NewSourceFromEnv opens the configured dataset source and reports its mode.
func NewSourceFromEnv(cfg Config) (Source, string, error) {
	mode := modeFromEnv(cfg.Mode)

	switch mode {
	case ModeFile:
		path := firstNonEmpty(cfg.Path, os.Getenv("DIALOGUE_PATH"), defaultDatasetPath)
		return NewFileLoader(path), mode, nil
	case ModeSQLite:
		var (
			loader *SQLiteLoader
			err    error
		)
		if p := strings.TrimSpace(cfg.SQLitePath); p != "" {
			loader, err = NewSQLiteLoader(p)
		} else {
			loader, err = NewSQLiteLoaderFromEnv()
		}
		if err != nil {
			return nil, mode, err
		}
		return loader, mode, nil
	case ModePostgres:
		var (
			loader *PostgresLoader
			err    error
		)
		if dsn := strings.TrimSpace(cfg.DSN); dsn != "" {
			loader, err = NewPostgresLoader(dsn)
		} else {
			loader, err = NewPostgresLoaderFromEnv()
		}
		if err != nil {
			return nil, mode, err
		}
		return loader, mode, nil
	default:
		return nil, mode, fmt.Errorf("invalid DIALOGUE_SOURCE %q (supported: %s, %s, %s)", mode, ModeFile, ModeSQLite, ModePostgres)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
