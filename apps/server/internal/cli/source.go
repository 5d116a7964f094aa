package cli

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"npcchat/apps/server/internal/snapshot"
	"npcchat/persona"
)

// sourceFlags selects the dataset and persona files for commands that load
// the engine.
type sourceFlags struct {
	Mode       string
	Path       string
	SQLitePath string
	DSN        string
	Personas   string
}

func (f *sourceFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Mode, "source", "", "dataset source (file|sqlite|postgres); default $DIALOGUE_SOURCE or file")
	cmd.Flags().StringVar(&f.Path, "path", "", "dataset file for the file source; default $DIALOGUE_PATH")
	cmd.Flags().StringVar(&f.SQLitePath, "sqlite-path", "", "SQLite database path; default $DIALOGUE_SQLITE_PATH")
	cmd.Flags().StringVar(&f.DSN, "dsn", "", "Postgres DSN; default $DIALOGUE_DATABASE_DSN or $DATABASE_URL")
	cmd.Flags().StringVar(&f.Personas, "personas", os.Getenv("PERSONAS_PATH"), "persona definitions JSON file")
}

func (f *sourceFlags) open() (snapshot.Source, string, error) {
	return snapshot.NewSourceFromEnv(snapshot.Config{
		Mode:       f.Mode,
		Path:       f.Path,
		SQLitePath: f.SQLitePath,
		DSN:        f.DSN,
	})
}

func (f *sourceFlags) personas() (*persona.Registry, error) {
	reg := persona.NewRegistry()
	if p := strings.TrimSpace(f.Personas); p != "" {
		if err := reg.LoadFromFile(p); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
