package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"npcchat/apps/server/internal/snapshot"
)

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	var sqlitePath string

	cmd := &cobra.Command{
		Use:   "import <dataset-file>",
		Short: "Replace the SQLite dataset with the contents of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := rootOpts.logger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			snap, err := snapshot.NewFileLoader(args[0]).Fetch(cmd.Context())
			if err != nil {
				return err
			}

			var db *snapshot.SQLiteLoader
			if sqlitePath != "" {
				db, err = snapshot.NewSQLiteLoader(sqlitePath)
			} else {
				db, err = snapshot.NewSQLiteLoaderFromEnv()
			}
			if err != nil {
				return fmt.Errorf("open sqlite dataset: %w", err)
			}
			defer db.Close()

			n, err := db.Import(cmd.Context(), snap)
			if err != nil {
				return fmt.Errorf("import dataset: %w", err)
			}
			logger.Info("dataset imported", zap.String("file", args[0]), zap.String("version", snap.Version), zap.Int("records", n))

			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				return writeJSON(out, map[string]any{"version": snap.Version, "records": n})
			}
			fmt.Fprintf(out, "imported %d record(s) at version %s\n", n, snap.Version)
			return nil
		},
	}
	cmd.Flags().StringVar(&sqlitePath, "sqlite-path", "", "SQLite database path; default $DIALOGUE_SQLITE_PATH")

	return cmd
}
