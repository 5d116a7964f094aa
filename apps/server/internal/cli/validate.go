package cli

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"npcchat/apps/server/internal/snapshot"
	"npcchat/dialogue"
)

// ValidationResult is the machine-readable output of validate.
type ValidationResult struct {
	Valid   bool           `json:"valid"`
	Version string         `json:"version"`
	Total   int            `json:"total"`
	Indexed int            `json:"indexed"`
	Skipped map[string]int `json:"skipped,omitempty"`
	NPCs    []string       `json:"npcs"`

	// DefaultPools maps each NPC to the pool its fallback lines come from.
	DefaultPools map[string]string `json:"defaultPools"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		strict bool
		src    sourceFlags
	)

	cmd := &cobra.Command{
		Use:   "validate <dataset-file>",
		Short: "Build the lookup index from a dataset file and report skipped records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := snapshot.NewFileLoader(args[0]).Fetch(cmd.Context())
			if err != nil {
				return err
			}
			reg, err := src.personas()
			if err != nil {
				return err
			}
			idx, report := dialogue.BuildIndex(snap, reg.IndexOptions()...)
			result := ValidationResult{
				Valid:   report.SkippedTotal() == 0,
				Version: report.Version,
				Total:   report.Total,
				Indexed: report.Indexed,
				Skipped: report.Skipped,
				NPCs:    idx.NPCs(),
			}
			result.DefaultPools = make(map[string]string, len(result.NPCs))
			for _, npc := range result.NPCs {
				result.DefaultPools[npc] = idx.DefaultPoolFor(npc)
			}

			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				if err := writeJSON(out, result); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "version %s: %d of %d records indexed, %d npc(s)\n",
					result.Version, result.Indexed, result.Total, len(result.NPCs))
				reasons := make([]string, 0, len(result.Skipped))
				for reason := range result.Skipped {
					reasons = append(reasons, reason)
				}
				sort.Strings(reasons)
				for _, reason := range reasons {
					fmt.Fprintf(out, "  skipped %-24s %d\n", reason, result.Skipped[reason])
				}
			}

			if strict && !result.Valid {
				return fmt.Errorf("%d malformed record(s)", report.SkippedTotal())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "fail when any record is skipped")
	cmd.Flags().StringVar(&src.Personas, "personas", os.Getenv("PERSONAS_PATH"), "persona definitions JSON file")

	return cmd
}
