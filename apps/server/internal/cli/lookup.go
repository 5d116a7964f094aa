package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"npcchat/apps/server/internal/codec"
	"npcchat/dialogue"
)

// NewLookupCommand creates the lookup command.
func NewLookupCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		source sourceFlags
		req    dialogue.LookupRequest
		rawCtx string
	)

	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Resolve one request against the dataset and print the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rawCtx != "" {
				if err := json.Unmarshal([]byte(rawCtx), &req.PlayerContext); err != nil {
					return fmt.Errorf("parse --context: %w", err)
				}
			}
			if err := codec.ValidateRequest(&req); err != nil {
				return err
			}

			logger, err := rootOpts.logger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			src, _, err := source.open()
			if err != nil {
				return err
			}
			defer src.Close()
			registry, err := source.personas()
			if err != nil {
				return err
			}

			engine := dialogue.NewEngine(src,
				dialogue.WithEngineLogger(logger.Named("engine")),
				dialogue.WithIndexOptions(registry.IndexOptions()...),
			)
			if err := engine.Initialize(cmd.Context()); err != nil {
				return err
			}
			res, err := engine.Lookup(req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				return writeJSON(out, res)
			}
			fmt.Fprintf(out, "[%s %.2f %s] (%s) %s\n", res.Source, res.Confidence, res.EntryID, res.Mood, res.Text)
			return nil
		},
	}

	source.bind(cmd)
	cmd.Flags().StringVar(&req.NPCSlug, "npc", "", "NPC slug")
	cmd.Flags().StringVar(&req.Pool, "pool", "", "dialogue pool")
	cmd.Flags().StringVar(&req.ContextHash, "hash", "", "context fingerprint")
	cmd.Flags().StringVar(&rawCtx, "context", "", "player context as a JSON object")

	return cmd
}
