package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"npcchat/apps/server/internal/auth"
)

// NewHashTokenCommand creates the hash-token command, which prints the value
// to export as STATS_TOKEN_HASH.
func NewHashTokenCommand(_ *RootOptions) *cobra.Command {
	var cost int

	cmd := &cobra.Command{
		Use:   "hash-token <token>",
		Short: "Hash an operator token for STATS_TOKEN_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashToken(args[0], cost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", 0, "bcrypt cost (0 uses the library default)")

	return cmd
}
