package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aethra/keybot/engine/key"
	"github.com/aethra/keybot/pkg/config"
)

func GenerateCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Print random keys (not stored)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())
			if count < 1 {
				return fmt.Errorf("count must be at least 1")
			}
			for range count {
				k, err := key.Generate(cfg.Keys.Prefix, cfg.Keys.Length)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of keys to generate")
	return cmd
}
