package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	"github.com/aethra/keybot/engine/key"
	"github.com/aethra/keybot/pkg/config"
	"github.com/aethra/keybot/pkg/logger"
)

// withService runs fn against a key service built from the command config.
// Offline commands act as the configured administrator.
func withService(cmd *cobra.Command, fn func(ctx context.Context, svc *key.Service) error) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	c, err := newContainer(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close(ctx)
	session, err := restSession(cfg)
	if err != nil {
		return err
	}
	svc, err := c.service(roleGranter(session, cfg), nil)
	if err != nil {
		return err
	}
	return fn(ctx, svc)
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = w.Write(pretty.Pretty(data))
	return err
}

func reportOutcome(ctx context.Context, w io.Writer, out key.Outcome) {
	for _, f := range out.Failures {
		logger.FromContext(ctx).Warn("Secondary effect failed", "effect", f.Effect, "error", f.Err)
		fmt.Fprintf(w, "warning: %s failed: %v\n", f.Effect, f.Err)
	}
}

func KeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage keys without the Discord gateway",
	}
	cmd.AddCommand(
		keysAddCmd(),
		keysDeleteCmd(),
		keysUpdateCmd(),
		keysListCmd(),
		keysRedeemedCmd(),
		keysRedeemCmd(),
		keysRevokeCmd(),
	)
	return cmd
}

func keysAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add KEY OWNER",
		Short: "Add a key to the ledger and the registry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *key.Service) error {
				if err := svc.AddKey(ctx, args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s for %s\n", args[0], args[1])
				return nil
			})
		},
	}
}

func keysDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete KEY",
		Short: "Remove a key from the ledger and the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *key.Service) error {
				if err := svc.DeleteKey(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func keysUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update KEY OWNER",
		Short: "Change the registry owner label of a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *key.Service) error {
				if err := svc.UpdateKeyOwner(ctx, args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "updated %s to %s\n", args[0], args[1])
				return nil
			})
		},
	}
}

func keysListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List keys that have not been redeemed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, func(ctx context.Context, svc *key.Service) error {
				available, err := svc.ListAvailable(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), available)
				}
				for _, k := range available {
					fmt.Fprintln(cmd.OutOrStdout(), k)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func keysRedeemedCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "redeemed",
		Short: "List redemptions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, func(ctx context.Context, svc *key.Service) error {
				records, err := svc.ListRedeemed(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), records)
				}
				for _, r := range records {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", r.RequesterID, r.Key)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func keysRedeemCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "redeem USER_ID KEY",
		Short: "Redeem a key on behalf of a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *key.Service) error {
				actingAs := config.FromContext(ctx).Discord.AdminID
				if actingAs == "" {
					actingAs = args[0]
				}
				out, err := svc.Redeem(ctx, args[0], args[1], actingAs)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "redeemed %s for %s\n", out.Key, args[0])
				reportOutcome(ctx, cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
}

func keysRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke USER_ID",
		Short: "Remove a user's redemption",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *key.Service) error {
				out, err := svc.Revoke(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "revoked %s from %s\n", out.Key, args[0])
				reportOutcome(ctx, cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
}

func ReconcileCmd() *cobra.Command {
	var (
		apply bool
		label string
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare the ledger, registry and redemptions",
		Long: `Compare the ledger, registry and redemptions and print the drift.

With --apply, keys missing from the registry are added under --label and
registry entries unknown to the ledger are removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if apply && label == "" {
				return fmt.Errorf("--label is required with --apply")
			}
			return withService(cmd, func(ctx context.Context, svc *key.Service) error {
				start := time.Now()
				var (
					drift key.Drift
					err   error
				)
				if apply {
					drift, err = svc.SyncRegistry(ctx, label)
				} else {
					drift, err = svc.Reconcile(ctx)
				}
				if err != nil {
					return err
				}
				logger.FromContext(ctx).Debug("Reconcile finished", "duration", time.Since(start))
				return writeJSON(cmd.OutOrStdout(), driftReport(drift, apply))
			})
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "Repair the registry")
	cmd.Flags().StringVar(&label, "label", "", "Owner label for keys added to the registry")
	return cmd
}

type driftOutput struct {
	Applied      bool                   `json:"applied"`
	LedgerOnly   []string               `json:"ledger_only"`
	RegistryOnly []string               `json:"registry_only"`
	Orphaned     []key.RedemptionRecord `json:"orphaned_redemptions"`
}

func driftReport(d key.Drift, applied bool) driftOutput {
	out := driftOutput{
		Applied:      applied,
		LedgerOnly:   d.LedgerOnly,
		RegistryOnly: d.RegistryOnly,
		Orphaned:     d.Orphaned,
	}
	if out.LedgerOnly == nil {
		out.LedgerOnly = []string{}
	}
	if out.RegistryOnly == nil {
		out.RegistryOnly = []string{}
	}
	if out.Orphaned == nil {
		out.Orphaned = []key.RedemptionRecord{}
	}
	return out
}
