package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/foldersync/foldersync/internal/config"
	"github.com/foldersync/foldersync/internal/conflictlog"
)

func newConflictsCmd() *cobra.Command {
	var flagClear bool

	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List conflicts logged by past sync runs",
		Long: `Display every impossible local/remote change combination a past
sync run hit, together with the conflict strategy applied to resolve it.
Use --clear to discard the ledger once reviewed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConflicts(cmd.Context(), flagClear)
		},
	}

	cmd.Flags().BoolVar(&flagClear, "clear", false, "clear the conflict ledger after printing it")

	return cmd
}

func runConflicts(ctx context.Context, clear bool) error {
	cc := mustCLIContext(ctx)
	profile := cc.Profile

	ledgerPath := config.ProfileConflictLedgerPath(profile.Name)

	entries, err := conflictlog.Load(ledgerPath)
	if err != nil {
		return fmt.Errorf("reading conflict ledger: %w", err)
	}

	if cc.Flags.JSON {
		if err := printConflictsJSON(entries); err != nil {
			return err
		}
	} else {
		printConflictsTable(cc, entries)
	}

	if clear {
		if err := conflictlog.Clear(ledgerPath); err != nil {
			return fmt.Errorf("clearing conflict ledger: %w", err)
		}
	}

	return nil
}

func printConflictsJSON(entries []conflictlog.Entry) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(entries)
}

func printConflictsTable(cc *CLIContext, entries []conflictlog.Entry) {
	if len(entries) == 0 {
		cc.Statusf("No conflicts logged.\n")
		return
	}

	for _, e := range entries {
		cc.Statusf("%s  %-8s  %-40s  local=%s remote=%s  %s\n",
			e.Time.Format("2006-01-02T15:04:05"), e.RunID, e.Path, e.Local, e.Remote, e.Detail)
	}
}
