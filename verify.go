package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/foldersync/foldersync/internal/changetree"
	"github.com/foldersync/foldersync/internal/config"
	"github.com/foldersync/foldersync/internal/hashcache"
	"github.com/foldersync/foldersync/internal/model"
)

// errVerifyMismatch signals a non-zero exit without the generic "Error:"
// preamble — verify's table output already explains what was found.
var errVerifyMismatch = errors.New("verify: mismatches found")

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check local files against the sync-state database by content hash",
		Long: `Walk the profile's local root and compare it with the sync-state
database. A file whose modification time differs from the recorded one is
hashed and compared with the content hash recorded for it, so
timestamp-only changes are ignored; a file with no recorded hash is
reported as changed. A file whose modification time still matches is
counted as verified without reading its content. Also reports anything
created or deleted since the last sync.

Exit code 0 if everything verifies; exit code 1 if any mismatches are found.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVerify(cmd.Context())
		},
	}
}

type verifyMismatch struct {
	Path   string `json:"path"`
	Status string `json:"status"`
}

type verifyReport struct {
	Verified   int              `json:"verified"`
	Mismatches []verifyMismatch `json:"mismatches"`
}

func runVerify(ctx context.Context) error {
	cc := mustCLIContext(ctx)
	profile := cc.Profile

	store := openStore(profile, cc.Logger)

	if err := store.Open(ctx); err != nil {
		return fmt.Errorf("verify: opening state database: %w", err)
	}

	defer store.Close(ctx)

	cache, err := hashcache.Load(config.ProfileHashCachePath(profile.Name))
	if err != nil {
		return fmt.Errorf("verify: loading hash cache: %w", err)
	}

	tree, err := changetree.BuildLocal(ctx, profile.LocalRoot, store, buildFilter(profile), changetree.WithHashOnMtimeMismatch(cache))
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	report := &verifyReport{}
	walkVerify(tree, "/", report)

	if cc.Flags.JSON {
		if err := printVerifyJSON(report); err != nil {
			return err
		}
	} else {
		printVerifyTable(report)
	}

	if len(report.Mismatches) > 0 {
		return errVerifyMismatch
	}

	return nil
}

func walkVerify(n *changetree.Node, path string, report *verifyReport) {
	if path != "/" {
		switch n.Change {
		case changetree.ChangeUnknown:
			if n.Kind == model.KindFile {
				report.Verified++
			}
		case changetree.ChangeCreated:
			report.Mismatches = append(report.Mismatches, verifyMismatch{Path: path, Status: "created"})
		case changetree.ChangeChanged:
			report.Mismatches = append(report.Mismatches, verifyMismatch{Path: path, Status: "changed"})
		case changetree.ChangeDeleted:
			report.Mismatches = append(report.Mismatches, verifyMismatch{Path: path, Status: "deleted"})
		}
	}

	for name, child := range n.Children {
		childPath := path
		if childPath != "/" {
			childPath += "/"
		}

		childPath += name

		walkVerify(child, childPath, report)
	}
}

func printVerifyJSON(report *verifyReport) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(report)
}

func printVerifyTable(report *verifyReport) {
	fmt.Printf("Verified: %d files\n", report.Verified)

	if len(report.Mismatches) == 0 {
		fmt.Println("All files verified successfully.")
		return
	}

	fmt.Printf("Mismatches: %d\n\n", len(report.Mismatches))

	headers := []string{"PATH", "STATUS"}
	rows := make([][]string, len(report.Mismatches))

	for i := range report.Mismatches {
		m := &report.Mismatches[i]
		rows[i] = []string{m.Path, m.Status}
	}

	printTable(os.Stdout, headers, rows)
}
