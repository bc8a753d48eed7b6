package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/foldersync/foldersync/internal/config"
	"github.com/foldersync/foldersync/internal/model"
	"github.com/foldersync/foldersync/internal/remotejob"
)

func newLsCmd() *cobra.Command {
	var flagRecursive bool

	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List a remote folder's contents",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/"
			if len(args) > 0 {
				path = args[0]
			}

			return runLs(cmd.Context(), path, flagRecursive)
		},
	}

	cmd.Flags().BoolVarP(&flagRecursive, "recursive", "r", false, "list the full subtree (backend permitting)")

	return cmd
}

func runLs(ctx context.Context, path string, recursive bool) error {
	cc := mustCLIContext(ctx)
	profile := cc.Profile

	factory, err := buildJobFactory(profile, config.ProfileCredentialPath(profile.Name), metadataHTTPClient(), cc.Logger)
	if err != nil {
		return err
	}

	result, err := factory.ListFiles(ctx, path, remotejob.ListOptions{Recursive: recursive})
	if err != nil {
		return fmt.Errorf("listing %q: %w", path, err)
	}

	children := result.Children

	sort.Slice(children, func(i, j int) bool {
		if (children[i].Kind == model.KindDirectory) != (children[j].Kind == model.KindDirectory) {
			return children[i].Kind == model.KindDirectory
		}

		return children[i].Name < children[j].Name
	})

	if cc.Flags.JSON {
		return printLsJSON(children)
	}

	printLsTableTo(os.Stdout, children)

	return nil
}

type lsJSONItem struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	SyncAttr string `json:"sync_attr,omitempty"`
}

func printLsJSON(children []model.FileInfo) error {
	out := make([]lsJSONItem, 0, len(children))
	for _, c := range children {
		out = append(out, lsJSONItem{Name: c.Name, Kind: c.Kind.String(), SyncAttr: c.SyncAttr})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}

func printLsTableTo(w io.Writer, children []model.FileInfo) {
	for _, c := range children {
		marker := " "
		if c.Kind == model.KindDirectory {
			marker = "d"
		}

		fmt.Fprintf(w, "%s  %s\n", marker, c.Name)
	}
}
