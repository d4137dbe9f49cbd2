// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/epaper/internal/catalog"
	"github.com/pdiddy/epaper/pkg/types"
)

var historyCmd = &cobra.Command{
	Use:   "history [YYYYMMDD]",
	Short: "List archived issues",
	Long: `History lists the issues recorded in the catalog, newest first. With a
date argument it shows the pages of that issue.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().Bool("json", false, "output as JSON")
	historyCmd.Flags().String("catalog", "", "catalog database (default $XDG_DATA_HOME/epaper/catalog.db)")

	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	path, _ := cmd.Flags().GetString("catalog")
	if path == "" {
		path = viper.GetString(keyCatalog)
	}

	store, err := catalog.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	if len(args) == 1 {
		issue, err := store.Lookup(ctx, args[0])
		if errors.Is(err, catalog.ErrNotFound) {
			return fmt.Errorf("issue %s is not in the catalog", args[0])
		}
		if err != nil {
			return err
		}
		if asJSON {
			return enc.Encode(issue)
		}
		fmt.Fprintln(out, issueSummary(issue, issue.PageCount()))
		for _, p := range issue.Pages {
			fmt.Fprintf(out, "  page %2d  %8d bytes  %s\n", p.Number, p.Bytes, p.URL)
		}
		return nil
	}

	entries, err := store.List(ctx)
	if err != nil {
		return err
	}
	if asJSON {
		return enc.Encode(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No issues archived yet.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintln(out, issueSummary(e.Issue, e.PageCount))
	}
	total, err := store.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d issue(s) archived.\n", total)
	return nil
}

// issueSummary is one history line.
func issueSummary(issue types.Issue, pages int) string {
	return fmt.Sprintf("%s  %-10s  p=%-8s  %3d pages  %s",
		issue.Date, issue.EpaperDate, issue.Identifier, pages, issue.PDFPath)
}
