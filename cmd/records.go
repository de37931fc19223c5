package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/meridian-gems/gemscan/internal/store"
)

var (
	recordsNeedsReview bool
	recordsLimit       int
	recordsOffset      int
	recordsVersion     int
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspect persisted analysis records",
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List analysis records",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		filter := store.RecordFilter{Limit: recordsLimit, Offset: recordsOffset}
		if cmd.Flags().Changed("needs-review") {
			filter.NeedsReview = &recordsNeedsReview
		}

		recs, err := st.ListAnalyses(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "list records")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	},
}

var recordsShowCmd = &cobra.Command{
	Use:   "show <gemstone-id>",
	Short: "Show one gemstone's analysis record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		version := recordsVersion
		if version == 0 {
			version = cfg.Pipeline.Version
		}

		rec, err := st.GetAnalysis(ctx, args[0], version)
		if err != nil {
			return eris.Wrapf(err, "get record for %s", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

func init() {
	recordsListCmd.Flags().BoolVar(&recordsNeedsReview, "needs-review", false, "filter by review flag")
	recordsListCmd.Flags().IntVar(&recordsLimit, "limit", 100, "max records to return")
	recordsListCmd.Flags().IntVar(&recordsOffset, "offset", 0, "records to skip")
	recordsShowCmd.Flags().IntVar(&recordsVersion, "version", 0, "pipeline version (default: configured version)")

	recordsCmd.AddCommand(recordsListCmd)
	recordsCmd.AddCommand(recordsShowCmd)
	rootCmd.AddCommand(recordsCmd)
}
