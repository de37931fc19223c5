package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridian-gems/gemscan/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <inventory.xlsx>",
	Short: "Load a gemstone catalog from an inventory spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		inv, err := ingest.ReadInventory(args[0])
		if err != nil {
			return err
		}

		zap.L().Info("inventory parsed",
			zap.String("file", args[0]),
			zap.Int("gemstones", len(inv.Gemstones)),
			zap.Int("assets", len(inv.Assets)),
		)

		return ingest.Load(ctx, st, inv)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
