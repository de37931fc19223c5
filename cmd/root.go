package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridian-gems/gemscan/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "gemscan",
	Short: "Gemstone media analysis pipeline",
	Long:  "Resolves gemstone photos and videos, normalizes them, runs Claude vision tasks (cut, color, primary image, label/measurement OCR), cross-validates against declared metadata and persists reviewed analysis records.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
