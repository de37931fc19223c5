package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-gems/gemscan/internal/ingest"
	"github.com/meridian-gems/gemscan/internal/model"
	"github.com/meridian-gems/gemscan/internal/pipeline"
)

var (
	batchFile  string
	batchXLSX  string
	batchLimit int
)

var batchCmd = &cobra.Command{
	Use:   "batch [gemstone-id...]",
	Short: "Analyze a batch of gemstones",
	Long:  "Gemstone IDs come from positional args, a newline-delimited file (- for stdin), or the first sheet of an inventory XLSX.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		ids, err := collectBatchIDs(args)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		gemstoneTimeout := time.Duration(cfg.Batch.GemstoneTimeoutMS) * time.Millisecond
		return processBatch(ctx, ids, batchLimit, cfg.Batch.MaxConcurrentGemstones, gemstoneTimeout, env.Pipeline)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "", "newline-delimited gemstone ID list (- for stdin)")
	batchCmd.Flags().StringVar(&batchXLSX, "xlsx", "", "inventory spreadsheet to take IDs from")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max gemstones to process (0 = all)")
	rootCmd.AddCommand(batchCmd)
}

func collectBatchIDs(args []string) ([]string, error) {
	ids := append([]string{}, args...)

	if batchFile != "" {
		var r io.Reader
		if batchFile == "-" {
			r = os.Stdin
		} else {
			f, err := os.Open(batchFile)
			if err != nil {
				return nil, eris.Wrapf(err, "batch: open %s", batchFile)
			}
			defer f.Close()
			r = f
		}
		fileIDs, err := readIDLines(r)
		if err != nil {
			return nil, err
		}
		ids = append(ids, fileIDs...)
	}

	if batchXLSX != "" {
		inv, err := ingest.ReadInventory(batchXLSX)
		if err != nil {
			return nil, err
		}
		ids = append(ids, inv.IDs()...)
	}

	if len(ids) == 0 {
		return nil, eris.New("batch: no gemstone IDs given")
	}
	return dedupe(ids), nil
}

func readIDLines(r io.Reader) ([]string, error) {
	var ids []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		id := strings.TrimSpace(sc.Text())
		if id == "" || strings.HasPrefix(id, "#") {
			continue
		}
		ids = append(ids, id)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "batch: read ID list")
	}
	return ids, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// analyzeFunc is the callback signature for analyzing one gemstone.
type analyzeFunc func(ctx context.Context, gemstoneID string) (*model.AnalysisRecord, error)

// processBatch sweeps the IDs concurrently. Individual failures are logged
// and counted, never aborting the sweep; cancellation stops the remainder.
func processBatch(ctx context.Context, ids []string, limit, concurrency int, gemstoneTimeout time.Duration, p *pipeline.Pipeline) error {
	return processBatchWith(ctx, ids, limit, concurrency, gemstoneTimeout, p.Run)
}

func processBatchWith(ctx context.Context, ids []string, limit, concurrency int, gemstoneTimeout time.Duration, analyze analyzeFunc) error {
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	if gemstoneTimeout <= 0 {
		gemstoneTimeout = 5 * time.Minute
	}

	zap.L().Info("processing batch",
		zap.Int("gemstones", len(ids)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed, flagged atomic.Int64

	for _, id := range ids {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			log := zap.L().With(zap.String("gemstone_id", id))

			// A stop signal takes effect between gemstones: the in-flight
			// run is shielded from cancellation and bounded by its own
			// deadline instead of being aborted mid-call.
			runCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), gemstoneTimeout)
			rec, err := analyze(runCtx, id)
			cancel()
			if err != nil {
				failed.Add(1)
				log.Error("analysis failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}

			succeeded.Add(1)
			if rec.NeedsReview {
				flagged.Add(1)
			}
			log.Info("analysis complete",
				zap.Int("extractions", len(rec.Extractions)),
				zap.Bool("needs_review", rec.NeedsReview),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
		zap.Int64("needs_review", flagged.Load()),
	)
	return nil
}
