package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cmc-probe/internal/checkpoint"
	"cmc-probe/internal/dataset"
	"cmc-probe/internal/trainer"
)

func newEvaluateCmd(fv *flagValues) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a trained classifier checkpoint on the validation split",
		Long: `Evaluate loads a classifier checkpoint and runs one pass over the
validation split of the configured oracle (original or a corruption).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(cmd, fv, key)
		},
	}
	cmd.Flags().StringVar(&key, "checkpoint", "", "Checkpoint key or path (defaults to the best checkpoint)")
	return cmd
}

func runEvaluate(cmd *cobra.Command, fv *flagValues, key string) error {
	cfg, err := loadConfig(cmd, fv)
	if err != nil {
		return err
	}
	logger := slog.Default()
	if key == "" {
		key = checkpoint.BestKey(cfg.ModelName(), cfg.Layer)
	} else {
		key = storeKey(cfg, key)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := newRegistry()
	defer serveMetrics(cfg.MetricsAddr, reg, logger)()

	p, err := buildProbe(cfg, reg, logger)
	if err != nil {
		return err
	}
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.Load(key)
	if err != nil {
		return withAvailableKeys(store, err)
	}
	if err := p.classifier.LoadStateDict(rec.Classifier); err != nil {
		return fmt.Errorf("load classifier: %w", err)
	}

	loader, err := openLoader(ctx, cfg, p.transform, dataset.SplitVal, false, logger)
	if err != nil {
		return err
	}
	sum, err := p.runner.Run(ctx, trainer.Eval, rec.Epoch, loader.Epoch(ctx, rec.Epoch))
	if err != nil {
		return err
	}
	logger.Info("evaluation finished", "checkpoint", key, "epoch", rec.Epoch, "oracle", cfg.Oracle,
		"acc1", sum.Top1, "acc5", sum.Top5, "loss", sum.Loss, "samples", sum.Samples)
	fmt.Fprintf(cmd.OutOrStdout(), "oracle=%s acc1=%.3f acc5=%.3f loss=%.4f\n", cfg.Oracle, sum.Top1, sum.Top5, sum.Loss)
	return nil
}
