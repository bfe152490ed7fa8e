package main

import (
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"cmc-probe/internal/checkpoint"
	"cmc-probe/internal/dataset"
	"cmc-probe/internal/trainer"
)

func newTrainCmd(fv *flagValues) *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Train a linear classifier on frozen encoder features",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrain(cmd, fv)
		},
	}
}

func runTrain(cmd *cobra.Command, fv *flagValues) error {
	cfg, err := loadConfig(cmd, fv)
	if err != nil {
		return err
	}
	runID := uuid.NewString()
	logger := slog.Default().With("run_id", runID)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := newRegistry()
	defer serveMetrics(cfg.MetricsAddr, reg, logger)()

	p, err := buildProbe(cfg, reg, logger)
	if err != nil {
		return err
	}
	trainLoader, err := openLoader(ctx, cfg, p.transform, dataset.SplitTrain, true, logger)
	if err != nil {
		return err
	}
	valLoader, err := openLoader(ctx, cfg, p.transform, dataset.SplitVal, false, logger)
	if err != nil {
		return err
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	sink := openSink(cfg, runID, reg, logger)
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Warn("closing dashboard", "err", err)
		}
	}()

	loop := &trainer.Loop{
		Runner:     p.runner,
		Train:      trainLoader,
		Val:        valLoader,
		Classifier: p.classifier,
		Optimizer:  p.optimizer,
		Store:      store,
		Sink:       sink,
		Schedule: trainer.StepSchedule{
			Base:       cfg.LearningRate,
			Rate:       cfg.LRDecayRate,
			Boundaries: cfg.DecayEpochs(),
		},
		Epochs:   cfg.Epochs,
		SaveFreq: cfg.SaveFreq,
		BestKey:  checkpoint.BestKey(cfg.ModelName(), cfg.Layer),
		Options:  cfg.Options(),
		RunID:    runID,
		Logger:   logger,
	}

	if cfg.Resume != "" {
		if err := loop.Resume(storeKey(cfg, cfg.Resume)); err != nil {
			if !errors.Is(err, checkpoint.ErrCheckpointUnavailable) {
				return err
			}
			logger.Warn("no checkpoint found, starting fresh", "resume", cfg.Resume, "err", err)
		}
	}

	logger.Info("starting run", "model_name", cfg.ModelName(), "save_folder", cfg.SaveFolder(),
		"start_epoch", loop.StartEpoch(), "epochs", cfg.Epochs)
	res, err := loop.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("training finished", "best_acc", res.Best, "best_epoch", res.BestEpoch, "last_epoch", res.LastEpoch)
	return nil
}
