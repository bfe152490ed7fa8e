package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"cmc-probe/internal/dataset"
	"cmc-probe/internal/encoder"
)

func newInitEncoderCmd(fv *flagValues) *cobra.Command {
	var (
		out   string
		epoch int
	)
	cmd := &cobra.Command{
		Use:   "init-encoder",
		Short: "Write a randomly initialised encoder checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfig(cmd, fv)
			if err != nil {
				return err
			}
			if out == "" {
				out = cfg.EncoderPath()
			}
			if out == "" {
				return fmt.Errorf("init-encoder: --out or --model-path is required")
			}
			view, err := dataset.ParseView(cfg.View)
			if err != nil {
				return err
			}
			a, b := dataset.Transform{Size: cfg.ImageSize, View: view}.Widths()
			enc, err := encoder.Init(cfg.Model, a, b, cfg.Seed)
			if err != nil {
				return err
			}
			if err := enc.Save(out, epoch); err != nil {
				return err
			}
			slog.Info("wrote encoder", "path", out, "arch", enc.Arch().Name, "inputs", a+b, "epoch", epoch)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "Output path (defaults to the resolved model path)")
	cmd.Flags().IntVar(&epoch, "encoder-epoch", 240, "Pretraining epoch recorded in the checkpoint")
	return cmd
}
