package trainer

import "log/slog"

// Progress is the periodic in-pass report. Times are in seconds; Avg fields
// cover the pass so far, the others the latest batch.
type Progress struct {
	Mode    Mode
	Epoch   int
	Batch   int
	Batches int

	BatchTime    float64
	AvgBatchTime float64
	DataTime     float64
	AvgDataTime  float64

	Loss    float64
	AvgLoss float64
	Top1    float64
	AvgTop1 float64
	Top5    float64
	AvgTop5 float64

	// Window figures cover the batches since the previous report.
	ImagesPerSec float64
	DataMS       float64
	ComputeMS    float64
}

// Reporter receives progress reports. Failures never abort a pass.
type Reporter interface {
	Report(Progress) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Progress) error

// Report implements Reporter.
func (f ReporterFunc) Report(p Progress) error { return f(p) }

// LogReporter writes progress as structured log lines.
type LogReporter struct {
	Logger *slog.Logger
}

// Report implements Reporter.
func (r LogReporter) Report(p Progress) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("progress",
		"mode", p.Mode.String(),
		"epoch", p.Epoch,
		"batch", p.Batch,
		"batches", p.Batches,
		"batch_time", p.BatchTime,
		"batch_time_avg", p.AvgBatchTime,
		"data_time", p.DataTime,
		"data_time_avg", p.AvgDataTime,
		"loss", p.Loss,
		"loss_avg", p.AvgLoss,
		"acc1", p.Top1,
		"acc1_avg", p.AvgTop1,
		"acc5", p.Top5,
		"acc5_avg", p.AvgTop5,
		"images_per_sec", p.ImagesPerSec,
		"data_ms", p.DataMS,
		"compute_ms", p.ComputeMS,
	)
	return nil
}
