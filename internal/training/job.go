package training

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/i474232898/umbrella-rain-service/internal/model"
)

// Config describes one training run.
type Config struct {
	DataPath     string
	OutDir       string
	BundleName   string // default rain_predictor.json
	ModelName    string // default rain_model.json
	Version      string
	TestFraction float64 // default 0.2
	Options      Options
}

// Report summarizes a finished run.
type Report struct {
	Read       ReadStats
	TrainRows  int
	TestRows   int
	Epochs     []EpochStats
	Accuracy   float64
	BundlePath string
	ModelPath  string
}

// Run loads the dataset, fits the scaler and classifier, and writes the
// bundle plus model into cfg.OutDir.
func Run(ctx context.Context, cfg Config, logger *slog.Logger) (Report, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BundleName == "" {
		cfg.BundleName = "rain_predictor.json"
	}
	if cfg.ModelName == "" {
		cfg.ModelName = "rain_model.json"
	}
	if cfg.TestFraction <= 0 || cfg.TestFraction >= 1 {
		cfg.TestFraction = 0.2
	}
	opts := cfg.Options.withDefaults()

	var report Report

	f, err := os.Open(cfg.DataPath)
	if err != nil {
		return report, fmt.Errorf("open dataset: %w", err)
	}
	samples, stats, err := ReadCSV(f)
	f.Close()
	if err != nil {
		return report, fmt.Errorf("read dataset: %w", err)
	}
	report.Read = stats
	logger.Info("dataset loaded", "rows", stats.Rows, "kept", stats.Kept, "dropped", stats.Dropped)

	scaler, err := FitScaler(samples)
	if err != nil {
		return report, err
	}

	trainSamples, testSamples := StratifiedSplit(samples, cfg.TestFraction, opts.Seed)
	report.TrainRows, report.TestRows = len(trainSamples), len(testSamples)

	trainSet, err := NewDataset(trainSamples, scaler)
	if err != nil {
		return report, err
	}
	testSet, err := NewDataset(testSamples, scaler)
	if err != nil {
		return report, err
	}

	m, history, err := Train(ctx, trainSet, testSet, opts)
	if err != nil {
		return report, err
	}
	report.Epochs = history
	for _, e := range history {
		logger.Info("epoch finished",
			"epoch", e.Epoch,
			"train_loss", e.TrainLoss,
			"val_loss", e.ValLoss,
			"learning_rate", e.LearningRate,
		)
	}
	report.Accuracy = Accuracy(m, testSet)

	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return report, fmt.Errorf("create output dir: %w", err)
	}
	report.BundlePath = filepath.Join(cfg.OutDir, cfg.BundleName)
	report.ModelPath = filepath.Join(cfg.OutDir, cfg.ModelName)

	if err := model.WriteArtifact(report.BundlePath, report.ModelPath, cfg.ModelName, cfg.Version, scaler, m.Spec()); err != nil {
		return report, err
	}
	logger.Info("artifact written",
		"bundle", report.BundlePath,
		"model", report.ModelPath,
		"version", cfg.Version,
		"accuracy", report.Accuracy,
	)
	return report, nil
}
