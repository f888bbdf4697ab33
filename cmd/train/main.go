// Command train fits the rain classifier on a weather observations CSV and
// writes the artifact the service loads at startup.
//
// Usage:
//
//	go run ./cmd/train -data weatherAUS.csv -out ./artifacts
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/i474232898/umbrella-rain-service/internal/logging"
	"github.com/i474232898/umbrella-rain-service/internal/training"
)

func main() {
	_ = godotenv.Load()

	defaults := training.DefaultOptions()
	dataPath := flag.String("data", os.Getenv("TRAIN_DATA"), "weather observations CSV (Humidity9am, Temp9am, RainTomorrow)")
	outDir := flag.String("out", ".", "directory for rain_predictor.json and rain_model.json")
	version := flag.String("version", time.Now().UTC().Format("20060102T150405Z"), "artifact version recorded in the bundle")
	testFraction := flag.Float64("test-fraction", 0.2, "share of rows held out for validation")
	epochs := flag.Int("epochs", defaults.Epochs, "maximum training epochs")
	batchSize := flag.Int("batch-size", defaults.BatchSize, "mini-batch size")
	learningRate := flag.Float64("lr", defaults.LearningRate, "initial learning rate")
	patience := flag.Int("patience", defaults.Patience, "epochs without improvement before stopping")
	seed := flag.Uint64("seed", defaults.Seed, "seed for the split and weight initialization")
	flag.Parse()

	if *dataPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	logger := logging.New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := training.Run(ctx, training.Config{
		DataPath:     *dataPath,
		OutDir:       *outDir,
		Version:      *version,
		TestFraction: *testFraction,
		Options: training.Options{
			Epochs:       *epochs,
			BatchSize:    *batchSize,
			LearningRate: *learningRate,
			Patience:     *patience,
			Seed:         *seed,
		},
	}, logger)
	if err != nil {
		logger.Error("training failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("accuracy: %.4f (%d train / %d test rows, %d epochs)\n",
		report.Accuracy, report.TrainRows, report.TestRows, len(report.Epochs))
	fmt.Printf("bundle:   %s\nmodel:    %s\n", report.BundlePath, report.ModelPath)
}
