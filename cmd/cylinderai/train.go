package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quickgas/cylinder-ai/internal/config"
	"github.com/quickgas/cylinder-ai/internal/forecast"
	"github.com/quickgas/cylinder-ai/internal/nn"
	"github.com/quickgas/cylinder-ai/internal/vision"
)

var (
	trainDir       string
	valDir         string
	demandDataPath string
	checkpointPath string
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the pipeline models from scratch or from a checkpoint",
}

var trainVisionCmd = &cobra.Command{
	Use:   "vision",
	Short: "Train the safety classifier on labeled cylinder images",
	Long: `Trains the defect classifier on directory trees laid out as
<dir>/<class>/<image> for the classes safe, rust, dent, valve_damage,
expired and leaking. Training images are randomly augmented every epoch;
validation images are not.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if trainDir == "" || valDir == "" {
			return fmt.Errorf("--train-dir and --val-dir are required")
		}

		settings := cfg.Vision.Train
		trainSet, err := vision.LoadDataset(trainDir, true, settings.Seed)
		if err != nil {
			return err
		}
		valSet, err := vision.LoadDataset(valDir, false, settings.Seed)
		if err != nil {
			return err
		}
		logger.Info("datasets loaded",
			zap.Int("train_samples", trainSet.Len()),
			zap.Int("val_samples", valSet.Len()))

		net := nn.NewCylinderNet()
		path := resolveCheckpoint(cfg.Vision)
		if _, err := os.Stat(path); err == nil {
			if err := net.Restore(path); err != nil {
				return err
			}
			logger.Info("resumed from checkpoint", zap.String("path", path))
		}

		return runTraining(net, trainSet, valSet, settings, path, nn.MetricCategorical)
	},
}

var trainDemandCmd = &cobra.Command{
	Use:   "demand",
	Short: "Train the demand forecaster on pre-split sequence data",
	Long: `Trains the order forecaster from a JSON file of pre-split data:

  {"train": {"features": [[[...]]], "labels": [[...]]},
   "validation": {"features": [[[...]]], "labels": [[...]]}}

where each feature entry is a 30x7 sequence and each label a 7-day
order-indicator vector.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if demandDataPath == "" {
			return fmt.Errorf("--data is required")
		}

		trainSet, valSet, err := readDemandData(demandDataPath)
		if err != nil {
			return err
		}
		logger.Info("datasets loaded",
			zap.Int("train_samples", trainSet.Len()),
			zap.Int("val_samples", valSet.Len()))

		net := nn.NewDemandNet()
		path := resolveCheckpoint(cfg.Forecast)
		if _, err := os.Stat(path); err == nil {
			if err := net.Restore(path); err != nil {
				return err
			}
			logger.Info("resumed from checkpoint", zap.String("path", path))
		}

		return runTraining(net, trainSet, valSet, cfg.Forecast.Train, path, nn.MetricBinary)
	},
}

func resolveCheckpoint(pipeline config.PipelineConfig) string {
	if checkpointPath != "" {
		return checkpointPath
	}
	return pipeline.CheckpointPath
}

func runTraining(model nn.Model, trainSet, valSet nn.Dataset, settings config.TrainSettings, path string, metric nn.Metric) error {
	history, err := nn.Train(model, trainSet, valSet, nn.TrainConfig{
		Epochs:            settings.Epochs,
		BatchSize:         settings.BatchSize,
		LearnRate:         settings.LearnRate,
		EarlyStopPatience: settings.EarlyStopPatience,
		PlateauPatience:   settings.PlateauPatience,
		PlateauFactor:     settings.PlateauFactor,
		Seed:              settings.Seed,
		CheckpointPath:    path,
		Metric:            metric,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	logger.Info("training finished",
		zap.Int("epochs_run", len(history.TrainLoss)),
		zap.Bool("stopped_early", history.StoppedEarly),
		zap.Float64("best_val_loss", history.BestValLoss),
		zap.Float64("best_val_accuracy", history.BestValAccuracy),
		zap.String("checkpoint", path))
	return nil
}

type demandSplit struct {
	Features [][][]float64 `json:"features"`
	Labels   [][]float64   `json:"labels"`
}

type demandData struct {
	Train      demandSplit `json:"train"`
	Validation demandSplit `json:"validation"`
}

func readDemandData(path string) (*forecast.Dataset, *forecast.Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read training data %s: %w", path, err)
	}
	var data demandData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, nil, fmt.Errorf("parse training data %s: %w", path, err)
	}

	trainSet, err := forecast.NewDataset(data.Train.Features, data.Train.Labels)
	if err != nil {
		return nil, nil, fmt.Errorf("train split: %w", err)
	}
	valSet, err := forecast.NewDataset(data.Validation.Features, data.Validation.Labels)
	if err != nil {
		return nil, nil, fmt.Errorf("validation split: %w", err)
	}
	return trainSet, valSet, nil
}

func init() {
	trainVisionCmd.Flags().StringVar(&trainDir, "train-dir", "", "labeled training image directory")
	trainVisionCmd.Flags().StringVar(&valDir, "val-dir", "", "labeled validation image directory")
	trainDemandCmd.Flags().StringVar(&demandDataPath, "data", "", "pre-split JSON training data")
	trainCmd.PersistentFlags().StringVar(&checkpointPath, "checkpoint", "", "checkpoint path (default from config)")

	trainCmd.AddCommand(trainVisionCmd)
	trainCmd.AddCommand(trainDemandCmd)
}
