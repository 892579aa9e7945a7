package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/quickgas/cylinder-ai/internal/forecast"
)

var (
	forecastModel  string
	forecastOutput string
)

var forecastCmd = &cobra.Command{
	Use:   "forecast <customers.json>",
	Short: "Predict next refill orders for customers",
	Long: `Reads a JSON file holding either a single customer object or an array of
customers, each with a customer_id, family_size and a chronologically
ordered list of {date, cylinder_size} orders, and forecasts when each will
place their next order.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		customers, err := readCustomers(args[0])
		if err != nil {
			return err
		}

		modelPath := forecastModel
		if modelPath == "" {
			modelPath = cfg.Forecast.ModelPath
		}

		forecaster, err := forecast.New(modelPath, forecast.WithLogger(logger))
		if err != nil {
			return err
		}
		defer forecaster.Close()

		predictions := forecaster.BatchPredict(customers)

		output := forecastOutput
		if output == "" {
			output = filepath.Join(cfg.Forecast.ReportDir, fmt.Sprintf("forecast_%s.json", uuid.NewString()))
		}
		if err := writeJSON(output, predictions); err != nil {
			return err
		}

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(predictions)
	},
}

func readCustomers(path string) ([]forecast.Customer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read customers %s: %w", path, err)
	}

	var customers []forecast.Customer
	if err := json.Unmarshal(data, &customers); err == nil {
		return customers, nil
	}

	var single forecast.Customer
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("parse customers %s: %w", path, err)
	}
	return []forecast.Customer{single}, nil
}

func writeJSON(path string, v any) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func init() {
	forecastCmd.Flags().StringVar(&forecastModel, "model", "", "path to the demand model (default from config)")
	forecastCmd.Flags().StringVarP(&forecastOutput, "output", "o", "", "report path (default reports/forecast_<id>.json)")
}
