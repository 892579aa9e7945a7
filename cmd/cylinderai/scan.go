package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/quickgas/cylinder-ai/internal/vision"
)

var (
	scanModel  string
	scanOutput string
)

var scanCmd = &cobra.Command{
	Use:   "scan <image>",
	Short: "Scan a cylinder photo for visible safety defects",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		modelPath := scanModel
		if modelPath == "" {
			modelPath = cfg.Vision.ModelPath
		}

		scanner, err := vision.New(modelPath, vision.WithLogger(logger))
		if err != nil {
			return err
		}
		defer scanner.Close()

		report := scanner.Scan(args[0])

		output := scanOutput
		if output == "" {
			output = filepath.Join(cfg.Vision.ReportDir, fmt.Sprintf("scan_%s.json", uuid.NewString()))
		}
		if err := scanner.SaveReport(report, output); err != nil {
			return err
		}

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	},
}

func init() {
	scanCmd.Flags().StringVar(&scanModel, "model", "", "path to the safety model (default from config)")
	scanCmd.Flags().StringVarP(&scanOutput, "output", "o", "", "report path (default reports/scan_<id>.json)")
}
