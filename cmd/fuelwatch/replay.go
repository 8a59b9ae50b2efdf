package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"fuelwatch/internal/config"
	"fuelwatch/internal/ingest"
	"fuelwatch/internal/logger"
	"fuelwatch/internal/models"
	"fuelwatch/internal/repository"
	"fuelwatch/internal/service"
)

var replayFormat string

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Backfill state from a historical telemetry export",
	Long: `replay parses a csv or json-lines telemetry export and runs every
sample through the same pipeline as the live feed, in timestamp order per
vehicle. Useful for rebuilding state after a schema change or for testing
threshold tuning against recorded data.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReplay(args[0])
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayFormat, "format", "csv", "export format: csv or json")
}

func runReplay(filename string) error {
	v, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.Get(v.GetString("log_level"))

	db, err := openDB(v, log)
	if err != nil {
		return fmt.Errorf("init sqlite: %w", err)
	}
	defer db.Close()

	thresholds, err := config.FromViper(v)
	if err != nil {
		return fmt.Errorf("invalid thresholds: %w", err)
	}

	repos := repository.NewRepository(db)
	services := service.NewService(repos, config.NewStore(thresholds), log)

	reader := ingest.NewFileReader(ingest.NewAdapter(), replayFormat)

	var (
		samples []models.TelemetrySample
		skipped int
	)
	read, err := reader.ReadFile(filename,
		func(s models.TelemetrySample) { samples = append(samples, s) },
		func(line int, err error) {
			skipped++
			log.Warnw("skipping bad line", "line", line, "err", err)
		},
	)
	if err != nil {
		return fmt.Errorf("read %s: %w", filename, err)
	}

	// Exports are not always time-ordered; the pipeline discards
	// out-of-order samples, so sort before feeding.
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].CapturedAt.Before(samples[j].CapturedAt)
	})

	ctx := context.Background()
	processed, rejected := 0, 0
	for _, s := range samples {
		if err := services.Pipeline.Process(ctx, s); err != nil {
			rejected++
			log.Warnw("sample rejected", "vehicle_id", s.VehicleID, "err", err)
			continue
		}
		processed++
	}

	fmt.Printf("replay complete: %d read, %d skipped, %d processed, %d rejected\n",
		read, skipped, processed, rejected)
	return nil
}
