package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fuelwatch/internal/config"
	"fuelwatch/internal/handlers"
	"fuelwatch/internal/ingest"
	"fuelwatch/internal/logger"
	"fuelwatch/internal/models"
	"fuelwatch/internal/repository"
	"fuelwatch/internal/server"
	"fuelwatch/internal/service"
)

const (
	defaultPort   = "8080"
	defaultDBPath = "fuelwatch.db"

	// Consecutive persistence failures before the storage collaborator is
	// considered lost and the process exits.
	fatalWriteFailures = 25
	watchdogInterval   = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the estimation pipeline and dashboard API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	v, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.Get(v.GetString("log_level"))

	db, err := openDB(v, log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	thresholds, err := config.FromViper(v)
	if err != nil {
		log.Fatalw("invalid thresholds", "err", err)
	}
	cfgStore := config.NewStore(thresholds)
	cfgStore.Watch(v,
		func(t config.Thresholds) { log.Infow("thresholds reloaded") },
		func(err error) { log.Errorw("threshold reload rejected, keeping previous", "err", err) },
	)

	// wire dependencies
	repos := repository.NewRepository(db)
	services := service.NewService(repos, cfgStore, log)
	apiHandler := handlers.NewHandler(services, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go services.Pipeline.Run(ctx)

	// Live provider feed is optional; replay-only deployments skip it.
	var feed *ingest.MQTTSource
	if brokerURL := v.GetString("mqtt.broker_url"); brokerURL != "" {
		feed, err = ingest.NewMQTTSource(
			brokerURL,
			v.GetString("mqtt.client_id"),
			ingest.NewAdapter(),
			log,
			func(s models.TelemetrySample) { services.Pipeline.Submit(s) },
		)
		if err != nil {
			log.Fatalw("failed to connect telemetry feed", "err", err)
		}
		if err := feed.Start(); err != nil {
			log.Fatalw("failed to subscribe telemetry feed", "err", err)
		}
		defer feed.Close()
	}

	srv := &server.Server{}
	go func() {
		port := v.GetString("port")
		if port == "" {
			port = defaultPort
		}
		if err := srv.Run(port, apiHandler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()

	go storageWatchdog(ctx, services, log)

	waitForShutdown(cancel, srv, log)
	return nil
}

// openDB initializes the sqlite database using configuration.
func openDB(v *viper.Viper, log *logger.Logger) (*sql.DB, error) {
	dbPath := v.GetString("db.path")
	if dbPath == "" {
		log.Infow("db.path not set in config; using default file", "default", defaultDBPath)
		dbPath = defaultDBPath
	}
	return repository.InitDB(dbPath)
}

// storageWatchdog exits the process once persistence failures run past the
// fatal threshold.
func storageWatchdog(ctx context.Context, services *service.Service, log *logger.Logger) {
	p, ok := services.Pipeline.(*service.PipelineService)
	if !ok {
		return
	}
	t := time.NewTicker(watchdogInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := p.WriteFailures(); n >= fatalWriteFailures {
				log.Fatalw("persistence collaborator lost, shutting down", "consecutive_failures", n)
			}
		}
	}
}

// waitForShutdown listens for termination signals and drains gracefully.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down...")
	cancel()

	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}
}
