package main

import (
	"context"
	"os"

	"github.com/bikeweatherapp/bike-weather-api/internal/app"
	"github.com/bikeweatherapp/bike-weather-api/internal/config"
	"github.com/bikeweatherapp/bike-weather-api/pkg/logger"
	"github.com/joho/godotenv"

	_ "modernc.org/sqlite"
)

// @title Bike Weather Digest API
// @version 1.0
// @description API for subscribing to daily bike weather digests
// @host localhost:8080
// @BasePath /api/
func main() {
	_ = godotenv.Load()

	cfg, err := config.NewConfig()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(cfg.LogsPath, "BikeWeatherAPI")

	application := app.New(*cfg, log)
	container := application.Init()

	// "dispatch" runs one digest batch and exits; anything else serves HTTP
	// with the cron scheduler attached.
	if len(os.Args) > 1 && os.Args[1] == "dispatch" {
		summary, err := container.Orchestrator.Run(context.Background())
		if err != nil {
			// Only an unreadable subscriber list gets here; partial send
			// failures are normal operation and land in the summary.
			log.Error().Err(err).Msg("dispatch run failed")
			os.Exit(1)
		}
		log.Info().
			Int("sent", summary.Sent).
			Int("skipped", summary.Skipped).
			Int("failed", summary.Failed).
			Msg("dispatch run finished")
		if err := application.Stop(container); err != nil {
			log.Error().Err(err).Msg("failed to shutdown application")
		}
		return
	}

	defer func() {
		if err := application.Stop(container); err != nil {
			log.Panic().Err(err).Msg("failed to shutdown application")
		}
		log.Info().Msg("application shutdown successfully")
	}()

	if err := application.Start(container); err != nil {
		log.Panic().Err(err).Msg("server stopped with error")
	}
}
