package main

import (
	"helloev/internal/stations/handler"
	"helloev/internal/stations/repository"
	"helloev/internal/stations/service"
	"helloev/internal/stations/validator"
	"helloev/pkg/app"
	"helloev/pkg/config"
)

const ServiceName = "stations"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()

	cfg.Log.Info("Starting Stations service")
	stationService := initServices(cfg)

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(
		ServiceName,
		handler.NewStationHandler(stationService, cfg.Log),
		handler.NewHealthHandler(cfg.Client.Mongo, cfg.Log),
	)
	serverApp.Run()
}

func initServices(cfg *config.Config) service.StationService {
	stationValidator := validator.NewStationValidator(cfg.Log)
	stationRepo := repository.NewMongoStationRepository(cfg)
	stationService := service.NewStationService(
		stationRepo,
		stationValidator,
		cfg,
	)

	cfg.Log.Info("Station service initialized", "database", cfg.MongoDatabaseName)
	return stationService
}
