package main

import (
	"helloev/internal/bookings/handler"
	"helloev/internal/bookings/repository"
	"helloev/internal/bookings/service"
	"helloev/internal/bookings/validator"
	"helloev/internal/events"
	"helloev/internal/reconciler"
	"helloev/pkg/app"
	"helloev/pkg/config"
	kafka_config "helloev/pkg/kafka/config"
)

const ServiceName = "bookings"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()

	cfg.Log.Info("Starting Bookings service")

	slotRepo := repository.NewMongoSlotRepository(cfg)
	ledgerRepo := repository.NewMongoLedgerRepository(cfg)

	publisher, err := events.NewPublisher(kafka_config.Load(), cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to initialize event publisher", "error", err)
	}

	bookingService := service.NewBookingService(
		slotRepo,
		ledgerRepo,
		validator.NewBookingValidator(cfg.Log),
		publisher,
		cfg,
	)
	cfg.Log.Info("Booking service initialized", "database", cfg.MongoDatabaseName)

	sweeper, err := reconciler.NewScheduler(reconciler.New(slotRepo, ledgerRepo, cfg), cfg)
	if err != nil {
		cfg.Log.Fatal("Failed to schedule reconciler", "error", err)
	}
	sweeper.Start()

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(
		ServiceName,
		handler.NewBookingHandler(bookingService, cfg.Log),
		handler.NewHealthHandler(cfg.Client.Mongo, cfg.Log),
	)
	serverApp.OnShutdown(sweeper.Stop)
	serverApp.OnShutdown(func() {
		if err := publisher.Close(); err != nil {
			cfg.Log.Error("Failed to close event publisher", "error", err)
		}
	})
	serverApp.Run()
}
