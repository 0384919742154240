package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/rferraz/library-circulation/internal/config"
	"github.com/rferraz/library-circulation/internal/database"
	"github.com/rferraz/library-circulation/internal/handler"
	"github.com/rferraz/library-circulation/internal/middleware"
	"github.com/rferraz/library-circulation/internal/queue"
	"github.com/rferraz/library-circulation/internal/repository"
	"github.com/rferraz/library-circulation/internal/router"
	"github.com/rferraz/library-circulation/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env wins

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	if err := database.EnsureSchema(db); err != nil {
		log.Fatalf("schema: %v", err)
	}

	patrons := repository.NewPatronRepo(db)
	catalog := repository.NewCatalogRepo(db)
	loans := repository.NewLoanRepo(db)
	reservations := repository.NewReservationRepo(db)

	engine := service.NewCirculation(db, patrons, catalog, loans, reservations, cfg.Policy)
	publisher := queue.NewAMQPPublisher()

	e := echo.New()

	// Redis is optional: without it the limiter and cache pass through.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable; rate limiting and response cache disabled")
	}
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	cached := middleware.NewResponseCache(config.LoadCacheConfig(), rdb)

	router.RegisterRoutes(e, router.Handlers{
		Patrons:     handler.NewPatronHandler(patrons),
		Catalog:     handler.NewCatalogHandler(catalog),
		Circulation: handler.NewCirculationHandler(engine, loans, reservations, publisher),
		Reports:     handler.NewReportHandler(loans),
	}, cached)

	// Background workers: the maintenance sweep and the notification
	// consumer that renders broker messages into logs/notifications.log.
	sweeper := service.NewSweeper(engine, publisher, cfg.SweepInterval)
	go sweeper.Run(context.Background())
	go func() {
		if err := queue.StartNotificationConsumer(); err != nil {
			log.Printf("notification-consumer stopped: %v", err)
		}
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
