package main

import (
	"context"
	"log"

	"notesync/internal/bootstrap"
	"notesync/internal/config"
	"notesync/internal/model"
	"notesync/internal/server"
	"notesync/internal/tracer"
	"notesync/pkg/database"
)

func main() {
	// 0. Initialize Tracer (no-op unless OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer()
	defer shutdownTracer(context.Background())

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Database
	gormDB, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		log.Panicf("Unable to connect to GORM DB: %v", err)
	}
	if err := gormDB.AutoMigrate(&model.User{}, &model.Document{}); err != nil {
		log.Panicf("Auto-migration failed: %v", err)
	}

	// 3. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(gormDB, cfg)

	// 4. Start Background Services
	go container.Hub.Run()
	container.StartConsumers()

	// 5. Initialize and Run Server
	srv := server.New(cfg, container.Hub, container.RPCHandler, container.Logger)
	log.Fatal(srv.Run())
}
