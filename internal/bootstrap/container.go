package bootstrap

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"notesync/internal/config"
	"notesync/internal/pkg/logger"
	"notesync/internal/repository/implementation"
	"notesync/internal/server"
	"notesync/pkg/events"
	pktNats "notesync/pkg/nats"
)

// Container wires the server-side dependency graph.
type Container struct {
	Logger logger.ILogger

	Hub        *server.Hub
	RPCHandler *server.RPCHandler

	// Background services (exposed for main.go to run)
	Subscriber *pktNats.Subscriber
	Publisher  *pktNats.Publisher
	Pusher     *server.PushService
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Repositories
	userRepo := implementation.NewUserRepository(db)
	docRepo := implementation.NewDocumentRepository(db)

	// 3. Infrastructure
	var rdb *redis.Client
	if cfg.App.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Invalid REDIS_URL, cross-instance fan-out disabled: %v", err)
		} else {
			rdb = redis.NewClient(opts)
		}
	}

	var natsPub *pktNats.Publisher
	var natsSub *pktNats.Subscriber
	if cfg.App.NatsURL != "" {
		var err error
		natsPub, err = pktNats.NewPublisher(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
			natsPub = nil
		}
		natsSub, err = pktNats.NewSubscriber(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
			natsSub = nil
		}
	}

	// 4. Hub and services
	hub := server.NewHub(rdb, sysLogger)
	authService := server.NewAuthService(userRepo, cfg.Auth.JWTSecret, sysLogger)
	pushService := server.NewPushService(docRepo, hub, sysLogger)
	rpcHandler := server.NewRPCHandler(authService, docRepo, pushService, natsPub, sysLogger)

	return &Container{
		Logger:     sysLogger,
		Hub:        hub,
		RPCHandler: rpcHandler,
		Subscriber: natsSub,
		Publisher:  natsPub,
		Pusher:     pushService,
	}
}

// StartConsumers registers the change-event consumer. Each STORE_CHANGED
// event triggers a fresh snapshot push for the affected user and collection.
func (c *Container) StartConsumers() {
	if c.Subscriber == nil {
		return
	}

	err := c.Subscriber.Subscribe("events.STORE_CHANGED", "notesync-pusher", func(ctx context.Context, event events.Event) error {
		payload := event.Payload()
		userId, _ := payload["user_id"].(string)
		collection, _ := payload["collection"].(string)
		if userId == "" || collection == "" {
			c.Logger.Warn("Consumer", "Malformed store change event", map[string]interface{}{"payload": payload})
			return nil
		}
		return c.Pusher.Push(ctx, userId, collection)
	})
	if err != nil {
		c.Logger.Error("Consumer", "Failed to subscribe to change events", map[string]interface{}{"error": err.Error()})
	}
}
