package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"livebid/internal/bidding"
	"livebid/internal/config"
	"livebid/internal/database/db_client"
	"livebid/internal/events"
	"livebid/internal/events/amqpbus"
	"livebid/internal/events/localbus"
	"livebid/internal/events/redisbus"
	"livebid/internal/http/auctionhandler"
	"livebid/internal/http/http_server"
	"livebid/internal/http/middleware"
	"livebid/internal/lifecycle"
	"livebid/internal/redis/redis_client"
	"livebid/internal/redis/redis_functions"
	"livebid/internal/redis/watcher/auctionwatcher"
	"livebid/internal/services/auction"
	"livebid/internal/storage"
	"livebid/internal/storage/memstore"
	"livebid/internal/storage/pgstore"
	"livebid/internal/storage/redisstore"
	"livebid/internal/ws"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded",
		zap.String("store", cfg.StoreDriver),
		zap.String("events", cfg.EventsDriver),
	)

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Redis, only when a component needs it
	var redisClient *redis.Client
	if cfg.StoreDriver == config.StoreRedis || cfg.EventsDriver == config.EventsRedis {
		redisClient, err = redis_client.NewRedisClient(ctx, cfg.RedisAuctionsHost, int(cfg.RedisAuctionsPort))
		if err != nil {
			Log.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()
	}

	// 4. Store
	var store storage.Store
	switch cfg.StoreDriver {
	case config.StorePostgres:
		dsn := db_client.DSN(cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb)
		if cfg.PostgresMigrate {
			if err := db_client.Migrate(dsn); err != nil {
				Log.Fatal("pg-migrate", zap.Error(err))
			}
		}
		pgDb, err := db_client.Open(dsn)
		if err != nil {
			Log.Fatal("pg-open", zap.Error(err))
		}
		defer pgDb.Close()
		store = pgstore.New(pgDb)
	case config.StoreRedis:
		if err := redis_functions.LoadAll(ctx, redisClient); err != nil {
			Log.Fatal("load-redis-funcs", zap.Error(err))
		}
		store = redisstore.New(redisClient)
	default:
		store = memstore.New()
	}

	// 5. Event bus
	var bus events.Bus
	switch cfg.EventsDriver {
	case config.EventsRedis:
		bus = redisbus.New(redisClient)
	case config.EventsAMQP:
		bus, err = amqpbus.Dial(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			Log.Fatal("amqp-dial", zap.Error(err))
		}
	default:
		bus = localbus.New()
	}
	defer bus.Close()

	// 6. Services
	manager := lifecycle.NewManager(store, lifecycle.WithInterval(cfg.SweepInterval))
	auctionService := auction.NewAuctionService(store, manager, nil)
	biddingService := bidding.NewBiddingService(store, bus)
	auth := middleware.NewAuthenticator(cfg.JWTSecret, cfg.AdminEmail)

	// 7. Background: periodic sweep, plus timer expiry when Redis holds the auctions
	go manager.Run(ctx)
	if cfg.StoreDriver == config.StoreRedis {
		go auctionwatcher.Run(ctx, redisClient, manager)
	}

	// 8. WebSockets hub
	wsSrv := ws.NewWsServer(ws.NewHub(), bus, auctionService, biddingService, auth)

	// 9. HTTP + WS server
	handler := auctionhandler.New(auctionService, biddingService, auth)
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, wsSrv, handler)

	go func() {
		<-ctx.Done()
		_ = httpServer.Dispose()
	}()
	if err := httpServer.Start(); err != nil {
		Log.Fatal("Failed to start HTTP server", zap.Error(err))
	}
	Log.Info("shutdown complete")
}
