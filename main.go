package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/NoNameWrath/poap-api/api"
	"github.com/NoNameWrath/poap-api/database"
	"github.com/NoNameWrath/poap-api/external"
	"github.com/NoNameWrath/poap-api/metrics"
	"github.com/NoNameWrath/poap-api/services"
	"github.com/NoNameWrath/poap-api/tasks"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"go.uber.org/zap"
)

const (
	// How long a single call to the minting service may take.
	mintTimeout = 60 * time.Second
)

func waitForTermination() {
	// Trap termination signals
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	// Block until a signal is received.
	<-c

	// Allow subsequent termination signals to quickly shut down by removing the trap.
	signal.Reset()
	close(c)
}

var logger *zap.Logger

// Logger initialization.
func initLogger(debug bool) error {
	var cfg zap.Config
	var err error

	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	logger, err = cfg.Build()
	return err
}

func main() {
	var cfg config
	var err error

	// Parse command line arguments.
	if cfg, err = parseArguments(); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing command-line arguments: %v\n", err)
		os.Exit(1)
	}

	// Initialize the logger.
	if err := initLogger(cfg.Debug); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}

	// Connect to the database and initialize the database schema, if necessary.
	var db *sql.DB
	db, err = database.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal("Unable to open the database connection", zap.Error(err))
	}
	defer db.Close()

	// Prometheus metrics.
	if err := metrics.Init("poap_api"); err != nil {
		logger.Fatal("Unable to initialize metrics", zap.Error(err))
	}

	// Clock
	clock := clockwork.NewRealClock()

	// The minting boundary. Treated as a slow, fallible remote service.
	minter := external.NewMintServiceClient(cfg.MintAPIURL, mintTimeout)

	// Optional redis-backed replay guard. Without redis, a sqlite-backed
	// guard is used when -replay-guard is set.
	var guard services.ReplayGuard
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		guard = services.NewRedisReplayGuard(rdb, clock)
	}

	// Services contain the business logic and are used by the API handlers.
	svcCfg := &services.ServiceConfig{
		DB:                db,
		Minter:            minter,
		TokenTTL:          cfg.TokenTTL,
		AdminEmails:       cfg.AdminEmails,
		ReplayGuard:       guard,
		EnableReplayGuard: cfg.EnableReplayGuard,
		Logger:            logger,
		Clock:             clock,
	}
	svc := services.NewService(svcCfg)
	if err := svc.Init(); err != nil {
		logger.Fatal("Unable to initialize the service layer", zap.Error(err))
	}

	// The sqlite replay guard accumulates consumed nonces; sweep expired
	// ones in the background. Redis evicts its own keys.
	var sweep *tasks.SweepTokensTask
	if cfg.EnableReplayGuard && cfg.RedisAddr == "" {
		sweep = tasks.NewSweepTokensTask(svc, clock, logger)
		go sweep.Run()
	}

	// Create the API router.
	path := "/poap/v1/"
	router := api.NewAPIRouter(path, svc, cfg.AllowedOrigins, []byte(cfg.JWTSecret), logger)
	http.Handle(path, router)
	http.Handle("/metrics", metrics.Handler())

	// Listen on the provided address. This listener will be used by the HTTP server.
	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to listen on provided address %s\n%v\n", cfg.ListenAddr, err)
		os.Exit(1)
	}

	// Spin up the HTTP server on a different goroutine, since it blocks.
	server := http.Server{}
	var serverWaitGroup sync.WaitGroup
	serverWaitGroup.Add(1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("url", cfg.ListenAddr))
		if err := server.Serve(listener); err != nil {
			logger.Error("HTTP server stopped", zap.Error(err))
		}
		serverWaitGroup.Done()
	}()

	waitForTermination()

	// Shut down gracefully
	logger.Info("Received termination signal, shutting down...")
	_ = server.Shutdown(context.Background())
	listener.Close()

	// Wait for the listener/server to exit
	serverWaitGroup.Wait()

	// Shut down the service layer
	svc.Deinit()

	// Stop the background tasks
	if sweep != nil {
		if err = sweep.Stop(); err != nil {
			logger.Error("Error stopping background tasks", zap.Error(err))
		}
	}

	logger.Info("Shutdown complete")

	_ = logger.Sync()
}
