package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/owuorvin/jubabuy/internal/api"
	"github.com/owuorvin/jubabuy/internal/cache"
	"github.com/owuorvin/jubabuy/internal/config"
	"github.com/owuorvin/jubabuy/internal/db"
	"github.com/owuorvin/jubabuy/internal/services"
	"github.com/owuorvin/jubabuy/internal/storage"
	"github.com/owuorvin/jubabuy/internal/tasks"
)

var runMode = flag.String("m", "all", "Run mode: 'api', 'bg' (background tasks), 'all' (default)")

func main() {
	flag.Parse()

	cfg, err := config.Load(*runMode)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	switch cfg.RunMode {
	case "api", "bg", "all":
	default:
		log.Fatalf("Invalid run mode specified: %s.", cfg.RunMode)
	}

	ctx := context.Background()

	listingStore, err := db.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open %s listing store: %v", cfg.StoreDriver, err)
	}
	defer func() {
		if err := listingStore.Close(context.Background()); err != nil {
			log.Printf("Error closing listing store: %v", err)
		}
	}()

	// Redis backs the page cache and the task queue; the API can run without it.
	var redisClient *redis.Client
	var pageCache cache.IPageCache
	if cfg.RedisAddr != "" {
		redisClient, err = cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer func() {
			if err := cache.DisconnectRedis(redisClient); err != nil {
				log.Printf("Error disconnecting from Redis: %v", err)
			}
		}()
		pageCache = cache.NewRedisPageCache(redisClient)
	} else {
		log.Println("WARN: REDIS_ADDR not set, running without page cache or background tasks.")
	}

	var listingOpts []services.ListingOption
	if cfg.AwsS3Bucket != "" {
		s3Storage, err := storage.NewS3Storage(ctx, cfg)
		if err != nil {
			log.Fatalf("Failed to initialize S3 storage: %v", err)
		}
		listingOpts = append(listingOpts, services.WithImageSigner(s3Storage))
	}

	var taskClient *asynq.Client
	if redisClient != nil {
		taskClient = tasks.NewClient(redisClient)
		defer taskClient.Close()
		if cfg.AsyncViewCounts {
			listingOpts = append(listingOpts, services.WithViewRecorder(tasks.NewViewEnqueuer(taskClient)))
		}
	}

	listingService := services.NewListingService(listingStore, listingOpts...)
	if pageCache != nil && cfg.PageCacheTTL > 0 {
		listingService = services.NewCachedListingService(listingService, pageCache, cfg.PageCacheTTL)
	}
	favoriteService := services.NewFavoriteService(listingStore)

	// WaitGroup for managing goroutines
	var wg sync.WaitGroup

	// Channel to signal shutdown from Service API
	shutdownChan := make(chan struct{}, 1)

	// Start Service API (always runs)
	serviceSrv := &http.Server{
		Addr:    ":" + cfg.ServiceApiPort,
		Handler: api.SetupServiceRouter(pageCache, shutdownChan),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		fmt.Printf("Service API listening on :%s\n", cfg.ServiceApiPort)
		if err := serviceSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Service API ListenAndServe error: %v", err)
		}
		fmt.Println("Service API server stopped.")
	}()

	// --- Mode-specific servers ---
	var mainApiSrv *http.Server
	var stopLimiter func()
	var backgroundTaskSrv *asynq.Server

	fmt.Printf("Starting application in '%s' mode with the %s store...\n", cfg.RunMode, cfg.StoreDriver)

	apiMode := func() {
		fmt.Println("Starting main API server...")
		router, limiter := api.SetupRouter(cfg, api.Services{
			Listings:  listingService,
			Favorites: favoriteService,
		})
		stopLimiter = limiter.Stop
		mainApiSrv = &http.Server{
			Addr:              ":" + cfg.ApiPort,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			fmt.Printf("Main API listening on :%s\n", cfg.ApiPort)
			if err := mainApiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Main API ListenAndServe error: %v", err)
			}
			fmt.Println("Main API server stopped.")
		}()
	}

	bgMode := func() {
		if redisClient == nil {
			log.Println("WARN: background worker needs Redis, not starting it.")
			return
		}
		fmt.Println("Starting background worker...")
		srv, mux := tasks.SetupServer(redisClient, tasks.NewTaskProcessor(listingStore))
		backgroundTaskSrv = srv
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := backgroundTaskSrv.Run(mux); err != nil {
				log.Fatalf("Background task server error: %v", err)
			}
			fmt.Println("Background task server stopped.")
		}()
	}

	switch cfg.RunMode {
	case "api":
		apiMode()
	case "bg":
		bgMode()
	case "all":
		apiMode()
		bgMode()
	}

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		fmt.Printf("\nReceived signal: %s. Shutting down gracefully...\n", sig)
	case <-shutdownChan:
		fmt.Println("\nShutdown requested via Service API. Shutting down gracefully...")
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	fmt.Println("Shutting down Service API server...")
	if err := serviceSrv.Shutdown(ctxShutdown); err != nil {
		log.Printf("Service API server shutdown error: %v", err)
	}

	if mainApiSrv != nil {
		fmt.Println("Shutting down Main API server...")
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			log.Printf("Main API server shutdown error: %v", err)
		}
		stopLimiter()
	}

	if backgroundTaskSrv != nil {
		fmt.Println("Shutting down Background Task server...")
		backgroundTaskSrv.Shutdown()
	}

	fmt.Println("Waiting for servers to stop...")
	wg.Wait()

	fmt.Println("Server gracefully stopped")
}
