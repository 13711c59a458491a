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

	"github.com/231Brooks/HBH-2-sub003/internal/api"
	"github.com/231Brooks/HBH-2-sub003/internal/cache"
	"github.com/231Brooks/HBH-2-sub003/internal/config"
	"github.com/231Brooks/HBH-2-sub003/internal/db"
	"github.com/231Brooks/HBH-2-sub003/internal/email"
	"github.com/231Brooks/HBH-2-sub003/internal/services"
	"github.com/231Brooks/HBH-2-sub003/internal/storage"
	"github.com/231Brooks/HBH-2-sub003/internal/tasks"
)

var runMode = flag.String("m", "all", "Run mode: 'api', 'bg' (background worker + scheduler), 'all' (default)")

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*runMode)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Database
	mongoClient, mongoDb, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.DisconnectDB(mongoClient); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
		}
	}()

	if err := db.EnsureAuctionIndexes(context.Background(), mongoDb); err != nil {
		log.Fatalf("Failed to ensure auction indexes: %v", err)
	}

	// Initialize Cache (Redis)
	redisClient, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient); err != nil {
			log.Printf("Error disconnecting from Redis: %v", err)
		}
	}()

	// Initialize Email Sender
	var primaryEmailSender email.Sender
	if os.Getenv("MOCK_SERVICES") == "true" {
		log.Println("MOCK_SERVICES enabled: Using Redis email sender.")
		primaryEmailSender = email.NewRedisSender(redisClient, cfg)
	} else {
		log.Println("MOCK_SERVICES disabled or not set: Using SMTP/Logging email sender.")
		primaryEmailSender = email.NewSMTPSender(cfg)
	}

	// Setup Composite Email Sender
	compositeSender := email.NewCompositeEmailSender(primaryEmailSender)

	// Optionally add FileEmailSender if LOG_EMAILS is set
	logEmailsPath := os.Getenv("LOG_EMAILS")
	if logEmailsPath != "" {
		log.Printf("LOG_EMAILS set to '%s', enabling file email logger.", logEmailsPath)
		fileSender, err := email.NewFileEmailSender(logEmailsPath, cfg)
		if err != nil {
			log.Printf("WARNING: Failed to initialize file email sender (LOG_EMAILS='%s'): %v. Proceeding without file logging.", logEmailsPath, err)
		} else {
			compositeSender.AddSender(fileSender)
			log.Println("File email logger added to composite sender.")
		}
	}

	finalEmailSender := email.Sender(compositeSender)

	// Initialize Services shared by handlers and the task processor
	configSvc := services.NewConfigService(mongoDb, cfg, redisClient)
	if err := configSvc.Load(context.Background()); err != nil {
		log.Printf("WARNING: Failed to load dynamic configuration, using static defaults: %v", err)
	}
	if err := configSvc.SubscribeToChanges(context.Background()); err != nil {
		log.Printf("WARNING: Failed to subscribe to configuration changes: %v", err)
	}

	userService := services.NewUserService(mongoDb)
	auctionService := services.NewAuctionService(mongoDb, cfg, configSvc)
	bidService := services.NewBidService(mongoDb, cfg, configSvc)
	watchService := services.NewWatchService(mongoDb)
	analyticsService := services.NewAnalyticsService(mongoDb)

	// Initialize Task Client and the notification dispatcher backed by it
	taskClient := tasks.NewClient(redisClient)
	defer taskClient.Close()
	dispatcher := tasks.NewAsynqDispatcher(taskClient)

	notificationService := services.NewNotificationService(cfg, redisClient, dispatcher, bidService, watchService, userService, configSvc)

	// Settlement report archive: S3 when configured, logs otherwise.
	var reportArchive storage.IReportArchive
	if cfg.AwsS3Bucket != "" {
		reportArchive, err = storage.NewS3ReportArchive(cfg)
		if err != nil {
			log.Fatalf("Failed to initialize S3 report archive: %v", err)
		}
	} else {
		log.Println("AWS_S3_BUCKET not configured, settlement reports will be logged only.")
		reportArchive = &storage.LoggingReportArchive{}
	}

	settlementService := services.NewSettlementService(cfg, auctionService, analyticsService, notificationService, reportArchive)

	// Initialize Task Processor
	taskProcessor := tasks.NewTaskProcessor(cfg, finalEmailSender, settlementService)

	// WaitGroup for managing goroutines
	var wg sync.WaitGroup

	// Channel to signal shutdown from Service API
	shutdownChan := make(chan struct{}, 1)

	// Start Service API (always runs)
	serviceRouter := api.SetupServiceRouter(cfg, redisClient, settlementService, auctionService, shutdownChan)
	serviceSrv := &http.Server{
		Addr:    ":" + cfg.ServiceApiPort,
		Handler: serviceRouter,
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
	var backgroundTaskSrv *asynq.Server
	var scheduler *asynq.Scheduler

	fmt.Printf("Starting application in '%s' mode...\n", cfg.RunMode)

	apiMode := func() {
		fmt.Println("Starting main API server...")
		mainApiRouter := api.SetupRouter(cfg, mongoDb, redisClient, dispatcher, configSvc)
		mainApiSrv = &http.Server{
			Addr:    ":" + cfg.ApiPort,
			Handler: mainApiRouter,
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
		fmt.Println("Starting background worker...")
		srv, mux := tasks.SetupServer(redisClient, taskProcessor, true)
		backgroundTaskSrv = srv
		if backgroundTaskSrv != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				fmt.Println("Background task server starting...")
				if err := backgroundTaskSrv.Run(mux); err != nil {
					log.Fatalf("Background task server error: %v", err)
				}
				fmt.Println("Background task server stopped.")
			}()
		}

		scheduler = tasks.SetupScheduler(redisClient, cfg)
		wg.Add(1)
		go func() {
			defer wg.Done()
			fmt.Println("Task scheduler starting...")
			if err := scheduler.Run(); err != nil {
				log.Fatalf("Task scheduler error: %v", err)
			}
			fmt.Println("Task scheduler stopped.")
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
	default:
		log.Fatalf("Invalid run mode specified in config: %s.", cfg.RunMode)
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

	// Create context with timeout for shutdown
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	// Shutdown servers
	fmt.Println("Shutting down Service API server...")
	if err := serviceSrv.Shutdown(ctxShutdown); err != nil {
		log.Printf("Service API server shutdown error: %v", err)
	}

	if mainApiSrv != nil {
		fmt.Println("Shutting down Main API server...")
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			log.Printf("Main API server shutdown error: %v", err)
		}
	}

	if scheduler != nil {
		fmt.Println("Shutting down task scheduler...")
		scheduler.Shutdown()
	}
	if backgroundTaskSrv != nil {
		fmt.Println("Shutting down Background Task server...")
		backgroundTaskSrv.Shutdown()
	}

	// Wait for all server goroutines to finish
	fmt.Println("Waiting for servers to stop...")
	wg.Wait()

	fmt.Println("Server gracefully stopped")
}
