package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"propsync/config"
	"propsync/httputil"
	"propsync/logging"
	"propsync/models"
	"propsync/scheduler"
	"propsync/server"
	"propsync/services"
	"propsync/storage"
	"propsync/workers"
)

var (
	importNow = flag.Bool("import", false, "Run import once and exit")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	logFile, err := logging.Setup("propsync.log")
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting propsync...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Loaded %d feed configs", len(cfg.Feeds))
	for name, fc := range cfg.Feeds {
		log.Printf("  - %s (%s)", name, fc.URL)
	}

	clients := httputil.NewClients(cfg.FeedTimeout)

	ctx := context.Background()

	// Postgres holds the domain data
	pgStore, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer pgStore.Close()
	log.Printf("Connected to Postgres: %s", maskConnectionString(cfg.DatabaseURL))

	// SQLite holds operational data: runs, logs, commands, feed stats
	sqliteStore, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open SQLite: %v", err)
	}
	defer sqliteStore.Close()
	log.Printf("SQLite database: %s", cfg.DBPath)

	mediaService := services.NewMediaService(pgStore)
	upsertService := services.NewUpsertService(pgStore)
	importer := services.NewImporter(cfg, clients, upsertService, pgStore, sqliteStore, mediaService)

	log.Println("Services initialized")

	// Handle one-shot commands
	if *importNow {
		log.Println("Running import...")
		if err := importer.RunAll(ctx); err != nil {
			log.Fatalf("Import failed: %v", err)
		}
		log.Println("Import complete!")
		return
	}

	// Daemon mode
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var uploader workers.S3Uploader
	if cfg.S3.Configured() {
		s3Uploader, err := storage.NewS3Uploader(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKey,
			SecretAccessKey: cfg.S3.SecretKey,
		})
		if err != nil {
			log.Fatalf("Failed to set up S3 uploader: %v", err)
		}
		uploader = s3Uploader
		log.Printf("S3 uploads to bucket %s", cfg.S3.Bucket)
	} else {
		uploader = workers.NewNoOpUploader()
		log.Println("S3 not configured, media uploads disabled")
	}

	mediaWorker := workers.NewMediaWorker(mediaService, clients.Media, uploader)
	go mediaWorker.Run(ctx, 20, 2*time.Minute)
	log.Println("Media worker started")

	healthWorker := workers.NewHealthWorker(cfg, sqliteStore, clients.Feed)
	healthWorker.SetLogger(func(level models.LogLevel, feedName, message string) {
		sqliteStore.Log(nil, level, message, feedName)
	})
	go healthWorker.Run(ctx, 15*time.Minute)
	log.Println("Health worker started")

	sched := scheduler.New(cfg, importer, sqliteStore)
	sched.SetWorkers(mediaWorker, healthWorker)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	srv := server.New(cfg.Server.Port, server.NewHandlers(importer, pgStore, pgStore))
	go func() {
		log.Printf("HTTP server listening on :%d", cfg.Server.Port)
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Warning: HTTP shutdown error: %v", err)
	}

	sched.Stop()
	log.Println("Goodbye!")
}

// maskConnectionString masks password in connection string for logging
func maskConnectionString(connStr string) string {
	// Simple mask - find :// and mask until @
	start := 0
	for i := 0; i < len(connStr)-3; i++ {
		if connStr[i:i+3] == "://" {
			start = i + 3
			break
		}
	}
	if start == 0 {
		return connStr
	}

	// Find : after user
	colonIdx := -1
	atIdx := -1
	for i := start; i < len(connStr); i++ {
		if connStr[i] == ':' && colonIdx == -1 {
			colonIdx = i
		}
		if connStr[i] == '@' {
			atIdx = i
			break
		}
	}

	if colonIdx > 0 && atIdx > colonIdx {
		return connStr[:colonIdx+1] + "****" + connStr[atIdx:]
	}
	return connStr
}
