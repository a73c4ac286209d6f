package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"provident-certs/internal/config"
	"provident-certs/internal/database"
	"provident-certs/internal/engine"
	httpapi "provident-certs/internal/http"
	"provident-certs/internal/hubspot"
	"provident-certs/internal/lock"
	"provident-certs/internal/logger"
	"provident-certs/internal/mailer"
	"provident-certs/internal/merge"
	"provident-certs/internal/repository"
	"provident-certs/internal/service"
	"provident-certs/internal/storage"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "provident-certs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	crm := hubspot.NewClient(cfg.HubSpot.BaseURL, cfg.HubSpot.AccessToken, log)

	// Allocation is serialized per system. A configured redis gives a
	// cross-replica lease; otherwise a process-local mutex map is enough
	// for a single replica.
	var (
		locker      lock.Locker
		redisClient *redis.Client
	)
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		locker = lock.NewRedisLocker(redisClient, 0, log)
		log.Info("Using redis allocation lock", zap.String("addr", cfg.Redis.Addr))
	} else {
		locker = lock.NewKeyedMutex()
	}

	fetcher := engine.NewFetcher(crm, cfg.HubSpot.SystemTypeID, cfg.HubSpot.AgreementTypeID, cfg.HubSpot.DeviceTypeID, log)
	allocator := engine.NewAllocator(crm, cfg.HubSpot.SystemTypeID, locker, log)
	certEngine := engine.New(fetcher, allocator, log)

	renderer := merge.NewClient(cfg.WebMerge.URL, log)

	var gcs service.ObjectStore
	if cfg.Storage.GCSAccessToken != "" {
		gcs = storage.NewGCSClient(cfg.Storage.GCSBucket, cfg.Storage.GCSAccessToken, log)
	}
	var drive service.DriveStore
	if cfg.Storage.DriveAccessToken != "" {
		drive = storage.NewDriveClient(cfg.Storage.DriveAccessToken, log)
	}

	// Issuance log is optional: a failed DB connection degrades to the
	// no-op log, the service keeps issuing.
	var (
		db          *sql.DB
		issuanceLog repository.IssuanceLog = repository.NoopIssuanceLog{}
	)
	if cfg.DBEnabled {
		if d, err := database.NewPostgresDB(&cfg.Database); err == nil {
			db = d
			issuanceLog = repository.NewIssuanceRepository(db, log)
			log.Info("Issuance log enabled")
		} else {
			log.Warn("DB enabled but connection failed, issuance log disabled", zap.Error(err))
		}
	}

	mail := mailer.New(&cfg.SMTP, log)
	downloader := resty.New().SetTimeout(30 * time.Second)
	fetchPDF := func(ctx context.Context, url string) ([]byte, error) {
		resp, err := downloader.R().SetContext(ctx).Get(url)
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("download %s: status %d", url, resp.StatusCode())
		}
		return resp.Body(), nil
	}

	lookups := service.NewLookupService(crm, &cfg.HubSpot, log)
	certs := service.NewCertificateService(
		certEngine, renderer, gcs, drive, crm, issuanceLog, mail, fetchPDF,
		&cfg.Storage, &cfg.HubSpot, log,
	)

	validator := httpapi.NewSignatureValidator(cfg.HubSpot.ClientSecret, log)
	handler := httpapi.NewHandler(lookups, certs, validator, log)
	router := httpapi.NewRouter(log)
	router.Register(handler)

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("Shutdown signal received")
	case err := <-errCh:
		log.Error("HTTP server exited", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if db != nil {
		_ = db.Close()
	}
}
