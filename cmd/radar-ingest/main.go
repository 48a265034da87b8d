package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"radar-ingest/internal/config"
	"radar-ingest/internal/db"
	httphandler "radar-ingest/internal/http"
	"radar-ingest/internal/imaging"
	"radar-ingest/internal/logger"
	"radar-ingest/internal/ocr"
	"radar-ingest/internal/relocate"
	"radar-ingest/internal/repository"
	"radar-ingest/internal/service"
	"radar-ingest/internal/storage"
	"radar-ingest/internal/vision"
	"radar-ingest/internal/watch"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.Environment)

	database, err := db.New(cfg, appLogger)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("failed to connect database")
	}

	photoRepo := repository.NewPhotoRepository(database)

	recognizer := ocr.NewTesseractRecognizer(cfg.HeaderOCR.Language)
	headerExtractor := ocr.NewHeaderExtractor(recognizer, imaging.HeaderOptions{
		CropPct:   cfg.HeaderOCR.CropPct,
		Greyscale: cfg.HeaderOCR.Greyscale,
		Sharpen:   cfg.HeaderOCR.Sharpen,
		Normalize: cfg.HeaderOCR.Normalize,
	}, cfg.HeaderOCR.MaxRetries, cfg.HeaderOCR.RetryDelay, appLogger)

	ollamaClient := vision.NewClient(
		cfg.Ollama.Host,
		cfg.Ollama.Model,
		cfg.Ollama.KeepAliveValue,
		cfg.Ollama.RequestTimeout,
		vision.GenerationOptions{
			NumCtx:      cfg.Ollama.NumCtx,
			NumPredict:  cfg.Ollama.NumPredict,
			Temperature: cfg.Ollama.Temperature,
			TopP:        cfg.Ollama.TopP,
		},
	)
	plateExtractor := vision.NewPlateExtractor(ollamaClient, imaging.PlateOptions{
		TopOffset:    cfg.PlateCrop.TopOffset,
		BottomMargin: cfg.PlateCrop.BottomMargin,
		LeftMargin:   cfg.PlateCrop.LeftMargin,
		RightMargin:  cfg.PlateCrop.RightMargin,
		TargetWidth:  cfg.PlateCrop.TargetWidth,
		JPEGQuality:  cfg.PlateCrop.JPEGQuality,
	}, cfg.Ollama.MaxRetries, cfg.Ollama.RetryDelay, appLogger)

	keepAlive := vision.NewKeepAlive(ollamaClient, cfg.Ollama.KeepAliveInterval, appLogger)
	keepAlive.Start()

	fusion := ocr.NewFusion(headerExtractor, plateExtractor, appLogger)
	relocator := relocate.New(cfg.Storage.BaseDir, cfg.Storage.ProcessedDir, appLogger)

	// Mirroring is optional; without MIRROR_* variables the archive stays
	// local only.
	var mirror service.Mirror
	mirrorClient, err := storage.NewMirrorFromEnv()
	if err != nil && !errors.Is(err, storage.ErrNotConfigured) {
		appLogger.Fatal().Err(err).Msg("failed to initialize archive mirror")
	}
	if err != nil {
		appLogger.Warn().Msg("archive mirror not configured, uploads disabled")
	} else {
		mirror = mirrorClient
	}

	ingestService := service.NewIngestService(photoRepo, fusion, relocator, mirror, appLogger)
	queue := service.NewQueue(ingestService, cfg.Queue.Concurrency, cfg.Queue.BatchSize, cfg.Queue.Capacity, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue.Start(ctx)

	watcher := watch.New(cfg.Watch.Dir, cfg.Watch.StabilityThreshold, cfg.Watch.PollInterval, queue, appLogger)
	if err := watcher.Backfill(ctx); err != nil {
		appLogger.Error().Err(err).Msg("backfill scan failed")
	}
	if err := watcher.Start(ctx); err != nil {
		appLogger.Fatal().Err(err).Msg("failed to start watcher")
	}

	handler := httphandler.NewHandler(queue, photoRepo, appLogger)
	router := httphandler.NewRouter(handler, cfg.Environment, database)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	appLogger.Info().Str("addr", addr).Str("watch_dir", cfg.Watch.Dir).Msg("starting radar ingest service")

	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error().Err(err).Msg("failed to start server")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error().Err(err).Msg("server forced to shutdown")
	}

	cancel()
	queue.Stop()
	keepAlive.Stop()
	if err := recognizer.Close(); err != nil {
		appLogger.Error().Err(err).Msg("failed to close OCR worker")
	}

	appLogger.Info().Msg("service exited")
}
