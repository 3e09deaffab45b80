package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"call-transcriber-go/internal/config"
	"call-transcriber-go/internal/events"
	"call-transcriber-go/internal/fetch"
	"call-transcriber-go/internal/janitor"
	"call-transcriber-go/internal/logger"
	"call-transcriber-go/internal/media"
	"call-transcriber-go/internal/pipeline"
	"call-transcriber-go/internal/processor"
	"call-transcriber-go/internal/store"
	"call-transcriber-go/internal/transcript"
	"call-transcriber-go/internal/transcription"
)

func main() {
	_ = godotenv.Load() // loads .env

	log := logger.New()
	log.WithField("service", "call-transcriber-go").Info("starting service")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tools := media.NewToolkit(cfg.Media.FFmpegPath, cfg.Media.FFprobePath, nil, log.Entry)
	if err := tools.CheckTools(); err != nil {
		log.WithError(err).Warn("media tools missing; jobs will fail at probing")
	}

	var stt transcript.Transcriber
	if cfg.Transcribe.Mock {
		log.Info("using mock transcriber")
		stt = transcription.Mock{}
	} else {
		stt = transcription.New(transcription.Options{
			BaseURL:    cfg.Transcribe.URL,
			APIKey:     cfg.Transcribe.APIKey,
			Model:      cfg.Transcribe.Model,
			Language:   cfg.Transcribe.Language,
			Timeout:    time.Duration(cfg.Transcribe.TimeoutSec) * time.Second,
			MaxElapsed: time.Duration(cfg.Transcribe.RetryMaxElapsedSec) * time.Second,
		}, log.Entry)
	}

	bus := events.NewBus(1000)
	scratchRoot := filepath.Join(cfg.Pipeline.ScratchDir, "call-transcriber")
	fetcher := fetch.New(nil, time.Duration(cfg.Pipeline.DownloadTimeoutSec)*time.Second, log.Entry)
	coord := pipeline.NewCoordinator(fetcher, tools, stt, scratchRoot, log.Entry).OnStage(bus.Stage)

	cache := openStore(ctx, cfg, log)
	proc := processor.New(coord, cache, processor.Options{
		DownloadDir:    filepath.Join(scratchRoot, "downloads"),
		JobTimeout:     time.Duration(cfg.Pipeline.JobTimeoutSec) * time.Second,
		SegmentSeconds: cfg.Pipeline.SegmentSeconds,
		Concurrency:    cfg.Pipeline.Concurrency,
	}, log.Entry).OnResult(bus.Result)

	sweeper := janitor.New(scratchRoot, cfg.Janitor.Schedule, time.Duration(cfg.Janitor.MaxAgeMin)*time.Minute, log.Entry)
	if err := sweeper.Start(ctx); err != nil {
		log.WithError(err).Fatal("failed to start janitor")
	}

	s := &server{
		log:         log,
		proc:        proc,
		bus:         bus,
		stream:      events.NewStreamer(bus, log.Entry),
		datasetPath: cfg.Dataset.Path,
		reportPath:  cfg.Dataset.ReportPath,
	}

	addr := fmt.Sprintf(":%s", envOr("PORT", cfg.Port))
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: time.Duration(cfg.Pipeline.JobTimeoutSec+60) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("graceful shutdown failed")
		}
	}()

	log.WithField("addr", addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server terminated")
	}
	log.Info("server stopped")
}

// openStore prefers redis and falls back to process memory.
func openStore(ctx context.Context, cfg config.Config, log *logger.Logger) store.Store {
	ttl := time.Duration(cfg.Cache.TTLSec) * time.Second
	if cfg.Cache.RedisAddr == "" {
		return store.NewMemory(ttl)
	}
	dialCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	r, err := store.Dial(dialCtx, cfg.Cache.RedisAddr, ttl)
	if err != nil {
		log.WithError(err).Warn("redis unavailable, caching in memory")
		return store.NewMemory(ttl)
	}
	log.WithField("redis_addr", cfg.Cache.RedisAddr).Info("transcript cache connected")
	return r
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
