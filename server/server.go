// Package server is the HTTP delivery layer: the signed streaming endpoints
// and the small JSON API feeding the transcode pipeline and clip generator.
package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/M-Abd-ElBaset/hls-audio-service/cache"
	"github.com/M-Abd-ElBaset/hls-audio-service/config"
	"github.com/M-Abd-ElBaset/hls-audio-service/core/auth"
	"github.com/M-Abd-ElBaset/hls-audio-service/core/stream"
	"github.com/M-Abd-ElBaset/hls-audio-service/core/token"
	"github.com/M-Abd-ElBaset/hls-audio-service/core/transcode"
	"github.com/M-Abd-ElBaset/hls-audio-service/db"
	"github.com/M-Abd-ElBaset/hls-audio-service/logger"
	"github.com/M-Abd-ElBaset/hls-audio-service/repository"
	"github.com/M-Abd-ElBaset/hls-audio-service/storage"
	"github.com/M-Abd-ElBaset/hls-audio-service/webhook"

	"github.com/gorilla/mux"
)

// APIHandler holds the shared dependencies of every HTTP handler.
type APIHandler struct {
	cfg    *config.Config
	tracks repository.TrackRepository
	assets repository.TrackAssetRepository
	clips  repository.ClipRepository
	codec  *token.Codec
	gate   *stream.Gate
	worker *transcode.Worker
}

// NewAPIHandler creates the handler set.
func NewAPIHandler(cfg *config.Config, tracks repository.TrackRepository,
	assets repository.TrackAssetRepository, clips repository.ClipRepository,
	codec *token.Codec, gate *stream.Gate, worker *transcode.Worker) *APIHandler {
	return &APIHandler{
		cfg:    cfg,
		tracks: tracks,
		assets: assets,
		clips:  clips,
		codec:  codec,
		gate:   gate,
		worker: worker,
	}
}

// Start initializes dependencies, wires the routes and runs the HTTP server
// until interrupted.
func Start() {
	cfg := config.Load()
	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogOutput,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
	})
	auth.SetSecret(cfg.JWTSecret)

	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("failed to connect to database", logger.ErrorField(err))
	}
	defer db.DB.Close()

	if err := db.InitDB(); err != nil {
		logger.Fatal("failed to initialize database schema", logger.ErrorField(err))
	}
	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("failed to connect gorm database", logger.ErrorField(err))
	}

	if err := cache.ConnectRedis(cfg); err != nil {
		logger.Fatal("failed to connect to redis", logger.ErrorField(err))
	}
	defer cache.CloseRedis()

	var publisher transcode.Publisher
	if cfg.MinioEndpoint != "" {
		if err := storage.InitMinio(cfg); err != nil {
			logger.Fatal("failed to initialize minio", logger.ErrorField(err))
		}
		publisher = storage.NewObjectPublisher(storage.GetMinioClient(), cfg.MinioBucket)
	}

	ensureDirExists(cfg.SourceAudioDir)
	ensureDirExists(cfg.StreamDir)

	codec, err := token.NewCodec(cfg.TokenKey)
	if err != nil {
		logger.Fatal("failed to create token codec", logger.ErrorField(err))
	}

	trackRepo := repository.NewMySQLTrackRepository()
	assetRepo := repository.NewMySQLTrackAssetRepository()
	clipRepo := repository.NewMySQLClipRepository()
	webhookRepo := repository.NewGormWebhookRepository()

	gate := stream.NewGate(&stream.RedisSessionStore{Client: cache.RedisClient},
		cfg.ConcurrentLimit, cfg.StreamSessionTTL)

	encoder := transcode.NewFFmpegEncoder(cfg.FFmpegPath)
	transcoder := transcode.NewTranscoder(encoder, cfg, trackRepo, assetRepo, publisher)
	lease := cache.NewTranscodeLease(cfg.TranscodeJobTTL())
	dispatcher := webhook.NewDispatcher(cfg, assetRepo, webhookRepo)
	worker := transcode.NewWorker(transcoder, trackRepo, lease, dispatcher,
		cfg.TranscodeAttempts, cfg.TranscodeBackoff, 2)

	apiHandler := NewAPIHandler(cfg, trackRepo, assetRepo, clipRepo, codec, gate, worker)

	router := mux.NewRouter()
	router.Use(corsMiddleware)

	// Clip playback must be registered before the track playback routes, or
	// mux would read "clip" as a track UUID.
	router.HandleFunc("/streams/hls/clip/{clip_uuid}/master.m3u8",
		apiHandler.SignedStream(apiHandler.ClipPlaylistHandler)).Methods(http.MethodGet)
	router.HandleFunc("/streams/hls/{track_uuid}/master.m3u8",
		apiHandler.SignedStream(apiHandler.MasterPlaylistHandler)).Methods(http.MethodGet)
	router.HandleFunc("/streams/hls/{track_uuid}/{bitrate}/index.m3u8",
		apiHandler.SignedStream(apiHandler.VariantPlaylistHandler)).Methods(http.MethodGet)
	router.HandleFunc("/streams/hls/{track_uuid}/{bitrate}/seg-{index}.ts",
		apiHandler.SignedStream(apiHandler.SegmentHandler)).Methods(http.MethodGet)

	router.HandleFunc("/api/tracks", apiHandler.UploadTrackHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/{track_uuid}", apiHandler.GetTrackHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{track_uuid}/token", apiHandler.IssueTrackTokenHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/{track_uuid}/clips", apiHandler.GetTrackClipsHandler).Methods(http.MethodGet)

	router.HandleFunc("/api/clips", apiHandler.CreateClipHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/clips/{clip_uuid}", apiHandler.DeleteClipHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/clips/{clip_uuid}/token", apiHandler.IssueClipTokenHandler).Methods(http.MethodPost)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", logger.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", logger.ErrorField(err))
	}
	logger.Info("server stopped")
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func ensureDirExists(path string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			logger.Fatal("failed to create directory",
				logger.String("path", path), logger.ErrorField(err))
		}
	} else if err != nil {
		logger.Fatal("failed to check directory",
			logger.String("path", path), logger.ErrorField(err))
	}
}
