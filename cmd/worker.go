package cmd

import (
	"context"
	"log"

	"github.com/M-Abd-ElBaset/hls-audio-service/cache"
	"github.com/M-Abd-ElBaset/hls-audio-service/config"
	"github.com/M-Abd-ElBaset/hls-audio-service/core/transcode"
	"github.com/M-Abd-ElBaset/hls-audio-service/db"
	"github.com/M-Abd-ElBaset/hls-audio-service/logger"
	"github.com/M-Abd-ElBaset/hls-audio-service/repository"
	"github.com/M-Abd-ElBaset/hls-audio-service/storage"
	"github.com/M-Abd-ElBaset/hls-audio-service/webhook"

	"github.com/spf13/cobra"
)

var workerTrackID int64

// workerCmd reruns the transcode pipeline for one track from the CLI. Useful
// for retrying a failed track without re-uploading it.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a transcode job for one track",
	Long:  `Runs the transcode pipeline synchronously for the given track ID and exits.`,
	Run: func(cmd *cobra.Command, args []string) {
		if workerTrackID <= 0 {
			log.Fatal("a positive --track ID is required")
		}

		cfg := config.Load()
		logger.InitLogger(logger.Config{
			Level:      logger.LogLevel(cfg.LogLevel),
			OutputPath: cfg.LogOutput,
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
		})

		if err := db.ConnectDB(cfg); err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		defer db.DB.Close()
		if err := db.ConnectGormDB(cfg); err != nil {
			log.Fatalf("failed to connect gorm database: %v", err)
		}
		if err := cache.ConnectRedis(cfg); err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer cache.CloseRedis()

		var publisher transcode.Publisher
		if cfg.MinioEndpoint != "" {
			if err := storage.InitMinio(cfg); err != nil {
				log.Fatalf("failed to initialize minio: %v", err)
			}
			publisher = storage.NewObjectPublisher(storage.GetMinioClient(), cfg.MinioBucket)
		}

		trackRepo := repository.NewMySQLTrackRepository()
		assetRepo := repository.NewMySQLTrackAssetRepository()
		webhookRepo := repository.NewGormWebhookRepository()

		encoder := transcode.NewFFmpegEncoder(cfg.FFmpegPath)
		transcoder := transcode.NewTranscoder(encoder, cfg, trackRepo, assetRepo, publisher)
		lease := cache.NewTranscodeLease(cfg.TranscodeJobTTL())
		dispatcher := webhook.NewDispatcher(cfg, assetRepo, webhookRepo)
		worker := transcode.NewWorker(transcoder, trackRepo, lease, dispatcher,
			cfg.TranscodeAttempts, cfg.TranscodeBackoff, 1)

		if err := worker.Run(context.Background(), workerTrackID); err != nil {
			log.Fatalf("transcode job failed: %v", err)
		}
		log.Printf("track %d transcoded successfully", workerTrackID)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().Int64VarP(&workerTrackID, "track", "t", 0, "ID of the track to transcode")
}
