package cmd

import (
	"context"
	"log"
	"path/filepath"

	"github.com/M-Abd-ElBaset/hls-audio-service/config"
	"github.com/M-Abd-ElBaset/hls-audio-service/storage"

	"github.com/spf13/cobra"
)

var (
	minioTrackUUID string
	minioRemove    bool
)

// minioCmd re-mirrors or removes one track's HLS output in object storage.
var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "Manage mirrored HLS assets in object storage",
	Run: func(cmd *cobra.Command, args []string) {
		if minioTrackUUID == "" {
			log.Fatal("--track-uuid is required")
		}

		cfg := config.Load()
		if cfg.MinioEndpoint == "" {
			log.Fatal("MINIO_ENDPOINT is not configured")
		}
		if err := storage.InitMinio(cfg); err != nil {
			log.Fatalf("failed to initialize minio: %v", err)
		}
		publisher := storage.NewObjectPublisher(storage.GetMinioClient(), cfg.MinioBucket)

		ctx := context.Background()
		if minioRemove {
			if err := publisher.RemovePrefix(ctx, minioTrackUUID); err != nil {
				log.Fatalf("failed to remove mirrored assets: %v", err)
			}
			log.Printf("removed mirrored assets for track %s", minioTrackUUID)
			return
		}

		localDir := filepath.Join(cfg.StreamDir, minioTrackUUID)
		if err := publisher.PublishDir(ctx, localDir, minioTrackUUID); err != nil {
			log.Fatalf("failed to publish %s: %v", localDir, err)
		}
		log.Printf("published %s to bucket %s", localDir, cfg.MinioBucket)
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)
	minioCmd.Flags().StringVar(&minioTrackUUID, "track-uuid", "", "UUID of the track whose stream directory to mirror")
	minioCmd.Flags().BoolVar(&minioRemove, "remove", false, "remove the mirrored assets instead of publishing")
}
