package db

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/M-Abd-ElBaset/hls-audio-service/config"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

var DB *sql.DB

// ConnectDB establishes a connection to the database.
func ConnectDB(cfg *config.Config) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	var err error
	DB, err = sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	if err = DB.Ping(); err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Successfully connected to the database.")
	return nil
}

// InitDB initializes the database schema, creating tables if they don't exist.
func InitDB() error {
	if err := createTracksTable(); err != nil {
		return err
	}
	if err := createTrackAssetsTable(); err != nil {
		return err
	}
	if err := createClipsTable(); err != nil {
		return err
	}
	log.Println("Database initialization completed.")
	return nil
}

func createTracksTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS tracks (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		uuid CHAR(36) NOT NULL UNIQUE,
		user_id BIGINT NOT NULL,
		title VARCHAR(255) NOT NULL,
		artist VARCHAR(255),
		duration_ms BIGINT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		original_path VARCHAR(767) NOT NULL,
		error_message TEXT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		INDEX idx_tracks_user (user_id)
	);
	`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create tracks table: %w", err)
	}
	return nil
}

func createTrackAssetsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS track_assets (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		track_id BIGINT NOT NULL,
		type VARCHAR(20) NOT NULL,
		path VARCHAR(767) NOT NULL,
		bitrate_kbps BIGINT NULL,
		segment_index BIGINT NULL,
		duration_ms BIGINT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT fk_track_assets_track FOREIGN KEY (track_id) REFERENCES tracks(id) ON DELETE CASCADE,
		INDEX idx_track_assets_lookup (track_id, type, bitrate_kbps, segment_index)
	);
	`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create track_assets table: %w", err)
	}
	return nil
}

func createClipsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS clips (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		uuid CHAR(36) NOT NULL UNIQUE,
		track_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		name VARCHAR(255),
		start_ms BIGINT NOT NULL,
		end_ms BIGINT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT fk_clips_track FOREIGN KEY (track_id) REFERENCES tracks(id) ON DELETE CASCADE,
		INDEX idx_clips_track (track_id)
	);
	`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create clips table: %w", err)
	}
	return nil
}
