package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/M-Abd-ElBaset/hls-audio-service/db"
	"github.com/M-Abd-ElBaset/hls-audio-service/model"
)

// TrackRepository defines the interface for track data operations.
type TrackRepository interface {
	CreateTrack(track *model.Track) (int64, error)
	GetTrackByID(id int64) (*model.Track, error)
	GetTrackByUUID(uuid string) (*model.Track, error)
	UpdateTrackStatus(trackID int64, status model.TrackStatus, errorMessage string) error
	UpdateTrackDuration(trackID int64, durationMs int64) error
}

// mysqlTrackRepository implements TrackRepository for MySQL.
type mysqlTrackRepository struct {
	DB *sql.DB
}

// NewMySQLTrackRepository creates a new instance of mysqlTrackRepository.
func NewMySQLTrackRepository() TrackRepository {
	return &mysqlTrackRepository{DB: db.DB}
}

const trackColumns = `id, uuid, user_id, title, artist, duration_ms, status, original_path, error_message, created_at, updated_at`

func scanTrack(row interface{ Scan(...interface{}) error }) (*model.Track, error) {
	track := &model.Track{}
	err := row.Scan(&track.ID, &track.UUID, &track.UserID, &track.Title, &track.Artist,
		&track.DurationMs, &track.Status, &track.OriginalPath, &track.ErrorMessage,
		&track.CreatedAt, &track.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return track, nil
}

// CreateTrack adds a new track to the database.
func (r *mysqlTrackRepository) CreateTrack(track *model.Track) (int64, error) {
	query := `INSERT INTO tracks (uuid, user_id, title, artist, status, original_path, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := r.DB.Prepare(query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement for CreateTrack: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	res, err := stmt.Exec(track.UUID, track.UserID, track.Title, track.Artist, track.Status, track.OriginalPath, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to execute CreateTrack: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for CreateTrack: %w", err)
	}
	return id, nil
}

// GetTrackByID retrieves a track by its ID.
func (r *mysqlTrackRepository) GetTrackByID(id int64) (*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE id = ?`
	track, err := scanTrack(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Track not found
		}
		return nil, fmt.Errorf("failed to scan track by ID %d: %w", id, err)
	}
	return track, nil
}

// GetTrackByUUID retrieves a track by its public UUID.
func (r *mysqlTrackRepository) GetTrackByUUID(uuid string) (*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE uuid = ?`
	track, err := scanTrack(r.DB.QueryRow(query, uuid))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan track by UUID %s: %w", uuid, err)
	}
	return track, nil
}

// UpdateTrackStatus sets the processing status and error message for a track.
func (r *mysqlTrackRepository) UpdateTrackStatus(trackID int64, status model.TrackStatus, errorMessage string) error {
	query := `UPDATE tracks SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`
	stmt, err := r.DB.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for UpdateTrackStatus: %w", err)
	}
	defer stmt.Close()

	var msg sql.NullString
	if errorMessage != "" {
		msg = sql.NullString{String: errorMessage, Valid: true}
	}
	if _, err = stmt.Exec(status, msg, time.Now(), trackID); err != nil {
		return fmt.Errorf("failed to execute UpdateTrackStatus for track ID %d: %w", trackID, err)
	}
	return nil
}

// UpdateTrackDuration sets the derived duration for a track.
func (r *mysqlTrackRepository) UpdateTrackDuration(trackID int64, durationMs int64) error {
	query := `UPDATE tracks SET duration_ms = ?, updated_at = ? WHERE id = ?`
	stmt, err := r.DB.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for UpdateTrackDuration: %w", err)
	}
	defer stmt.Close()

	if _, err = stmt.Exec(durationMs, time.Now(), trackID); err != nil {
		return fmt.Errorf("failed to execute UpdateTrackDuration for track ID %d: %w", trackID, err)
	}
	return nil
}
