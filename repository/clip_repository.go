package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/M-Abd-ElBaset/hls-audio-service/db"
	"github.com/M-Abd-ElBaset/hls-audio-service/model"
)

// ClipRepository defines the interface for clip data operations.
type ClipRepository interface {
	CreateClip(clip *model.Clip) (int64, error)
	GetClipByUUID(uuid string) (*model.Clip, error)
	GetClipsByTrackID(trackID int64) ([]*model.Clip, error)
	DeleteClip(id int64) error
}

// mysqlClipRepository implements ClipRepository for MySQL.
type mysqlClipRepository struct {
	DB *sql.DB
}

// NewMySQLClipRepository creates a new instance of mysqlClipRepository.
func NewMySQLClipRepository() ClipRepository {
	return &mysqlClipRepository{DB: db.DB}
}

const clipColumns = `id, uuid, track_id, user_id, name, start_ms, end_ms, created_at`

func scanClip(row interface{ Scan(...interface{}) error }) (*model.Clip, error) {
	clip := &model.Clip{}
	err := row.Scan(&clip.ID, &clip.UUID, &clip.TrackID, &clip.UserID,
		&clip.Name, &clip.StartMs, &clip.EndMs, &clip.CreatedAt)
	if err != nil {
		return nil, err
	}
	return clip, nil
}

// CreateClip adds a new clip row. Clips are immutable once created.
func (r *mysqlClipRepository) CreateClip(clip *model.Clip) (int64, error) {
	query := `INSERT INTO clips (uuid, track_id, user_id, name, start_ms, end_ms, created_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`
	stmt, err := r.DB.Prepare(query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement for CreateClip: %w", err)
	}
	defer stmt.Close()

	res, err := stmt.Exec(clip.UUID, clip.TrackID, clip.UserID, clip.Name, clip.StartMs, clip.EndMs, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to execute CreateClip: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for CreateClip: %w", err)
	}
	return id, nil
}

// GetClipByUUID retrieves a clip by its public UUID.
func (r *mysqlClipRepository) GetClipByUUID(uuid string) (*model.Clip, error) {
	query := `SELECT ` + clipColumns + ` FROM clips WHERE uuid = ?`
	clip, err := scanClip(r.DB.QueryRow(query, uuid))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan clip by UUID %s: %w", uuid, err)
	}
	return clip, nil
}

// GetClipsByTrackID retrieves all clips of a track, newest first.
func (r *mysqlClipRepository) GetClipsByTrackID(trackID int64) ([]*model.Clip, error) {
	query := `SELECT ` + clipColumns + ` FROM clips WHERE track_id = ? ORDER BY created_at DESC`
	rows, err := r.DB.Query(query, trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to query clips for track ID %d: %w", trackID, err)
	}
	defer rows.Close()

	clips := make([]*model.Clip, 0)
	for rows.Next() {
		clip, err := scanClip(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan clip in GetClipsByTrackID: %w", err)
		}
		clips = append(clips, clip)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetClipsByTrackID: %w", err)
	}
	return clips, nil
}

// DeleteClip removes a clip row.
func (r *mysqlClipRepository) DeleteClip(id int64) error {
	if _, err := r.DB.Exec(`DELETE FROM clips WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete clip ID %d: %w", id, err)
	}
	return nil
}
