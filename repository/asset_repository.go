package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/M-Abd-ElBaset/hls-audio-service/db"
	"github.com/M-Abd-ElBaset/hls-audio-service/model"
)

// TrackAssetRepository defines the interface for track asset data operations.
type TrackAssetRepository interface {
	CreateAsset(asset *model.TrackAsset) (int64, error)
	DeleteAssetsByTrackID(trackID int64) error
	GetVariantAssets(trackID int64) ([]*model.TrackAsset, error)
	GetMasterAsset(trackID int64) (*model.TrackAsset, error)
	GetWaveformAsset(trackID int64) (*model.TrackAsset, error)
	GetVariantAsset(trackID int64, bitrateKbps int64) (*model.TrackAsset, error)
	GetSegmentAsset(trackID int64, bitrateKbps int64, segmentIndex int64) (*model.TrackAsset, error)
}

// mysqlTrackAssetRepository implements TrackAssetRepository for MySQL.
type mysqlTrackAssetRepository struct {
	DB *sql.DB
}

// NewMySQLTrackAssetRepository creates a new instance of mysqlTrackAssetRepository.
func NewMySQLTrackAssetRepository() TrackAssetRepository {
	return &mysqlTrackAssetRepository{DB: db.DB}
}

const assetColumns = `id, track_id, type, path, bitrate_kbps, segment_index, duration_ms, created_at`

func scanAsset(row interface{ Scan(...interface{}) error }) (*model.TrackAsset, error) {
	asset := &model.TrackAsset{}
	err := row.Scan(&asset.ID, &asset.TrackID, &asset.Type, &asset.Path,
		&asset.BitrateKbps, &asset.SegmentIndex, &asset.DurationMs, &asset.CreatedAt)
	if err != nil {
		return nil, err
	}
	return asset, nil
}

// CreateAsset adds a new asset row.
func (r *mysqlTrackAssetRepository) CreateAsset(asset *model.TrackAsset) (int64, error) {
	query := `INSERT INTO track_assets (track_id, type, path, bitrate_kbps, segment_index, duration_ms, created_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`
	stmt, err := r.DB.Prepare(query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement for CreateAsset: %w", err)
	}
	defer stmt.Close()

	res, err := stmt.Exec(asset.TrackID, asset.Type, asset.Path, asset.BitrateKbps,
		asset.SegmentIndex, asset.DurationMs, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to execute CreateAsset: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for CreateAsset: %w", err)
	}
	return id, nil
}

// DeleteAssetsByTrackID removes every asset row of a track. Used when a
// pipeline re-run replaces the asset set as a unit.
func (r *mysqlTrackAssetRepository) DeleteAssetsByTrackID(trackID int64) error {
	if _, err := r.DB.Exec(`DELETE FROM track_assets WHERE track_id = ?`, trackID); err != nil {
		return fmt.Errorf("failed to delete assets for track ID %d: %w", trackID, err)
	}
	return nil
}

// GetVariantAssets returns the variant playlists of a track ordered by
// bitrate descending, so the first entry is the preferred quality.
func (r *mysqlTrackAssetRepository) GetVariantAssets(trackID int64) ([]*model.TrackAsset, error) {
	query := `SELECT ` + assetColumns + ` FROM track_assets
	           WHERE track_id = ? AND type = 'variant' ORDER BY bitrate_kbps DESC, id ASC`
	rows, err := r.DB.Query(query, trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to query variant assets for track ID %d: %w", trackID, err)
	}
	defer rows.Close()

	assets := make([]*model.TrackAsset, 0)
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset in GetVariantAssets: %w", err)
		}
		assets = append(assets, asset)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetVariantAssets: %w", err)
	}
	return assets, nil
}

func (r *mysqlTrackAssetRepository) getSingle(query string, args ...interface{}) (*model.TrackAsset, error) {
	asset, err := scanAsset(r.DB.QueryRow(query, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan asset: %w", err)
	}
	return asset, nil
}

// GetMasterAsset returns the master playlist asset of a track.
func (r *mysqlTrackAssetRepository) GetMasterAsset(trackID int64) (*model.TrackAsset, error) {
	query := `SELECT ` + assetColumns + ` FROM track_assets WHERE track_id = ? AND type = 'master'`
	return r.getSingle(query, trackID)
}

// GetWaveformAsset returns the waveform summary asset of a track.
func (r *mysqlTrackAssetRepository) GetWaveformAsset(trackID int64) (*model.TrackAsset, error) {
	query := `SELECT ` + assetColumns + ` FROM track_assets WHERE track_id = ? AND type = 'waveform'`
	return r.getSingle(query, trackID)
}

// GetVariantAsset returns one variant playlist by bitrate.
func (r *mysqlTrackAssetRepository) GetVariantAsset(trackID int64, bitrateKbps int64) (*model.TrackAsset, error) {
	query := `SELECT ` + assetColumns + ` FROM track_assets
	           WHERE track_id = ? AND type = 'variant' AND bitrate_kbps = ?`
	return r.getSingle(query, trackID, bitrateKbps)
}

// GetSegmentAsset returns one media segment by bitrate and index.
func (r *mysqlTrackAssetRepository) GetSegmentAsset(trackID int64, bitrateKbps int64, segmentIndex int64) (*model.TrackAsset, error) {
	query := `SELECT ` + assetColumns + ` FROM track_assets
	           WHERE track_id = ? AND type = 'segment' AND bitrate_kbps = ? AND segment_index = ?`
	return r.getSingle(query, trackID, bitrateKbps, segmentIndex)
}
