package model

import (
	"database/sql"
	"time"
)

// TrackStatus is the processing state of a track.
type TrackStatus string

const (
	StatusPending    TrackStatus = "pending"
	StatusProcessing TrackStatus = "processing"
	StatusReady      TrackStatus = "ready"
	StatusFailed     TrackStatus = "failed"
)

// CanTransition reports whether moving from s to next is a legal status
// transition. The transcode worker is the only writer of track status.
func (s TrackStatus) CanTransition(next TrackStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusReady || next == StatusFailed
	case StatusFailed:
		return next == StatusProcessing // retry
	default:
		return false
	}
}

// Track represents an uploaded audio track. DurationMs stays NULL until the
// transcode pipeline has produced the HLS asset set.
type Track struct {
	ID           int64          `json:"id"`
	UUID         string         `json:"uuid"`
	UserID       int64          `json:"userId"`
	Title        string         `json:"title"`
	Artist       string         `json:"artist"`
	DurationMs   sql.NullInt64  `json:"durationMs"`
	Status       TrackStatus    `json:"status"`
	OriginalPath string         `json:"-"` // path to the original upload, never exposed
	ErrorMessage sql.NullString `json:"errorMessage,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}
