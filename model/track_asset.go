package model

import (
	"database/sql"
	"time"
)

// AssetType identifies what kind of artifact a TrackAsset row points at.
type AssetType string

const (
	AssetMaster   AssetType = "master"
	AssetVariant  AssetType = "variant"
	AssetSegment  AssetType = "segment"
	AssetWaveform AssetType = "waveform"
)

// TrackAsset is one artifact produced by the transcode pipeline. A ready
// track has exactly one master asset; segments of a given bitrate form a
// 0-indexed contiguous sequence matching the variant playlist's EXTINF
// entries.
type TrackAsset struct {
	ID           int64         `json:"id"`
	TrackID      int64         `json:"trackId"`
	Type         AssetType     `json:"type"`
	Path         string        `json:"path"`
	BitrateKbps  sql.NullInt64 `json:"bitrateKbps"`  // variant and segment only
	SegmentIndex sql.NullInt64 `json:"segmentIndex"` // segment only
	DurationMs   sql.NullInt64 `json:"durationMs"`
	CreatedAt    time.Time     `json:"createdAt"`
}
