package model

import "time"

// Clip is a virtual sub-range of a track, served by rewriting playlist
// metadata only. Immutable once created except for deletion.
type Clip struct {
	ID        int64     `json:"id"`
	UUID      string    `json:"uuid"`
	TrackID   int64     `json:"trackId"`
	UserID    int64     `json:"userId"`
	Name      string    `json:"name,omitempty"`
	StartMs   int64     `json:"startMs"`
	EndMs     int64     `json:"endMs"`
	CreatedAt time.Time `json:"createdAt"`
}

// DurationMs returns the nominal clip length.
func (c *Clip) DurationMs() int64 {
	return c.EndMs - c.StartMs
}
