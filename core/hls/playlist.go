// Package hls works with variant playlists produced by the transcode
// pipeline: parsing them into timed segment lists and deriving virtual clip
// playlists from them.
package hls

import (
	"fmt"
	"io"
	"math"
	"strings"

	ashls "github.com/as/hls"
)

// Segment is one media segment of a variant playlist with its declared
// duration and its cumulative position on the track timeline.
type Segment struct {
	Duration float64 // declared EXTINF duration, seconds
	URL      string
	StartMs  int64 // inclusive
	EndMs    int64 // exclusive
}

// VariantPlaylist is a parsed variant (media) playlist.
type VariantPlaylist struct {
	TargetDuration int
	Segments       []Segment
}

// ParseVariant decodes a variant playlist and computes each segment's
// [StartMs, EndMs) interval as the running sum of prior declared durations.
func ParseVariant(r io.Reader) (*VariantPlaylist, error) {
	var media ashls.Media
	if err := media.Decode(r); err != nil {
		return nil, fmt.Errorf("failed to decode variant playlist: %w", err)
	}

	p := &VariantPlaylist{
		TargetDuration: int(media.Target.Seconds()),
		Segments:       make([]Segment, 0, len(media.File)),
	}

	elapsed := 0.0
	for _, f := range media.File {
		d := f.Inf.Duration.Seconds()
		seg := Segment{
			Duration: d,
			URL:      strings.TrimSpace(f.Inf.URL),
			StartMs:  int64(math.Round(elapsed * 1000)),
			EndMs:    int64(math.Round((elapsed + d) * 1000)),
		}
		elapsed += d
		p.Segments = append(p.Segments, seg)
	}

	return p, nil
}

// TotalDurationMs is the sum of all declared segment durations in
// milliseconds. Both variants of a track must agree on this value.
func (p *VariantPlaylist) TotalDurationMs() int64 {
	total := 0.0
	for _, s := range p.Segments {
		total += s.Duration
	}
	return int64(math.Round(total * 1000))
}
