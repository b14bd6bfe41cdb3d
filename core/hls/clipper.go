package hls

import (
	"fmt"
	"strings"

	"github.com/M-Abd-ElBaset/hls-audio-service/errs"
	"github.com/M-Abd-ElBaset/hls-audio-service/logger"
)

// minSegmentSeconds floors a trimmed EXTINF so it never reaches zero or
// goes negative.
const minSegmentSeconds = 0.001

// driftToleranceMs is the accepted gap between the emitted playlist length
// and the nominal clip window before a warning is logged.
const driftToleranceMs = 500

// BuildClipPlaylist derives a VOD playlist covering [startMs, endMs) from a
// parsed variant playlist. Segment media is referenced unmodified; only the
// declared EXTINF durations of the two boundary segments are trimmed, so a
// player will typically hear slightly more audio than the nominal window at
// the edges. That is accepted behavior, not something to correct here.
func BuildClipPlaylist(p *VariantPlaylist, startMs, endMs int64) (string, error) {
	if startMs >= endMs {
		return "", errs.ErrInvalidClipRange
	}

	selected := make([]Segment, 0, 8)
	for _, seg := range p.Segments {
		// Segments are time-ordered, so the first one starting at or past
		// the clip end closes the scan.
		if seg.StartMs >= endMs {
			break
		}
		if seg.EndMs > startMs && seg.StartMs < endMs {
			selected = append(selected, seg)
		}
	}

	if len(selected) == 0 {
		return "", errs.ErrNotFound
	}

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", p.TargetDuration)
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	b.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n")

	emitted := 0.0
	for i, seg := range selected {
		duration := seg.Duration

		if i == 0 && seg.StartMs < startMs {
			overlapMs := startMs - seg.StartMs
			duration = seg.Duration - float64(overlapMs)/1000
		}
		if i == len(selected)-1 && seg.EndMs > endMs {
			overlapMs := seg.EndMs - endMs
			duration -= float64(overlapMs) / 1000
		}
		if duration < minSegmentSeconds {
			duration = minSegmentSeconds
		}

		fmt.Fprintf(&b, "#EXTINF:%.3f,\n", duration)
		b.WriteString(seg.URL)
		b.WriteByte('\n')
		emitted += duration
	}

	b.WriteString("#EXT-X-ENDLIST\n")

	expectedMs := endMs - startMs
	actualMs := emitted * 1000
	if diff := actualMs - float64(expectedMs); diff > driftToleranceMs || diff < -driftToleranceMs {
		logger.Warn("clip playlist duration drift",
			logger.Int64("expectedMs", expectedMs),
			logger.Float64("actualMs", actualMs),
			logger.Float64("differenceMs", diff))
	}

	return b.String(), nil
}
