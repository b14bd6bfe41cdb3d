// Package transcode turns an uploaded audio file into a multi-bitrate HLS
// asset set plus a waveform summary, driving the track status state machine.
package transcode

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/M-Abd-ElBaset/hls-audio-service/config"
	"github.com/M-Abd-ElBaset/hls-audio-service/core/hls"
	"github.com/M-Abd-ElBaset/hls-audio-service/logger"
	"github.com/M-Abd-ElBaset/hls-audio-service/model"
	"github.com/M-Abd-ElBaset/hls-audio-service/repository"
)

var segmentNameRe = regexp.MustCompile(`^seg-(\d+)\.ts$`)

// Publisher mirrors a finished output directory to object storage. Optional;
// a nil Publisher means assets are served from local disk only.
type Publisher interface {
	PublishDir(ctx context.Context, localDir, prefix string) error
}

// Transcoder converts one track's original upload into the HLS asset set.
type Transcoder struct {
	encoder   Encoder
	cfg       *config.Config
	tracks    repository.TrackRepository
	assets    repository.TrackAssetRepository
	publisher Publisher
}

// NewTranscoder creates a Transcoder. publisher may be nil.
func NewTranscoder(encoder Encoder, cfg *config.Config, tracks repository.TrackRepository,
	assets repository.TrackAssetRepository, publisher Publisher) *Transcoder {
	return &Transcoder{
		encoder:   encoder,
		cfg:       cfg,
		tracks:    tracks,
		assets:    assets,
		publisher: publisher,
	}
}

// variantDirName is the per-bitrate subdirectory, e.g. "64k".
func variantDirName(bitrateKbps int) string {
	return fmt.Sprintf("%dk", bitrateKbps)
}

// encodeArgs builds the single ffmpeg invocation producing every variant
// from the same source, loudness-normalized uniformly.
func (t *Transcoder) encodeArgs(inputPath, outputDir string) []string {
	args := []string{
		"-i", inputPath,
		"-filter:a", t.cfg.LoudnormFilter,
	}
	for _, bitrate := range t.cfg.VariantBitrates {
		variantDir := filepath.Join(outputDir, variantDirName(bitrate))
		args = append(args,
			"-map", "0:a",
			"-c:a", "aac",
			"-b:a", fmt.Sprintf("%dk", bitrate),
			"-hls_time", strconv.Itoa(t.cfg.SegmentSeconds),
			"-hls_playlist_type", "vod",
			"-hls_segment_filename", filepath.Join(variantDir, t.cfg.SegmentPattern),
			filepath.Join(variantDir, "index.m3u8"),
		)
	}
	return append(args, "-y")
}

// masterPlaylist synthesizes the top-level playlist referencing every variant.
func (t *Transcoder) masterPlaylist() string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	for _, bitrate := range t.cfg.VariantBitrates {
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,CODECS=\"mp4a.40.2\"\n", bitrate*1000)
		fmt.Fprintf(&b, "%s/index.m3u8\n", variantDirName(bitrate))
	}
	return b.String()
}

// Transcode runs the whole pipeline for one track. Any encoder failure
// aborts the run; a re-run overwrites all outputs, so the asset set is only
// ever replaced as a unit.
func (t *Transcoder) Transcode(ctx context.Context, track *model.Track) error {
	if _, err := os.Stat(track.OriginalPath); err != nil {
		return fmt.Errorf("original file missing for track %d: %w", track.ID, err)
	}

	outputDir := filepath.Join(t.cfg.StreamDir, track.UUID)
	variantDirs := make([]string, 0, len(t.cfg.VariantBitrates))
	for _, bitrate := range t.cfg.VariantBitrates {
		dir := filepath.Join(outputDir, variantDirName(bitrate))
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create variant directory %s: %w", dir, err)
		}
		variantDirs = append(variantDirs, dir)
	}

	stopWatch := watchSegments(ctx, variantDirs, track.UUID)
	_, err := t.encoder.Run(ctx, t.encodeArgs(track.OriginalPath, outputDir), t.cfg.TranscodeTimeout)
	stopWatch()
	if err != nil {
		return fmt.Errorf("transcode failed for track %d: %w", track.ID, err)
	}

	masterPath := filepath.Join(outputDir, "master.m3u8")
	if err := os.WriteFile(masterPath, []byte(t.masterPlaylist()), 0644); err != nil {
		return fmt.Errorf("failed to write master playlist: %w", err)
	}

	waveformPath := filepath.Join(outputDir, "waveform.json")
	if _, err := t.GenerateWaveform(ctx, track.OriginalPath, waveformPath); err != nil {
		return err
	}

	if err := t.saveAssets(track, outputDir); err != nil {
		return err
	}

	if t.publisher != nil {
		if err := t.publisher.PublishDir(ctx, outputDir, track.UUID); err != nil {
			// Local disk remains the source of truth; the mirror is best effort.
			logger.Warn("failed to publish HLS assets to object storage",
				logger.Int64("trackId", track.ID),
				logger.ErrorField(err))
		}
	}

	return nil
}

// saveAssets replaces the track's asset rows with the artifacts found in the
// output directory and derives the track duration from one variant playlist.
func (t *Transcoder) saveAssets(track *model.Track, outputDir string) error {
	// Replace, never append: a retried run must not leave duplicates.
	if err := t.assets.DeleteAssetsByTrackID(track.ID); err != nil {
		return err
	}

	relPath := func(parts ...string) string {
		return strings.Join(append([]string{track.UUID}, parts...), "/")
	}

	if _, err := t.assets.CreateAsset(&model.TrackAsset{
		TrackID: track.ID,
		Type:    model.AssetMaster,
		Path:    relPath("master.m3u8"),
	}); err != nil {
		return err
	}

	if _, err := t.assets.CreateAsset(&model.TrackAsset{
		TrackID: track.ID,
		Type:    model.AssetWaveform,
		Path:    relPath("waveform.json"),
	}); err != nil {
		return err
	}

	var durationMs int64 = -1
	for _, bitrate := range t.cfg.VariantBitrates {
		dirName := variantDirName(bitrate)
		playlistPath := filepath.Join(outputDir, dirName, "index.m3u8")

		f, err := os.Open(playlistPath)
		if err != nil {
			return fmt.Errorf("variant playlist missing at %s: %w", playlistPath, err)
		}
		variant, err := hls.ParseVariant(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("failed to parse variant playlist %s: %w", playlistPath, err)
		}

		if _, err := t.assets.CreateAsset(&model.TrackAsset{
			TrackID:     track.ID,
			Type:        model.AssetVariant,
			Path:        relPath(dirName, "index.m3u8"),
			BitrateKbps: sql.NullInt64{Int64: int64(bitrate), Valid: true},
			DurationMs:  sql.NullInt64{Int64: variant.TotalDurationMs(), Valid: true},
		}); err != nil {
			return err
		}

		if err := t.saveSegmentAssets(track, outputDir, dirName, bitrate, variant); err != nil {
			return err
		}

		// Any one variant determines the track duration; the others must agree.
		total := variant.TotalDurationMs()
		if durationMs < 0 {
			durationMs = total
		} else if durationMs != total {
			logger.Warn("variant playlists disagree on total duration",
				logger.Int64("trackId", track.ID),
				logger.Int("bitrateKbps", bitrate),
				logger.Int64("expectedMs", durationMs),
				logger.Int64("actualMs", total))
		}
	}

	if durationMs < 0 {
		return fmt.Errorf("no variant playlist produced for track %d", track.ID)
	}
	return t.tracks.UpdateTrackDuration(track.ID, durationMs)
}

// saveSegmentAssets scans a variant directory for segment files matching the
// deterministic name pattern and records one asset row each.
func (t *Transcoder) saveSegmentAssets(track *model.Track, outputDir, dirName string, bitrate int, variant *hls.VariantPlaylist) error {
	entries, err := os.ReadDir(filepath.Join(outputDir, dirName))
	if err != nil {
		return fmt.Errorf("failed to scan variant directory %s: %w", dirName, err)
	}

	for _, entry := range entries {
		m := segmentNameRe.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		index, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}

		asset := &model.TrackAsset{
			TrackID:      track.ID,
			Type:         model.AssetSegment,
			Path:         track.UUID + "/" + dirName + "/" + entry.Name(),
			BitrateKbps:  sql.NullInt64{Int64: int64(bitrate), Valid: true},
			SegmentIndex: sql.NullInt64{Int64: index, Valid: true},
		}
		if int(index) < len(variant.Segments) {
			seg := variant.Segments[index]
			asset.DurationMs = sql.NullInt64{Int64: seg.EndMs - seg.StartMs, Valid: true}
		}
		if _, err := t.assets.CreateAsset(asset); err != nil {
			return err
		}
	}
	return nil
}
