package transcode

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/M-Abd-ElBaset/hls-audio-service/config"
	"github.com/M-Abd-ElBaset/hls-audio-service/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEncoder mimics the ffmpeg invocations the pipeline makes: the HLS
// encode writes deterministic playlists and segment files, the waveform
// decode returns raw PCM on stdout.
type fakeEncoder struct {
	mu          sync.Mutex
	encodeCalls int
	failEncode  bool
	pcmSeconds  int // seconds of fake audio, at 200 Hz mono
	segDurs     []float64
}

func (f *fakeEncoder) Run(ctx context.Context, args []string, timeout time.Duration) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := 0; i < len(args); i++ {
		if args[i] == "-f" && i+1 < len(args) && args[i+1] == "s16le" {
			return f.runWaveform()
		}
	}
	return f.runEncode(args)
}

func (f *fakeEncoder) runWaveform() (*Result, error) {
	samples := f.pcmSeconds * 200
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(i%2000-1000)))
	}
	return &Result{ExitCode: 0, Stdout: pcm}, nil
}

func (f *fakeEncoder) runEncode(args []string) (*Result, error) {
	f.encodeCalls++
	if f.failEncode {
		return &Result{ExitCode: 1, Stderr: "boom"}, fmt.Errorf("encoder execution failed: exit status 1")
	}

	for i := 0; i < len(args); i++ {
		if args[i] != "-hls_segment_filename" || i+2 >= len(args) {
			continue
		}
		segPattern, playlistPath := args[i+1], args[i+2]

		playlist := "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:6\n#EXT-X-MEDIA-SEQUENCE:0\n#EXT-X-PLAYLIST-TYPE:VOD\n"
		for idx, d := range f.segDurs {
			playlist += fmt.Sprintf("#EXTINF:%f,\n%s\n", d, filepath.Base(fmt.Sprintf(segPattern, idx)))
			if err := os.WriteFile(fmt.Sprintf(segPattern, idx), []byte("ts"), 0644); err != nil {
				return nil, err
			}
		}
		playlist += "#EXT-X-ENDLIST\n"
		if err := os.WriteFile(playlistPath, []byte(playlist), 0644); err != nil {
			return nil, err
		}
	}
	return &Result{ExitCode: 0}, nil
}

// memTrackRepo and memAssetRepo keep rows in memory for pipeline tests.
type memTrackRepo struct {
	mu     sync.Mutex
	tracks map[int64]*model.Track
}

func newMemTrackRepo(tracks ...*model.Track) *memTrackRepo {
	r := &memTrackRepo{tracks: make(map[int64]*model.Track)}
	for _, tr := range tracks {
		r.tracks[tr.ID] = tr
	}
	return r
}

func (r *memTrackRepo) CreateTrack(track *model.Track) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := int64(len(r.tracks) + 1)
	track.ID = id
	r.tracks[id] = track
	return id, nil
}

func (r *memTrackRepo) GetTrackByID(id int64) (*model.Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tr, ok := r.tracks[id]; ok {
		cp := *tr
		return &cp, nil
	}
	return nil, nil
}

func (r *memTrackRepo) GetTrackByUUID(uuid string) (*model.Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tr := range r.tracks {
		if tr.UUID == uuid {
			cp := *tr
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memTrackRepo) UpdateTrackStatus(trackID int64, status model.TrackStatus, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tr := r.tracks[trackID]
	tr.Status = status
	tr.ErrorMessage.String = errorMessage
	tr.ErrorMessage.Valid = errorMessage != ""
	return nil
}

func (r *memTrackRepo) UpdateTrackDuration(trackID int64, durationMs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracks[trackID].DurationMs.Int64 = durationMs
	r.tracks[trackID].DurationMs.Valid = true
	return nil
}

type memAssetRepo struct {
	mu     sync.Mutex
	assets []*model.TrackAsset
}

func (r *memAssetRepo) CreateAsset(asset *model.TrackAsset) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *asset
	cp.ID = int64(len(r.assets) + 1)
	r.assets = append(r.assets, &cp)
	return cp.ID, nil
}

func (r *memAssetRepo) DeleteAssetsByTrackID(trackID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.assets[:0]
	for _, a := range r.assets {
		if a.TrackID != trackID {
			kept = append(kept, a)
		}
	}
	r.assets = kept
	return nil
}

func (r *memAssetRepo) byType(trackID int64, typ model.AssetType) []*model.TrackAsset {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.TrackAsset
	for _, a := range r.assets {
		if a.TrackID == trackID && a.Type == typ {
			out = append(out, a)
		}
	}
	return out
}

func (r *memAssetRepo) GetVariantAssets(trackID int64) ([]*model.TrackAsset, error) {
	return r.byType(trackID, model.AssetVariant), nil
}

func (r *memAssetRepo) GetMasterAsset(trackID int64) (*model.TrackAsset, error) {
	if m := r.byType(trackID, model.AssetMaster); len(m) > 0 {
		return m[0], nil
	}
	return nil, nil
}

func (r *memAssetRepo) GetWaveformAsset(trackID int64) (*model.TrackAsset, error) {
	if m := r.byType(trackID, model.AssetWaveform); len(m) > 0 {
		return m[0], nil
	}
	return nil, nil
}

func (r *memAssetRepo) GetVariantAsset(trackID int64, bitrateKbps int64) (*model.TrackAsset, error) {
	for _, a := range r.byType(trackID, model.AssetVariant) {
		if a.BitrateKbps.Int64 == bitrateKbps {
			return a, nil
		}
	}
	return nil, nil
}

func (r *memAssetRepo) GetSegmentAsset(trackID int64, bitrateKbps int64, segmentIndex int64) (*model.TrackAsset, error) {
	for _, a := range r.byType(trackID, model.AssetSegment) {
		if a.BitrateKbps.Int64 == bitrateKbps && a.SegmentIndex.Int64 == segmentIndex {
			return a, nil
		}
	}
	return nil, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	return &config.Config{
		VariantBitrates:      []int{64, 128},
		SegmentSeconds:       6,
		SegmentPattern:       "seg-%05d.ts",
		LoudnormFilter:       "loudnorm=I=-16:TP=-1.5:LRA=11",
		WaveformSampleRate:   200,
		WaveformSampleRateMs: 50,
		TranscodeTimeout:     time.Minute,
		WaveformTimeout:      time.Minute,
		StreamDir:            filepath.Join(base, "streams"),
		SourceAudioDir:       filepath.Join(base, "uploads"),
	}
}

func testTrack(t *testing.T, cfg *config.Config) *model.Track {
	t.Helper()
	require.NoError(t, os.MkdirAll(cfg.SourceAudioDir, 0755))
	orig := filepath.Join(cfg.SourceAudioDir, "song.wav")
	require.NoError(t, os.WriteFile(orig, []byte("wav"), 0644))
	return &model.Track{
		ID:           1,
		UUID:         "11111111-2222-3333-4444-555555555555",
		UserID:       7,
		Title:        "Test Song",
		Status:       model.StatusPending,
		OriginalPath: orig,
	}
}

func TestTranscodeProducesAssetSet(t *testing.T) {
	cfg := testConfig(t)
	track := testTrack(t, cfg)
	enc := &fakeEncoder{pcmSeconds: 15, segDurs: []float64{6, 6, 3.5}}
	trackRepo := newMemTrackRepo(track)
	assetRepo := &memAssetRepo{}
	tc := NewTranscoder(enc, cfg, trackRepo, assetRepo, nil)

	require.NoError(t, tc.Transcode(context.Background(), track))

	master, err := assetRepo.GetMasterAsset(track.ID)
	require.NoError(t, err)
	require.NotNil(t, master)
	assert.Equal(t, track.UUID+"/master.m3u8", master.Path)

	data, err := os.ReadFile(filepath.Join(cfg.StreamDir, track.UUID, "master.m3u8"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `#EXT-X-STREAM-INF:BANDWIDTH=64000,CODECS="mp4a.40.2"`)
	assert.Contains(t, string(data), `#EXT-X-STREAM-INF:BANDWIDTH=128000,CODECS="mp4a.40.2"`)
	assert.Contains(t, string(data), "64k/index.m3u8")
	assert.Contains(t, string(data), "128k/index.m3u8")

	variants, err := assetRepo.GetVariantAssets(track.ID)
	require.NoError(t, err)
	assert.Len(t, variants, 2)

	wf, err := assetRepo.GetWaveformAsset(track.ID)
	require.NoError(t, err)
	require.NotNil(t, wf)

	segs := assetRepo.byType(track.ID, model.AssetSegment)
	assert.Len(t, segs, 6) // 3 segments per variant

	stored, err := trackRepo.GetTrackByID(track.ID)
	require.NoError(t, err)
	assert.True(t, stored.DurationMs.Valid)
	assert.Equal(t, int64(15500), stored.DurationMs.Int64)
}

func TestTranscodeIdempotentRerun(t *testing.T) {
	cfg := testConfig(t)
	track := testTrack(t, cfg)
	enc := &fakeEncoder{pcmSeconds: 15, segDurs: []float64{6, 6, 3.5}}
	trackRepo := newMemTrackRepo(track)
	assetRepo := &memAssetRepo{}
	tc := NewTranscoder(enc, cfg, trackRepo, assetRepo, nil)

	require.NoError(t, tc.Transcode(context.Background(), track))

	firstPaths := assetPaths(assetRepo, track.ID)
	first, _ := trackRepo.GetTrackByID(track.ID)

	require.NoError(t, tc.Transcode(context.Background(), track))

	assert.Equal(t, firstPaths, assetPaths(assetRepo, track.ID))
	second, _ := trackRepo.GetTrackByID(track.ID)
	assert.Equal(t, first.DurationMs, second.DurationMs)
}

func assetPaths(r *memAssetRepo, trackID int64) map[string]model.AssetType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]model.AssetType)
	for _, a := range r.assets {
		if a.TrackID == trackID {
			out[a.Path] = a.Type
		}
	}
	return out
}

func TestTranscodeFailsWhenEncoderFails(t *testing.T) {
	cfg := testConfig(t)
	track := testTrack(t, cfg)
	enc := &fakeEncoder{failEncode: true}
	tc := NewTranscoder(enc, cfg, newMemTrackRepo(track), &memAssetRepo{}, nil)

	err := tc.Transcode(context.Background(), track)
	assert.Error(t, err)
}

func TestTranscodeFailsWhenOriginalMissing(t *testing.T) {
	cfg := testConfig(t)
	track := testTrack(t, cfg)
	track.OriginalPath = filepath.Join(cfg.SourceAudioDir, "missing.wav")
	tc := NewTranscoder(&fakeEncoder{}, cfg, newMemTrackRepo(track), &memAssetRepo{}, nil)

	err := tc.Transcode(context.Background(), track)
	assert.Error(t, err)
}
