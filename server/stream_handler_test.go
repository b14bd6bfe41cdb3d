package server

import (
	"compress/gzip"
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/M-Abd-ElBaset/hls-audio-service/config"
	"github.com/M-Abd-ElBaset/hls-audio-service/core/stream"
	"github.com/M-Abd-ElBaset/hls-audio-service/core/token"
	"github.com/M-Abd-ElBaset/hls-audio-service/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memTracks struct {
	byUUID map[string]*model.Track
}

func (m *memTracks) CreateTrack(track *model.Track) (int64, error) { return 0, nil }
func (m *memTracks) GetTrackByID(id int64) (*model.Track, error) {
	for _, t := range m.byUUID {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, nil
}
func (m *memTracks) GetTrackByUUID(uuid string) (*model.Track, error) {
	return m.byUUID[uuid], nil
}
func (m *memTracks) UpdateTrackStatus(trackID int64, status model.TrackStatus, errorMessage string) error {
	return nil
}
func (m *memTracks) UpdateTrackDuration(trackID int64, durationMs int64) error { return nil }

type memAssets struct {
	assets []*model.TrackAsset
}

func (m *memAssets) CreateAsset(asset *model.TrackAsset) (int64, error) { return 0, nil }
func (m *memAssets) DeleteAssetsByTrackID(trackID int64) error          { return nil }
func (m *memAssets) GetVariantAssets(trackID int64) ([]*model.TrackAsset, error) {
	var out []*model.TrackAsset
	for _, a := range m.assets {
		if a.TrackID == trackID && a.Type == model.AssetVariant {
			out = append(out, a)
		}
	}
	return out, nil
}
func (m *memAssets) GetMasterAsset(trackID int64) (*model.TrackAsset, error)   { return nil, nil }
func (m *memAssets) GetWaveformAsset(trackID int64) (*model.TrackAsset, error) { return nil, nil }
func (m *memAssets) GetVariantAsset(trackID, bitrateKbps int64) (*model.TrackAsset, error) {
	for _, a := range m.assets {
		if a.TrackID == trackID && a.Type == model.AssetVariant && a.BitrateKbps.Int64 == bitrateKbps {
			return a, nil
		}
	}
	return nil, nil
}
func (m *memAssets) GetSegmentAsset(trackID, bitrateKbps, segmentIndex int64) (*model.TrackAsset, error) {
	for _, a := range m.assets {
		if a.TrackID == trackID && a.Type == model.AssetSegment &&
			a.BitrateKbps.Int64 == bitrateKbps && a.SegmentIndex.Int64 == segmentIndex {
			return a, nil
		}
	}
	return nil, nil
}

type memClips struct {
	byUUID  map[string]*model.Clip
	deleted []int64
}

func (m *memClips) CreateClip(clip *model.Clip) (int64, error) { return 0, nil }
func (m *memClips) GetClipByUUID(uuid string) (*model.Clip, error) {
	return m.byUUID[uuid], nil
}
func (m *memClips) GetClipsByTrackID(trackID int64) ([]*model.Clip, error) { return nil, nil }
func (m *memClips) DeleteClip(id int64) error {
	m.deleted = append(m.deleted, id)
	return nil
}

const variantPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:0
#EXT-X-PLAYLIST-TYPE:VOD
#EXTINF:6.000000,
seg-00000.ts
#EXTINF:6.000000,
seg-00001.ts
#EXT-X-ENDLIST
`

// newTestHandler builds an APIHandler over in-memory repos, a miniredis
// gate, and a populated stream directory for track "u-1".
func newTestHandler(t *testing.T) (*APIHandler, *mux.Router) {
	t.Helper()

	streamDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(streamDir, "u-1", "128k"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(streamDir, "u-1", "master.m3u8"),
		[]byte("#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=128000\n128k/index.m3u8\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(streamDir, "u-1", "128k", "index.m3u8"),
		[]byte(variantPlaylist), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(streamDir, "u-1", "128k", "seg-00000.ts"),
		[]byte("segment-data"), 0o644))

	cfg := &config.Config{
		StreamDir:       streamDir,
		TokenTTLSeconds: 3600,
		PublicBaseURL:   "http://localhost:8080",
	}

	codec, err := token.NewCodec("test-secret")
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	gate := stream.NewGate(&stream.RedisSessionStore{Client: client}, 2, 30*time.Second)

	tracks := &memTracks{byUUID: map[string]*model.Track{
		"u-1": {ID: 1, UUID: "u-1", Status: model.StatusReady,
			DurationMs: sql.NullInt64{Int64: 12000, Valid: true}},
		"u-pending": {ID: 2, UUID: "u-pending", Status: model.StatusProcessing},
	}}
	assets := &memAssets{assets: []*model.TrackAsset{
		{TrackID: 1, Type: model.AssetVariant, Path: "u-1/128k/index.m3u8",
			BitrateKbps: sql.NullInt64{Int64: 128, Valid: true}},
		{TrackID: 1, Type: model.AssetSegment, Path: "u-1/128k/seg-00000.ts",
			BitrateKbps:  sql.NullInt64{Int64: 128, Valid: true},
			SegmentIndex: sql.NullInt64{Int64: 0, Valid: true}},
	}}
	clips := &memClips{byUUID: map[string]*model.Clip{
		"c-1":     {ID: 10, UUID: "c-1", TrackID: 1, StartMs: 1500, EndMs: 7500},
		"c-owned": {ID: 11, UUID: "c-owned", TrackID: 1, UserID: 5, StartMs: 0, EndMs: 6000},
	}}

	h := NewAPIHandler(cfg, tracks, assets, clips, codec, gate, nil)

	router := mux.NewRouter()
	router.HandleFunc("/streams/hls/clip/{clip_uuid}/master.m3u8",
		h.SignedStream(h.ClipPlaylistHandler)).Methods(http.MethodGet)
	router.HandleFunc("/streams/hls/{track_uuid}/master.m3u8",
		h.SignedStream(h.MasterPlaylistHandler)).Methods(http.MethodGet)
	router.HandleFunc("/streams/hls/{track_uuid}/{bitrate}/index.m3u8",
		h.SignedStream(h.VariantPlaylistHandler)).Methods(http.MethodGet)
	router.HandleFunc("/streams/hls/{track_uuid}/{bitrate}/seg-{index}.ts",
		h.SignedStream(h.SegmentHandler)).Methods(http.MethodGet)
	return h, router
}

func issueTrackToken(t *testing.T, h *APIHandler, ip string) string {
	t.Helper()
	tok, err := h.codec.Issue(1, token.KindTrack, 0, ip, time.Hour)
	require.NoError(t, err)
	return tok
}

func doRequest(router *mux.Router, path, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestStreamRequiresToken(t *testing.T) {
	_, router := newTestHandler(t)
	rec := doRequest(router, "/streams/hls/u-1/master.m3u8", "10.0.0.1:1234")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStreamRejectsGarbageToken(t *testing.T) {
	_, router := newTestHandler(t)
	rec := doRequest(router, "/streams/hls/u-1/master.m3u8?token=not-a-token", "10.0.0.1:1234")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStreamRejectsExpiredToken(t *testing.T) {
	h, router := newTestHandler(t)
	tok, err := h.codec.Issue(1, token.KindTrack, 0, "", -time.Minute)
	require.NoError(t, err)

	rec := doRequest(router, "/streams/hls/u-1/master.m3u8?token="+tok, "10.0.0.1:1234")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStreamRejectsIPMismatch(t *testing.T) {
	h, router := newTestHandler(t)
	tok := issueTrackToken(t, h, "10.0.0.1")

	rec := doRequest(router, "/streams/hls/u-1/master.m3u8?token="+tok, "10.0.0.9:1234")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStreamRejectsForeignResource(t *testing.T) {
	h, router := newTestHandler(t)
	tok, err := h.codec.Issue(99, token.KindTrack, 0, "", time.Hour)
	require.NoError(t, err)

	rec := doRequest(router, "/streams/hls/u-1/master.m3u8?token="+tok, "10.0.0.1:1234")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMasterPlaylistServed(t *testing.T) {
	h, router := newTestHandler(t)
	tok := issueTrackToken(t, h, "10.0.0.1")

	rec := doRequest(router, "/streams/hls/u-1/master.m3u8?token="+tok, "10.0.0.1:1234")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, playlistContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=5", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "Accept-Encoding", rec.Header().Get("Vary"))
	assert.Contains(t, rec.Body.String(), "#EXT-X-STREAM-INF")
}

// Playlists are cached publicly, so a gzipped response must carry both the
// encoding header and Vary so caches never hand it to a client that cannot
// decode it.
func TestMasterPlaylistGzipNegotiation(t *testing.T) {
	h, router := newTestHandler(t)
	tok := issueTrackToken(t, h, "10.0.0.1")

	req := httptest.NewRequest(http.MethodGet, "/streams/hls/u-1/master.m3u8?token="+tok, nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	assert.Equal(t, "Accept-Encoding", rec.Header().Get("Vary"))

	gz, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Contains(t, string(body), "#EXT-X-STREAM-INF")
}

func TestVariantPlaylistServed(t *testing.T) {
	h, router := newTestHandler(t)
	tok := issueTrackToken(t, h, "10.0.0.1")

	rec := doRequest(router, "/streams/hls/u-1/128k/index.m3u8?token="+tok, "10.0.0.1:1234")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "#EXTINF:6.000000,")
}

func TestSegmentServed(t *testing.T) {
	h, router := newTestHandler(t)
	tok := issueTrackToken(t, h, "10.0.0.1")

	rec := doRequest(router, "/streams/hls/u-1/128k/seg-00000.ts?token="+tok, "10.0.0.1:1234")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/MP2T", rec.Header().Get("Content-Type"))
	assert.Equal(t, segmentCacheControl, rec.Header().Get("Cache-Control"))
	assert.Equal(t, "segment-data", rec.Body.String())
}

func TestSegmentUnknownIndex(t *testing.T) {
	h, router := newTestHandler(t)
	tok := issueTrackToken(t, h, "10.0.0.1")

	rec := doRequest(router, "/streams/hls/u-1/128k/seg-00042.ts?token="+tok, "10.0.0.1:1234")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamRejectsUnreadyTrack(t *testing.T) {
	h, router := newTestHandler(t)
	tok, err := h.codec.Issue(2, token.KindTrack, 0, "", time.Hour)
	require.NoError(t, err)

	rec := doRequest(router, "/streams/hls/u-pending/master.m3u8?token="+tok, "10.0.0.1:1234")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGateDeniesThirdConcurrentStream(t *testing.T) {
	h, router := newTestHandler(t)

	// Three distinct tokens for the same anonymous caller. Each carries its
	// own JTI, so each opens its own session.
	for i := 0; i < 2; i++ {
		tok := issueTrackToken(t, h, "10.0.0.1")
		rec := doRequest(router, "/streams/hls/u-1/master.m3u8?token="+tok, "10.0.0.1:1234")
		require.Equal(t, http.StatusOK, rec.Code, "stream %d should be admitted", i+1)
	}

	tok := issueTrackToken(t, h, "10.0.0.1")
	rec := doRequest(router, "/streams/hls/u-1/master.m3u8?token="+tok, "10.0.0.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestClipPlaylistGenerated(t *testing.T) {
	h, router := newTestHandler(t)
	tok, err := h.codec.Issue(10, token.KindClip, 0, "", time.Hour)
	require.NoError(t, err)

	rec := doRequest(router, "/streams/hls/clip/c-1/master.m3u8?token="+tok, "10.0.0.1:1234")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "#EXT-X-PLAYLIST-TYPE:VOD")
	assert.Contains(t, body, "#EXTINF:4.500,")
	assert.Contains(t, body, "#EXTINF:1.500,")
	assert.Contains(t, body, "#EXT-X-ENDLIST")

	// Segment URIs are rebased onto the track routes with the token attached.
	assert.Contains(t, body, "http://localhost:8080/streams/hls/u-1/128k/seg-00000.ts?token=")

	var segLines int
	for _, line := range strings.Split(body, "\n") {
		if line != "" && !strings.HasPrefix(line, "#") {
			segLines++
		}
	}
	assert.Equal(t, 2, segLines)
}

func TestClipTokenRejectedOnTrackRoute(t *testing.T) {
	h, router := newTestHandler(t)
	tok, err := h.codec.Issue(1, token.KindClip, 0, "", time.Hour)
	require.NoError(t, err)

	rec := doRequest(router, "/streams/hls/u-1/master.m3u8?token="+tok, "10.0.0.1:1234")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
