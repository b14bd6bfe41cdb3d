package server

import (
	"compress/gzip"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/M-Abd-ElBaset/hls-audio-service/core/hls"
	"github.com/M-Abd-ElBaset/hls-audio-service/core/stream"
	"github.com/M-Abd-ElBaset/hls-audio-service/core/token"
	"github.com/M-Abd-ElBaset/hls-audio-service/errs"
	"github.com/M-Abd-ElBaset/hls-audio-service/logger"
	"github.com/M-Abd-ElBaset/hls-audio-service/model"

	"github.com/gorilla/mux"
)

const (
	playlistContentType  = "application/vnd.apple.mpegurl"
	playlistCacheControl = "public, max-age=5"
	segmentCacheControl  = "public, max-age=31536000, immutable"
)

// MasterPlaylistHandler serves the master playlist of a ready track.
func (h *APIHandler) MasterPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	track := h.authorizeTrack(w, r, mux.Vars(r)["track_uuid"])
	if track == nil {
		return
	}
	if !h.admit(w, r, track.ID) {
		return
	}

	path := filepath.Join(h.cfg.StreamDir, track.UUID, "master.m3u8")
	if asset, err := h.assets.GetMasterAsset(track.ID); err == nil && asset != nil {
		path = filepath.Join(h.cfg.StreamDir, asset.Path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("failed to read master playlist",
			logger.String("trackUuid", track.UUID), logger.ErrorField(err))
		http.Error(w, "Playlist not found", http.StatusNotFound)
		return
	}

	writeGzipped(w, r, playlistContentType, playlistCacheControl, data)
}

// VariantPlaylistHandler serves one bitrate's media playlist.
func (h *APIHandler) VariantPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	track := h.authorizeTrack(w, r, vars["track_uuid"])
	if track == nil {
		return
	}

	bitrate, ok := parseBitrate(vars["bitrate"])
	if !ok {
		http.Error(w, "Invalid bitrate", http.StatusBadRequest)
		return
	}
	asset, err := h.assets.GetVariantAsset(track.ID, bitrate)
	if err != nil {
		logger.Error("failed to load variant asset", logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if asset == nil {
		http.Error(w, "Playlist not found", http.StatusNotFound)
		return
	}

	if !h.admit(w, r, track.ID) {
		return
	}

	data, err := os.ReadFile(filepath.Join(h.cfg.StreamDir, asset.Path))
	if err != nil {
		logger.Error("failed to read variant playlist",
			logger.String("path", asset.Path), logger.ErrorField(err))
		http.Error(w, "Playlist not found", http.StatusNotFound)
		return
	}

	writeGzipped(w, r, playlistContentType, playlistCacheControl, data)
}

// SegmentHandler serves one media segment. Segments are immutable, so the
// cache lifetime is effectively unbounded.
func (h *APIHandler) SegmentHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	track := h.authorizeTrack(w, r, vars["track_uuid"])
	if track == nil {
		return
	}

	bitrate, ok := parseBitrate(vars["bitrate"])
	if !ok {
		http.Error(w, "Invalid bitrate", http.StatusBadRequest)
		return
	}
	index, err := strconv.ParseInt(vars["index"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid segment index", http.StatusBadRequest)
		return
	}

	asset, err := h.assets.GetSegmentAsset(track.ID, bitrate, index)
	if err != nil {
		logger.Error("failed to load segment asset", logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if asset == nil {
		http.Error(w, "Segment not found", http.StatusNotFound)
		return
	}

	if !h.admit(w, r, track.ID) {
		return
	}

	w.Header().Set("Content-Type", "video/MP2T")
	w.Header().Set("Cache-Control", segmentCacheControl)
	http.ServeFile(w, r, filepath.Join(h.cfg.StreamDir, asset.Path))
}

// ClipPlaylistHandler generates and serves a clip's playlist on the fly from
// the parent track's highest-bitrate variant. Nothing is written to disk.
func (h *APIHandler) ClipPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	payload := payloadFromContext(r.Context())

	clip, err := h.clips.GetClipByUUID(mux.Vars(r)["clip_uuid"])
	if err != nil {
		logger.Error("failed to load clip", logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if clip == nil {
		http.Error(w, "Clip not found", http.StatusNotFound)
		return
	}
	if payload.ResourceKind != token.KindClip || payload.ResourceID != clip.ID {
		http.Error(w, "Token does not grant access to this clip", http.StatusForbidden)
		return
	}

	track, err := h.tracks.GetTrackByID(clip.TrackID)
	if err != nil || track == nil {
		http.Error(w, "Track not found", http.StatusNotFound)
		return
	}
	if track.Status != model.StatusReady {
		http.Error(w, "Track is not ready for streaming", http.StatusConflict)
		return
	}

	// Clip playback counts against the parent track's session limit.
	if !h.admit(w, r, track.ID) {
		return
	}

	variants, err := h.assets.GetVariantAssets(track.ID)
	if err != nil || len(variants) == 0 {
		logger.Error("no variant playlists for clip source",
			logger.Int64("trackId", track.ID), logger.ErrorField(err))
		http.Error(w, "Playlist not found", http.StatusNotFound)
		return
	}

	f, err := os.Open(filepath.Join(h.cfg.StreamDir, variants[0].Path))
	if err != nil {
		logger.Error("failed to open variant playlist",
			logger.String("path", variants[0].Path), logger.ErrorField(err))
		http.Error(w, "Playlist not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	parsed, err := hls.ParseVariant(f)
	if err != nil {
		logger.Error("failed to parse variant playlist", logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	playlist, err := hls.BuildClipPlaylist(parsed, clip.StartMs, clip.EndMs)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrNotFound):
			http.Error(w, "Clip range has no segments", http.StatusNotFound)
		case errors.Is(err, errs.ErrInvalidClipRange):
			http.Error(w, "Invalid clip range", http.StatusBadRequest)
		default:
			logger.Error("failed to build clip playlist", logger.ErrorField(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	// Segment URIs in the variant playlist are relative to its directory;
	// rebase them so the clip playlist resolves against the track routes.
	base := h.cfg.PublicBaseURL + "/streams/hls/" + filepath.ToSlash(filepath.Dir(variants[0].Path))
	playlist = rebaseSegmentURIs(playlist, base, r.URL.Query().Get("token"))

	writeGzipped(w, r, playlistContentType, playlistCacheControl, []byte(playlist))
}

// authorizeTrack resolves the track named in the URL and checks the token
// payload grants it. Writes the error response and returns nil on failure.
func (h *APIHandler) authorizeTrack(w http.ResponseWriter, r *http.Request, trackUUID string) *model.Track {
	payload := payloadFromContext(r.Context())

	track, err := h.tracks.GetTrackByUUID(trackUUID)
	if err != nil {
		logger.Error("failed to load track", logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return nil
	}
	if track == nil {
		http.Error(w, "Track not found", http.StatusNotFound)
		return nil
	}
	if payload.ResourceKind != token.KindTrack || payload.ResourceID != track.ID {
		http.Error(w, "Token does not grant access to this track", http.StatusForbidden)
		return nil
	}
	if track.Status != model.StatusReady {
		http.Error(w, "Track is not ready for streaming", http.StatusConflict)
		return nil
	}
	return track
}

// admit runs the concurrency gate for the current request. Writes the error
// response and returns false on denial.
func (h *APIHandler) admit(w http.ResponseWriter, r *http.Request, trackID int64) bool {
	payload := payloadFromContext(r.Context())
	principal := stream.Principal(payload.UserID, clientIP(r))

	if err := h.gate.Admit(r.Context(), principal, trackID, payload.JTI); err != nil {
		if errors.Is(err, errs.ErrTooManyStreams) {
			http.Error(w, "Too many concurrent streams", http.StatusTooManyRequests)
		} else {
			logger.Error("stream admission failed", logger.ErrorField(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return false
	}
	return true
}

// parseBitrate reads path values like "128k" or "128".
func parseBitrate(s string) (int64, bool) {
	s = strings.TrimSuffix(s, "k")
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// rebaseSegmentURIs prefixes relative segment lines with base and appends the
// playback token so follow-up segment fetches stay authorized.
func rebaseSegmentURIs(playlist, base, tok string) string {
	lines := strings.Split(playlist, "\n")
	for i, line := range lines {
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		uri := line
		if !strings.Contains(uri, "://") {
			uri = base + "/" + uri
		}
		if tok != "" {
			uri = uri + "?token=" + tok
		}
		lines[i] = uri
	}
	return strings.Join(lines, "\n")
}

func writeGzipped(w http.ResponseWriter, r *http.Request, contentType, cacheControl string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", cacheControl)
	// Responses are publicly cacheable and encoding-negotiated, so shared
	// caches must key on the encoding.
	w.Header().Set("Vary", "Accept-Encoding")

	if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		w.Write(data)
		return
	}

	w.Header().Set("Content-Encoding", "gzip")
	gz := gzip.NewWriter(w)
	if _, err := gz.Write(data); err != nil {
		logger.Error("failed to write gzipped response", logger.ErrorField(err))
	}
	if err := gz.Close(); err != nil {
		logger.Error("failed to flush gzipped response", logger.ErrorField(err))
	}
}
