package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/M-Abd-ElBaset/hls-audio-service/core/token"
	"github.com/M-Abd-ElBaset/hls-audio-service/logger"
	"github.com/M-Abd-ElBaset/hls-audio-service/model"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// maxUploadBytes caps the original upload size at 200MB.
const maxUploadBytes = 200 << 20

// UploadTrackHandler accepts a multipart audio upload, stores the original
// file and dispatches the transcode job. The response carries the pending
// track; clients poll GET /api/tracks/{uuid} for status.
func (h *APIHandler) UploadTrackHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "Invalid multipart request", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Audio file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	title := r.FormValue("title")
	if title == "" {
		title = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	}

	trackUUID := uuid.NewString()
	ext := filepath.Ext(header.Filename)
	if ext == "" {
		ext = ".mp3"
	}
	originalPath := filepath.Join(h.cfg.SourceAudioDir, trackUUID+ext)

	dst, err := os.Create(originalPath)
	if err != nil {
		logger.Error("failed to store upload", logger.ErrorField(err))
		http.Error(w, "Failed to store upload", http.StatusInternalServerError)
		return
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		logger.Error("failed to write upload", logger.ErrorField(err))
		os.Remove(originalPath)
		http.Error(w, "Failed to store upload", http.StatusInternalServerError)
		return
	}

	track := &model.Track{
		UUID:         trackUUID,
		UserID:       optionalUser(r),
		Title:        title,
		Artist:       r.FormValue("artist"),
		Status:       model.StatusPending,
		OriginalPath: originalPath,
	}

	id, err := h.tracks.CreateTrack(track)
	if err != nil {
		logger.Error("failed to create track", logger.ErrorField(err))
		os.Remove(originalPath)
		http.Error(w, "Failed to create track", http.StatusInternalServerError)
		return
	}
	track.ID = id

	// The job outlives the request, so it gets a fresh context.
	h.worker.Dispatch(context.Background(), id)

	logger.Info("track uploaded",
		logger.Int64("trackId", id),
		logger.String("trackUuid", trackUUID),
		logger.String("title", title))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(track)
}

// GetTrackHandler returns a track's metadata and processing status.
func (h *APIHandler) GetTrackHandler(w http.ResponseWriter, r *http.Request) {
	track, err := h.tracks.GetTrackByUUID(mux.Vars(r)["track_uuid"])
	if err != nil {
		logger.Error("failed to load track", logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if track == nil {
		http.Error(w, "Track not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(track)
}

// tokenResponse is the issued playback token plus its lifetime, so clients
// know when to re-request.
type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"` // seconds
}

// IssueTrackTokenHandler mints a playback token for a ready track.
// Authenticated callers get a user-bound token; anonymous callers get one
// pinned to their IP address.
func (h *APIHandler) IssueTrackTokenHandler(w http.ResponseWriter, r *http.Request) {
	track, err := h.tracks.GetTrackByUUID(mux.Vars(r)["track_uuid"])
	if err != nil {
		logger.Error("failed to load track", logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if track == nil {
		http.Error(w, "Track not found", http.StatusNotFound)
		return
	}
	if track.Status != model.StatusReady {
		http.Error(w, "Track is not ready for streaming", http.StatusConflict)
		return
	}

	h.issueToken(w, r, track.ID, token.KindTrack)
}

func (h *APIHandler) issueToken(w http.ResponseWriter, r *http.Request, resourceID int64, kind token.ResourceKind) {
	userID := optionalUser(r)
	ip := ""
	if userID == 0 {
		ip = clientIP(r)
	}

	ttl := time.Duration(h.cfg.TokenTTLSeconds) * time.Second
	tok, err := h.codec.Issue(resourceID, kind, userID, ip, ttl)
	if err != nil {
		logger.Error("failed to issue playback token", logger.ErrorField(err))
		http.Error(w, "Failed to issue token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tokenResponse{Token: tok, ExpiresIn: h.cfg.TokenTTLSeconds})
}
