package server

import (
	"encoding/json"
	"net/http"

	"github.com/M-Abd-ElBaset/hls-audio-service/core/token"
	"github.com/M-Abd-ElBaset/hls-audio-service/logger"
	"github.com/M-Abd-ElBaset/hls-audio-service/model"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// CreateClipRequest is the clip creation body.
type CreateClipRequest struct {
	TrackUUID string `json:"trackUuid"`
	Name      string `json:"name"`
	StartMs   int64  `json:"startMs"`
	EndMs     int64  `json:"endMs"`
}

// CreateClipHandler registers a virtual clip over a ready track. The range
// must sit strictly inside the track duration; no media is produced.
func (h *APIHandler) CreateClipHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateClipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	track, err := h.tracks.GetTrackByUUID(req.TrackUUID)
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
		http.Error(w, "Track is not ready", http.StatusConflict)
		return
	}

	if req.StartMs < 0 || req.StartMs >= req.EndMs {
		http.Error(w, "Invalid clip range", http.StatusBadRequest)
		return
	}
	if !track.DurationMs.Valid || req.EndMs > track.DurationMs.Int64 {
		http.Error(w, "Clip range exceeds track duration", http.StatusBadRequest)
		return
	}

	clip := &model.Clip{
		UUID:    uuid.NewString(),
		TrackID: track.ID,
		UserID:  optionalUser(r),
		Name:    req.Name,
		StartMs: req.StartMs,
		EndMs:   req.EndMs,
	}

	id, err := h.clips.CreateClip(clip)
	if err != nil {
		logger.Error("failed to create clip", logger.ErrorField(err))
		http.Error(w, "Failed to create clip", http.StatusInternalServerError)
		return
	}
	clip.ID = id

	logger.Info("clip created",
		logger.Int64("clipId", id),
		logger.Int64("trackId", track.ID),
		logger.Int64("startMs", req.StartMs),
		logger.Int64("endMs", req.EndMs),
		logger.Int64("durationMs", clip.DurationMs()))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(clip)
}

// GetTrackClipsHandler lists the clips of a track, newest first.
func (h *APIHandler) GetTrackClipsHandler(w http.ResponseWriter, r *http.Request) {
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

	clips, err := h.clips.GetClipsByTrackID(track.ID)
	if err != nil {
		logger.Error("failed to list clips", logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(clips)
}

// DeleteClipHandler removes a clip row. Existing playback tokens for the
// clip die with it, since playback resolves the clip by UUID on every fetch.
func (h *APIHandler) DeleteClipHandler(w http.ResponseWriter, r *http.Request) {
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

	// Only the owner may delete. Clips created anonymously (UserID 0) have
	// no owner to check against and stay deletable by anyone.
	if clip.UserID != 0 && clip.UserID != optionalUser(r) {
		http.Error(w, "Not allowed to delete this clip", http.StatusForbidden)
		return
	}

	if err := h.clips.DeleteClip(clip.ID); err != nil {
		logger.Error("failed to delete clip", logger.ErrorField(err))
		http.Error(w, "Failed to delete clip", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// IssueClipTokenHandler mints a playback token scoped to one clip.
func (h *APIHandler) IssueClipTokenHandler(w http.ResponseWriter, r *http.Request) {
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

	h.issueToken(w, r, clip.ID, token.KindClip)
}
