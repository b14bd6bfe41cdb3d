// Package webhook notifies downstream consumers when a track finishes
// transcoding. Deliveries are signed, retried, and recorded in the
// webhook_deliveries table.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/M-Abd-ElBaset/hls-audio-service/config"
	"github.com/M-Abd-ElBaset/hls-audio-service/core/transcode"
	"github.com/M-Abd-ElBaset/hls-audio-service/logger"
	"github.com/M-Abd-ElBaset/hls-audio-service/model"
	"github.com/M-Abd-ElBaset/hls-audio-service/repository"
)

// EventTranscodeCompleted is sent when a track reaches ready.
const EventTranscodeCompleted = "transcode.completed"

// VariantInfo describes one published bitrate variant.
type VariantInfo struct {
	BitrateKbps int64  `json:"bitrate_kbps"`
	Path        string `json:"path"`
	URL         string `json:"url"`
}

// CompletedPayload is the transcode.completed body.
type CompletedPayload struct {
	TrackID              int64         `json:"track_id"`
	TrackUUID            string        `json:"track_uuid"`
	Title                string        `json:"title"`
	Artist               string        `json:"artist"`
	DurationMs           int64         `json:"duration_ms"`
	Variants             []VariantInfo `json:"variants"`
	WaveformSamples      [][2]int16    `json:"waveform_samples"`
	WaveformSampleRateMs int           `json:"waveform_sample_rate_ms"`
	CreatedAt            time.Time     `json:"created_at"`
	WebhookTimestamp     time.Time     `json:"webhook_timestamp"`
}

// Dispatcher delivers signed event payloads over HTTP with retry. It
// implements transcode.Notifier; a dispatcher with an empty URL is a no-op.
type Dispatcher struct {
	url       string
	secret    []byte
	baseURL   string
	streamDir string

	assets     repository.TrackAssetRepository
	deliveries repository.WebhookRepository

	client  *http.Client
	backoff []time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
}

func NewDispatcher(cfg *config.Config, assets repository.TrackAssetRepository,
	deliveries repository.WebhookRepository) *Dispatcher {
	return &Dispatcher{
		url:        cfg.WebhookURL,
		secret:     []byte(cfg.WebhookSecret),
		baseURL:    cfg.PublicBaseURL,
		streamDir:  cfg.StreamDir,
		assets:     assets,
		deliveries: deliveries,
		client:     &http.Client{Timeout: cfg.WebhookTimeout},
		backoff:    cfg.WebhookBackoff,
		sleep:      sleepCtx,
		now:        time.Now,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sign computes the payload signature in X-Webhook-Signature format.
func Sign(payload, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// TranscodeCompleted builds and delivers the transcode.completed event for a
// ready track. Delivery failures are logged, not returned: the track is
// already ready and the webhook is best effort.
func (d *Dispatcher) TranscodeCompleted(ctx context.Context, track *model.Track) {
	if d.url == "" {
		return
	}

	payload, err := d.buildPayload(track)
	if err != nil {
		logger.Error("failed to build webhook payload",
			logger.Int64("trackId", track.ID),
			logger.ErrorField(err))
		return
	}

	if err := d.deliver(ctx, EventTranscodeCompleted, payload); err != nil {
		logger.Error("webhook delivery failed",
			logger.Int64("trackId", track.ID),
			logger.String("event", EventTranscodeCompleted),
			logger.ErrorField(err))
	}
}

func (d *Dispatcher) buildPayload(track *model.Track) ([]byte, error) {
	variants, err := d.assets.GetVariantAssets(track.ID)
	if err != nil {
		return nil, err
	}

	infos := make([]VariantInfo, 0, len(variants))
	for _, v := range variants {
		infos = append(infos, VariantInfo{
			BitrateKbps: v.BitrateKbps.Int64,
			Path:        v.Path,
			URL:         d.baseURL + "/streams/hls/" + v.Path,
		})
	}

	body := CompletedPayload{
		TrackID:              track.ID,
		TrackUUID:            track.UUID,
		Title:                track.Title,
		Artist:               track.Artist,
		DurationMs:           track.DurationMs.Int64,
		Variants:             infos,
		WaveformSamples:      [][2]int16{},
		WaveformSampleRateMs: 0,
		CreatedAt:            track.CreatedAt,
		WebhookTimestamp:     d.now().UTC(),
	}

	wfAsset, err := d.assets.GetWaveformAsset(track.ID)
	if err != nil {
		return nil, err
	}
	if wfAsset != nil {
		wf, err := d.loadWaveform(wfAsset.Path)
		if err != nil {
			logger.Warn("waveform unreadable, sending payload without peaks",
				logger.Int64("trackId", track.ID),
				logger.ErrorField(err))
		} else {
			body.WaveformSamples = wf.Peaks
			body.WaveformSampleRateMs = wf.SampleRateMs
		}
	}

	return json.Marshal(body)
}

func (d *Dispatcher) loadWaveform(assetPath string) (*transcode.Waveform, error) {
	data, err := os.ReadFile(filepath.Join(d.streamDir, assetPath))
	if err != nil {
		return nil, err
	}
	wf := &transcode.Waveform{}
	if err := json.Unmarshal(data, wf); err != nil {
		return nil, fmt.Errorf("failed to decode waveform json: %w", err)
	}
	return wf, nil
}

// deliver posts the payload, retrying on any non-2xx response or transport
// error. Every attempt series gets one delivery row, updated in place.
func (d *Dispatcher) deliver(ctx context.Context, event string, payload []byte) error {
	signature := Sign(payload, d.secret)

	record := &model.WebhookDelivery{
		Event:     event,
		Payload:   string(payload),
		Signature: signature,
	}
	if d.deliveries != nil {
		if err := d.deliveries.CreateDelivery(record); err != nil {
			logger.Warn("failed to record webhook delivery", logger.ErrorField(err))
		}
	}

	attempts := len(d.backoff)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		status, err := d.post(ctx, event, signature, payload)
		record.StatusCode = status
		record.RetryCount = attempt - 1

		if err == nil {
			now := d.now()
			record.DeliveredAt = &now
			record.LastError = ""
			d.saveRecord(record)

			logger.Info("webhook delivered",
				logger.String("event", event),
				logger.Int("attempt", attempt),
				logger.Int("status", status))
			return nil
		}

		lastErr = err
		record.LastError = err.Error()
		d.saveRecord(record)

		logger.Warn("webhook attempt failed",
			logger.String("event", event),
			logger.Int("attempt", attempt),
			logger.ErrorField(err))

		if attempt < attempts {
			if err := d.sleep(ctx, d.backoff[attempt-1]); err != nil {
				return err
			}
		}
	}
	return lastErr
}

func (d *Dispatcher) post(ctx context.Context, event, signature string, payload []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", event)
	req.Header.Set("X-Webhook-Signature", signature)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (d *Dispatcher) saveRecord(record *model.WebhookDelivery) {
	if d.deliveries == nil {
		return
	}
	if err := d.deliveries.UpdateDelivery(record); err != nil {
		logger.Warn("failed to update webhook delivery record", logger.ErrorField(err))
	}
}
