package transcode

import (
	"context"
	"fmt"
	"time"

	"github.com/M-Abd-ElBaset/hls-audio-service/errs"
	"github.com/M-Abd-ElBaset/hls-audio-service/logger"
	"github.com/M-Abd-ElBaset/hls-audio-service/model"
	"github.com/M-Abd-ElBaset/hls-audio-service/repository"
)

// Lease is the exclusive per-track lock preventing duplicate dispatch of
// the same track's pipeline.
type Lease interface {
	Acquire(ctx context.Context, trackID int64) (bool, error)
	Release(ctx context.Context, trackID int64) error
}

// Notifier is told when a track reaches ready. The webhook dispatcher
// implements it.
type Notifier interface {
	TranscodeCompleted(ctx context.Context, track *model.Track)
}

// Worker runs transcode jobs out of band with bounded parallelism across
// tracks and automatic retry within a job.
type Worker struct {
	transcoder *Transcoder
	tracks     repository.TrackRepository
	lease      Lease
	notifier   Notifier // may be nil

	attempts int
	backoff  []time.Duration

	sem   chan struct{}
	sleep func(ctx context.Context, d time.Duration) error
}

// NewWorker creates a Worker. parallelism bounds how many tracks transcode
// at once; attempts and backoff define the retry policy of a single job.
func NewWorker(transcoder *Transcoder, tracks repository.TrackRepository, lease Lease,
	notifier Notifier, attempts int, backoff []time.Duration, parallelism int) *Worker {
	if parallelism < 1 {
		parallelism = 1
	}
	if attempts < 1 {
		attempts = 1
	}
	return &Worker{
		transcoder: transcoder,
		tracks:     tracks,
		lease:      lease,
		notifier:   notifier,
		attempts:   attempts,
		backoff:    backoff,
		sem:        make(chan struct{}, parallelism),
		sleep:      sleepCtx,
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

// Dispatch runs the job for trackID in the background, respecting the
// parallelism bound.
func (w *Worker) Dispatch(ctx context.Context, trackID int64) {
	go func() {
		w.sem <- struct{}{}
		defer func() { <-w.sem }()

		if err := w.Run(ctx, trackID); err != nil {
			logger.Error("transcode job finished with error",
				logger.Int64("trackId", trackID),
				logger.ErrorField(err))
		}
	}()
}

// Run executes one transcode job synchronously: acquire the lease, walk the
// status state machine, and retry the pipeline up to the attempt limit.
// The whole pipeline is retried as a unit; outputs are overwritten, never
// appended to.
func (w *Worker) Run(ctx context.Context, trackID int64) error {
	track, err := w.tracks.GetTrackByID(trackID)
	if err != nil {
		return err
	}
	if track == nil {
		return fmt.Errorf("transcode dispatched for unknown track %d: %w", trackID, errs.ErrNotFound)
	}
	if !track.Status.CanTransition(model.StatusProcessing) {
		return fmt.Errorf("track %d in status %q cannot start processing", trackID, track.Status)
	}

	ok, err := w.lease.Acquire(ctx, trackID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("track %d: %w", trackID, errs.ErrTranscodeBusy)
	}
	defer func() {
		if err := w.lease.Release(context.Background(), trackID); err != nil {
			logger.Warn("failed to release transcode lease",
				logger.Int64("trackId", trackID),
				logger.ErrorField(err))
		}
	}()

	if err := w.tracks.UpdateTrackStatus(trackID, model.StatusProcessing, ""); err != nil {
		return err
	}

	logger.Info("starting transcode job",
		logger.Int64("trackId", trackID),
		logger.String("trackUuid", track.UUID))

	var lastErr error
	for attempt := 1; attempt <= w.attempts; attempt++ {
		lastErr = w.transcoder.Transcode(ctx, track)
		if lastErr == nil {
			if err := w.tracks.UpdateTrackStatus(trackID, model.StatusReady, ""); err != nil {
				return err
			}
			logger.Info("transcode completed",
				logger.Int64("trackId", trackID),
				logger.Int("attempt", attempt))

			if w.notifier != nil {
				ready, err := w.tracks.GetTrackByID(trackID)
				if err == nil && ready != nil {
					w.notifier.TranscodeCompleted(ctx, ready)
				}
			}
			return nil
		}

		logger.Error("transcode attempt failed",
			logger.Int64("trackId", trackID),
			logger.Int("attempt", attempt),
			logger.Int("maxAttempts", w.attempts),
			logger.ErrorField(lastErr))

		if attempt < w.attempts {
			delay := w.backoff[len(w.backoff)-1]
			if attempt-1 < len(w.backoff) {
				delay = w.backoff[attempt-1]
			}
			if err := w.sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}
	}

	if err := w.tracks.UpdateTrackStatus(trackID, model.StatusFailed, lastErr.Error()); err != nil {
		return err
	}
	return lastErr
}
