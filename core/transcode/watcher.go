package transcode

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/M-Abd-ElBaset/hls-audio-service/logger"

	"github.com/fsnotify/fsnotify"
)

// watchSegments follows the encoder's output directories and logs segments
// as they appear, giving visibility into long encodes. Returns a stop
// function. Watch failures degrade to a no-op; the pipeline result never
// depends on the watcher.
func watchSegments(ctx context.Context, dirs []string, trackUUID string) (stop func()) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("failed to create segment watcher", logger.ErrorField(err))
		return func() {}
	}
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			logger.Warn("failed to watch variant directory",
				logger.String("dir", dir),
				logger.ErrorField(err))
		}
	}

	var count int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Create != 0 && strings.HasSuffix(event.Name, ".ts") {
					n := atomic.AddInt64(&count, 1)
					logger.Debug("segment written",
						logger.String("trackUuid", trackUUID),
						logger.String("segment", event.Name),
						logger.Int64("segmentCount", n))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("segment watcher error", logger.ErrorField(err))
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		watcher.Close()
		<-done
		logger.Info("encoder output complete",
			logger.String("trackUuid", trackUUID),
			logger.Int64("segmentsObserved", atomic.LoadInt64(&count)))
	}
}
