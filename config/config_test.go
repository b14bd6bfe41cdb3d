package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// The lease TTL must outlast a worst-case job: every encode and waveform
// attempt plus all backoff waits.
func TestTranscodeJobTTLCoversFullRetrySchedule(t *testing.T) {
	cfg := &Config{
		TranscodeAttempts: 3,
		TranscodeTimeout:  3600 * time.Second,
		WaveformTimeout:   300 * time.Second,
		TranscodeBackoff:  []time.Duration{60 * time.Second, 300 * time.Second, 600 * time.Second},
	}

	worstCase := 3*(3600+300)*time.Second + (60+300+600)*time.Second
	assert.Greater(t, cfg.TranscodeJobTTL(), worstCase)
}

func TestTranscodeJobTTLClampsAttempts(t *testing.T) {
	cfg := &Config{
		TranscodeAttempts: 0,
		TranscodeTimeout:  time.Hour,
		WaveformTimeout:   time.Minute,
	}
	assert.Greater(t, cfg.TranscodeJobTTL(), time.Hour)
}
