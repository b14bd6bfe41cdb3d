package transcode

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
)

// Waveform is the serialized waveform summary: min/max peak pairs at a
// fixed sample interval.
type Waveform struct {
	SampleRateMs int        `json:"sample_rate_ms"`
	Peaks        [][2]int16 `json:"peaks"`
}

// waveformArgs builds the ffmpeg invocation that decodes the input to mono
// signed 16-bit little-endian PCM at sampleRate Hz on stdout.
func waveformArgs(inputPath string, sampleRate int) []string {
	return []string{
		"-i", inputPath,
		"-f", "s16le",
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-",
	}
}

// bucketPeaks downsamples raw s16le PCM into min/max pairs of
// samplesPerPeak samples each. A trailing partial bucket still yields a
// peak, so the peak count is ceil(samples / samplesPerPeak).
func bucketPeaks(pcm []byte, samplesPerPeak int) [][2]int16 {
	n := len(pcm) / 2
	peaks := make([][2]int16, 0, n/samplesPerPeak+1)

	for i := 0; i < n; i += samplesPerPeak {
		end := i + samplesPerPeak
		if end > n {
			end = n
		}
		min, max := int16(32767), int16(-32768)
		for j := i; j < end; j++ {
			s := int16(binary.LittleEndian.Uint16(pcm[j*2 : j*2+2]))
			if s < min {
				min = s
			}
			if s > max {
				max = s
			}
		}
		peaks = append(peaks, [2]int16{min, max})
	}
	return peaks
}

// GenerateWaveform decodes the input via the encoder and writes the peak
// summary JSON to outputPath.
func (t *Transcoder) GenerateWaveform(ctx context.Context, inputPath, outputPath string) (*Waveform, error) {
	res, err := t.encoder.Run(ctx, waveformArgs(inputPath, t.cfg.WaveformSampleRate), t.cfg.WaveformTimeout)
	if err != nil {
		return nil, fmt.Errorf("waveform extraction failed: %w", err)
	}

	// One peak bucket covers SampleRateMs milliseconds of audio.
	samplesPerPeak := t.cfg.WaveformSampleRate * t.cfg.WaveformSampleRateMs / 1000
	if samplesPerPeak < 1 {
		samplesPerPeak = 1
	}

	wf := &Waveform{
		SampleRateMs: t.cfg.WaveformSampleRateMs,
		Peaks:        bucketPeaks(res.Stdout, samplesPerPeak),
	}

	data, err := json.Marshal(wf)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal waveform data: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write waveform file: %w", err)
	}
	return wf, nil
}
