package transcode

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// Result captures one external encoder invocation.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   string
}

// Encoder abstracts the external encoder binary so the pipeline logic is
// testable without invoking a real process.
type Encoder interface {
	// Run executes the encoder with args under a wall-clock timeout. A
	// timeout or non-zero exit returns an error; Result is non-nil whenever
	// the process ran at all.
	Run(ctx context.Context, args []string, timeout time.Duration) (*Result, error)
}

// FFmpegEncoder runs a real ffmpeg binary.
type FFmpegEncoder struct {
	Path string
}

// NewFFmpegEncoder creates an FFmpegEncoder.
func NewFFmpegEncoder(path string) *FFmpegEncoder {
	return &FFmpegEncoder{Path: path}
}

func (e *FFmpegEncoder) Run(ctx context.Context, args []string, timeout time.Duration) (*Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.Path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	res := &Result{
		ExitCode: exitCode,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.String(),
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return res, fmt.Errorf("encoder timed out after %s: %s", timeout, e.Path)
	}
	if err != nil {
		return res, fmt.Errorf("encoder execution failed: %w\nEncoder Error: %s", err, stderr.String())
	}
	return res, nil
}
