// Package errs holds domain sentinel errors, mapped to HTTP codes in the
// server handlers.
package errs

import "errors"

var (
	// Playback token errors.
	ErrInvalidToken = errors.New("invalid playback token")
	ErrTokenExpired = errors.New("playback token expired")
	ErrIPMismatch   = errors.New("playback token ip mismatch")

	// ErrTooManyStreams is returned by the concurrency gate when a principal
	// exceeds the concurrent stream limit for a track.
	ErrTooManyStreams = errors.New("concurrent stream limit exceeded")

	// Lookup errors.
	ErrNotFound         = errors.New("not found")
	ErrInvalidClipRange = errors.New("invalid clip range")

	// ErrTranscodeBusy is returned when a transcode job is dispatched for a
	// track whose pipeline lease is already held.
	ErrTranscodeBusy = errors.New("transcode already in progress")
)
