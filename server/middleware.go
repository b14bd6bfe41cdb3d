package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/M-Abd-ElBaset/hls-audio-service/core/auth"
	"github.com/M-Abd-ElBaset/hls-audio-service/core/token"
	"github.com/M-Abd-ElBaset/hls-audio-service/errs"
	"github.com/M-Abd-ElBaset/hls-audio-service/logger"
)

type contextKey string

const payloadContextKey contextKey = "streamTokenPayload"

// SignedStream validates the playback token before any handler logic runs.
// The token rides in the ?token= query parameter so plain HLS players can
// carry it without custom headers.
func (h *APIHandler) SignedStream(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := r.URL.Query().Get("token")
		if tok == "" {
			http.Error(w, "Playback token is required", http.StatusUnauthorized)
			return
		}

		payload, err := h.codec.Validate(tok)
		if err != nil {
			switch {
			case errors.Is(err, errs.ErrTokenExpired):
				http.Error(w, "Token expired", http.StatusUnauthorized)
			case errors.Is(err, errs.ErrInvalidToken):
				http.Error(w, "Invalid token", http.StatusUnauthorized)
			default:
				logger.Error("token validation failed", logger.ErrorField(err))
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		if payload.IPClaim != "" && payload.IPClaim != clientIP(r) {
			logger.Warn("token IP claim mismatch",
				logger.String("claim", payload.IPClaim),
				logger.String("caller", clientIP(r)),
				logger.String("jti", payload.JTI),
				logger.ErrorField(errs.ErrIPMismatch))
			http.Error(w, "Token not valid from this address", http.StatusForbidden)
			return
		}

		ctx := context.WithValue(r.Context(), payloadContextKey, payload)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// payloadFromContext returns the validated token payload placed by
// SignedStream.
func payloadFromContext(ctx context.Context) *token.Payload {
	payload, _ := ctx.Value(payloadContextKey).(*token.Payload)
	return payload
}

// clientIP extracts the caller address, preferring the first hop recorded by
// a fronting proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// optionalUser extracts the authenticated user ID from a Bearer header if one
// is present and valid. Anonymous callers get 0; the playback token then
// carries an IP claim instead.
func optionalUser(r *http.Request) int64 {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return 0
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return 0
	}
	claims, err := auth.ParseToken(parts[1])
	if err != nil {
		return 0
	}
	return claims.UserID
}
