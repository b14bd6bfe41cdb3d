// Package token issues and validates signed playback tokens. Tokens are
// sealed with an AEAD under a server-held key, so a tampered or
// foreign-keyed token fails to decrypt.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/M-Abd-ElBaset/hls-audio-service/errs"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
)

// ResourceKind tells what a playback token grants access to.
type ResourceKind string

const (
	KindTrack ResourceKind = "track"
	KindClip  ResourceKind = "clip"
)

// Payload is the decrypted content of a playback token. JTI is a unique
// nonce carried for log correlation only; there is no revocation list, so a
// token stays valid for every request until Exp.
type Payload struct {
	ResourceID   int64        `json:"resource_id"`
	ResourceKind ResourceKind `json:"resource_kind"`
	UserID       int64        `json:"user_id,omitempty"` // 0 means anonymous
	IssuedAt     int64        `json:"iat"`
	Exp          int64        `json:"exp"`
	IPClaim      string       `json:"ip_claim,omitempty"`
	JTI          string       `json:"jti"`
}

// Codec encrypts and decrypts playback tokens.
type Codec struct {
	key [chacha20poly1305.KeySize]byte
	now func() time.Time
}

// NewCodec creates a Codec from a shared secret. The secret is hashed to the
// AEAD key size, so it may be any non-empty string.
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, fmt.Errorf("token codec requires a non-empty secret")
	}
	c := &Codec{now: time.Now}
	c.key = sha256.Sum256([]byte(secret))
	return c, nil
}

// Issue builds a payload for the given resource and seals it into an opaque
// token string. ip may be empty, in which case the token carries no IP claim.
func (c *Codec) Issue(resourceID int64, kind ResourceKind, userID int64, ip string, ttl time.Duration) (string, error) {
	now := c.now()
	payload := Payload{
		ResourceID:   resourceID,
		ResourceKind: kind,
		UserID:       userID,
		IssuedAt:     now.Unix(),
		Exp:          now.Add(ttl).Unix(),
		IPClaim:      ip,
		JTI:          uuid.NewString(),
	}

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal token payload: %w", err)
	}

	aead, err := chacha20poly1305.NewX(c.key[:])
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Validate decrypts a token and checks its expiry. The IP claim is carried
// through untouched; comparing it against the caller's address is the
// delivery layer's job.
func (c *Codec) Validate(tok string) (*Payload, error) {
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil {
		return nil, errs.ErrInvalidToken
	}

	aead, err := chacha20poly1305.NewX(c.key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	if len(raw) < aead.NonceSize() {
		return nil, errs.ErrInvalidToken
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errs.ErrInvalidToken
	}

	var payload Payload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, errs.ErrInvalidToken
	}

	if c.now().Unix() > payload.Exp {
		return nil, errs.ErrTokenExpired
	}

	return &payload, nil
}
