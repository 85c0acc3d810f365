// Package sessionstore keeps upload sessions between runs so an interrupted
// upload can be resumed instead of started over. Entries live until the
// session expires on the service.
package sessionstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/bitrise-io/go-resumable-upload/upload"
)

// ErrNotFound is returned when no live session is stored under a key.
var ErrNotFound = errors.New("upload session not found")

// Store persists upload sessions by key.
type Store interface {
	// Save stores session until its expiration. An already expired session
	// is not stored and upload.ErrSessionExpired is returned.
	Save(ctx context.Context, key string, session *upload.UploadSession) error
	// Load returns the session stored under key or ErrNotFound.
	Load(ctx context.Context, key string) (*upload.UploadSession, error)
	// Delete removes the session stored under key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
}

// Key derives the store key of an upload target and its content size.
func Key(target string, size int64) string {
	sum := sha256.Sum256([]byte(target + "\x00" + strconv.FormatInt(size, 10)))
	return hex.EncodeToString(sum[:])
}

// TTL returns how long session stays usable after now.
func TTL(session *upload.UploadSession, now time.Time) time.Duration {
	if session.ExpirationDateTime.IsZero() {
		return 0
	}
	ttl := session.ExpirationDateTime.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}
