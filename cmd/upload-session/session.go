package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/bitrise-io/go-resumable-upload/config"
	"github.com/bitrise-io/go-resumable-upload/sessionstore"
	redisstore "github.com/bitrise-io/go-resumable-upload/sessionstore/redis"
	"github.com/bitrise-io/go-resumable-upload/upload"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/redis/go-redis/v9"
)

type sessionStore interface {
	sessionstore.Store
	Close() error
}

type memoryStore struct {
	*sessionstore.Memory
}

func (memoryStore) Close() error { return nil }

func newStore(cfg config.Config) (sessionStore, error) {
	switch cfg.SessionStore {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		store, err := redisstore.New(redisstore.Config{Client: client, KeyPrefix: cfg.KeyPrefix})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return memoryStore{sessionstore.NewMemory()}, nil
	}
}

type resolvedSession struct {
	session *upload.UploadSession
	key     string
	resumed bool
	// stale is set when the ranges have to be fetched from the service
	// before uploading.
	stale bool
}

// resolveSession picks the session to upload into: the one given in the
// configuration, a stored one for the same target, or a newly created one.
func resolveSession(ctx context.Context, cfg config.Config, sessions *upload.SessionClient, store sessionstore.Store, content *inputContent, logger log.Logger) (resolvedSession, error) {
	if cfg.UploadURL != "" {
		key := sessionstore.Key(cfg.UploadURL, content.Size())

		logger.Infof("Resuming the given upload session")
		session, err := sessions.Refresh(ctx, &upload.UploadSession{UploadURL: cfg.UploadURL})
		if err != nil {
			return resolvedSession{}, fmt.Errorf("get session status: %w", err)
		}
		return resolvedSession{session: session, key: key, resumed: true}, nil
	}

	name := content.name
	key := sessionstore.Key(cfg.CreateURL+"\x00"+name, content.Size())

	stored, err := store.Load(ctx, key)
	switch {
	case err == nil:
		logger.Infof("Resuming stored upload session, expires at %s", stored.ExpirationDateTime)
		return resolvedSession{session: stored, key: key, resumed: true, stale: true}, nil
	case !errors.Is(err, sessionstore.ErrNotFound):
		logger.Warnf("Failed to look up stored session: %s", err)
	}

	logger.Infof("Creating upload session for %s", name)
	session, err := sessions.Create(ctx, cfg.CreateURL, upload.CreateSessionRequest{
		Item: upload.CreateSessionItem{
			ConflictBehavior: upload.ConflictBehavior(cfg.ConflictBehavior),
			Name:             name,
			FileSize:         content.Size(),
		},
	})
	if err != nil {
		return resolvedSession{}, err
	}

	if err := store.Save(ctx, key, session); err != nil {
		logger.Warnf("Failed to store the session: %s", err)
	}
	return resolvedSession{session: session, key: key, resumed: false}, nil
}
