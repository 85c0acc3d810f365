// Command upload-session uploads a file, a set of files or a remote object
// into a resumable upload session.
//
//	upload-session [input ...]
//
// Inputs are local paths, doublestar globs, file:// and http(s):// URLs or a
// single s3://bucket/key reference. Everything else is configured through the
// environment, see the config package.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bitrise-io/go-resumable-upload/analytics"
	"github.com/bitrise-io/go-resumable-upload/codec"
	"github.com/bitrise-io/go-resumable-upload/config"
	"github.com/bitrise-io/go-resumable-upload/transport"
	"github.com/bitrise-io/go-resumable-upload/upload"
	goanalytics "github.com/bitrise-io/go-utils/v2/analytics"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
)

// driveItem is the part of the created item the command reports.
type driveItem struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	WebURL string `json:"webUrl"`
}

func main() {
	logger := log.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], logger, goanalytics.NewDefaultTracker); err != nil {
		logger.Errorf("%s", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, inputs []string, logger log.Logger, trackerFactory analytics.TrackerFactory) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.EnableDebugLog(cfg.Verbose)

	if len(inputs) == 0 {
		return errors.New("no inputs given")
	}

	maxSliceSize, err := cfg.MaxSliceSize()
	if err != nil {
		return err
	}

	envRepo := env.NewRepository()
	tracker := analytics.NewTracker(envRepo, logger, trackerFactory)
	defer tracker.Wait()

	features := transport.NewFeatureUsage(transport.FileUploadFlag)
	client := transport.NewClient(logger, transport.Options{
		Features:       features,
		ServiceVersion: cfg.ServiceVersion,
	})

	content, err := openContent(ctx, cfg, inputs, logger)
	if err != nil {
		return err
	}
	defer content.Close()

	logger.Infof("Uploading %s (%s)", content.name, units.HumanSize(float64(content.Size())))

	store, err := newStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck

	sessions := upload.NewSessionClient(client, codec.NewRegistry(), logger)
	resolved, err := resolveSession(ctx, cfg, sessions, store, content, logger)
	if err != nil {
		return err
	}

	task, err := upload.NewTask[driveItem](resolved.session, content, content.Size(), upload.Config{
		MaxSliceSize: maxSliceSize,
		HTTPClient:   client,
		Logger:       logger,
		Progress:     progressLogger(logger),
	})
	if err != nil {
		return fmt.Errorf("create upload task: %w", err)
	}

	tracker.UploadStarted(content.Size(), len(task.SliceRequests()), resolved.resumed)
	logger.Debugf("Feature usage: %s", features)

	start := time.Now()
	var result upload.Result[driveItem]
	if resolved.stale {
		result, err = task.Resume(ctx, cfg.MaxTries)
	} else {
		result, err = task.Upload(ctx, cfg.MaxTries)
	}
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			abort(task, store, resolved.key, tracker, logger)
			return fmt.Errorf("upload aborted: %w", err)
		}

		tracker.UploadFailed(elapsed, err)
		if saveErr := store.Save(context.Background(), resolved.key, task.Session()); saveErr != nil {
			logger.Warnf("Failed to keep the session for resuming: %s", saveErr)
		} else {
			logger.Printf("Run the command again to resume the upload")
		}
		return err
	}

	tracker.UploadFinished(elapsed, task.Stats())
	if err := store.Delete(context.Background(), resolved.key); err != nil {
		logger.Warnf("Failed to remove the finished session: %s", err)
	}

	reportResult(result, elapsed, task.Stats(), logger)
	return nil
}

// abort deletes the session on the service, so no partial upload is left behind.
func abort(task *upload.Task[driveItem], store sessionStore, key string, tracker *analytics.Tracker, logger log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Warnf("Upload interrupted, cancelling the session")
	tracker.SessionCancelled()

	if err := task.Cancel(ctx); err != nil && !errors.Is(err, upload.ErrSessionExpired) {
		logger.Warnf("Failed to cancel the session: %s", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		logger.Warnf("Failed to remove the session: %s", err)
	}
}

func progressLogger(logger log.Logger) upload.ProgressFunc {
	return func(uploaded, total int64) {
		logger.Printf("%s / %s (%.1f%%)",
			units.HumanSize(float64(uploaded)), units.HumanSize(float64(total)), float64(uploaded)*100/float64(total))
	}
}

func reportResult(result upload.Result[driveItem], elapsed time.Duration, stats *upload.Stats, logger log.Logger) {
	logger.Debugf("Sent %d slices, average slice time %s", stats.FinishedCount(), stats.Average().Round(time.Millisecond))

	switch {
	case result.Item != nil:
		logger.Donef("Uploaded %s (id: %s) in %s", result.Item.Name, result.Item.ID, elapsed.Round(time.Second))
		if result.Item.WebURL != "" {
			logger.Printf("%s", result.Item.WebURL)
		}
	case result.Location != nil:
		logger.Donef("Uploaded in %s, item is at %s", elapsed.Round(time.Second), result.Location)
	}
}
