package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bitrise-io/go-resumable-upload/upload/ranges"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
)

// Task uploads content into an upload session, slice by slice, resuming from
// the ranges the service reports after every unfinished round.
//
// A Task is driven by one goroutine at a time: slices are sent sequentially
// and the range state only changes between rounds.
type Task[T any] struct {
	session      *UploadSession
	content      io.ReaderAt
	size         int64
	maxSliceSize int64
	remaining    ranges.Set

	slices   *SliceUploader[T]
	sessions *SessionClient
	logger   log.Logger
	progress ProgressFunc
	stats    *Stats

	now  func() time.Time
	wait func(ctx context.Context, d time.Duration) error
}

// NewTask creates a task uploading size bytes of content into session.
func NewTask[T any](session Session, content io.ReaderAt, size int64, config Config) (*Task[T], error) {
	if session == nil {
		return nil, fmt.Errorf("%w: upload session must not be nil", ErrInvalidArgument)
	}
	if content == nil {
		return nil, fmt.Errorf("%w: content must not be nil", ErrInvalidArgument)
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: must provide content that is not empty", ErrInvalidArgument)
	}
	if session.GetUploadURL() == "" {
		return nil, fmt.Errorf("%w: upload session has no upload URL", ErrInvalidArgument)
	}
	if len(session.GetNextExpectedRanges()) == 0 {
		return nil, fmt.Errorf("%w: upload session expects no ranges", ErrInvalidArgument)
	}

	remaining, err := ranges.Parse(session.GetNextExpectedRanges(), size)
	if err != nil {
		return nil, err
	}

	config = config.withDefaults()

	return &Task[T]{
		session:      sessionFrom(session),
		content:      content,
		size:         size,
		maxSliceSize: config.MaxSliceSize,
		remaining:    remaining,
		slices:       NewSliceUploader[T](config.HTTPClient, config.Codec, config.Logger),
		sessions:     NewSessionClient(config.HTTPClient, config.Codec, config.Logger),
		logger:       config.Logger,
		progress:     config.Progress,
		stats:        NewStats(),
		now:          time.Now,
		wait:         sleep,
	}, nil
}

// Session returns the last known state of the upload session.
func (t *Task[T]) Session() *UploadSession {
	return sessionFrom(t.session)
}

// Stats returns the slice upload statistics.
func (t *Task[T]) Stats() *Stats {
	return t.stats
}

// SliceRequests returns the slices the next round would send.
func (t *Task[T]) SliceRequests() []ranges.Slice {
	return ranges.Plan(t.remaining, t.maxSliceSize, t.size)
}

// Upload sends the content, retrying unfinished rounds up to maxTries times.
// maxTries <= 0 means DefaultMaxTries.
func (t *Task[T]) Upload(ctx context.Context, maxTries int) (Result[T], error) {
	if isExpired(t.session, t.now()) {
		return Result[T]{}, t.expiredError()
	}
	return t.run(ctx, maxTries)
}

// Resume continues an interrupted upload. It asks the service which ranges are
// still missing before sending anything.
func (t *Task[T]) Resume(ctx context.Context, maxTries int) (Result[T], error) {
	if isExpired(t.session, t.now()) {
		return Result[T]{}, t.expiredError()
	}

	if err := t.refresh(ctx); err != nil {
		return Result[T]{}, err
	}

	if isExpired(t.session, t.now()) {
		return Result[T]{}, t.expiredError()
	}

	return t.run(ctx, maxTries)
}

// Cancel deletes the upload session on the service.
func (t *Task[T]) Cancel(ctx context.Context) error {
	if isExpired(t.session, t.now()) {
		return t.expiredError()
	}

	t.logger.Debugf("Deleting upload session")
	return t.sessions.Delete(ctx, t.session)
}

func (t *Task[T]) run(ctx context.Context, maxTries int) (Result[T], error) {
	if maxTries <= 0 {
		maxTries = DefaultMaxTries
	}

	var lastErr error
	for tries := 0; tries < maxTries; {
		result, err := t.round(ctx, tries+1, maxTries)
		if err != nil {
			if ctx.Err() != nil {
				return Result[T]{}, fmt.Errorf("upload cancelled: %w", ctx.Err())
			}
			lastErr = err
		}
		if result.Succeeded() {
			return result, nil
		}

		if err := t.refresh(ctx); err != nil {
			if errors.Is(err, ranges.ErrMalformedRange) || ctx.Err() != nil {
				return Result[T]{}, err
			}
			t.logger.Warnf("Refreshing upload session failed: %s", err)
			lastErr = err
		}

		tries++
		if tries < maxTries {
			backoff := time.Duration(2*tries*tries) * time.Second
			t.logger.Warnf("Upload attempt %d/%d did not complete, retrying after %s", tries, maxTries, backoff)
			if err := t.wait(ctx, backoff); err != nil {
				return Result[T]{}, fmt.Errorf("upload cancelled: %w", err)
			}
		}
	}

	if lastErr != nil {
		return Result[T]{}, fmt.Errorf("%w after %d attempts: %w", ErrUploadExhausted, maxTries, lastErr)
	}
	return Result[T]{}, fmt.Errorf("%w after %d attempts", ErrUploadExhausted, maxTries)
}

// round sends every planned slice in order. It stops at the first slice that
// completes the upload or fails.
func (t *Task[T]) round(ctx context.Context, attempt, maxTries int) (Result[T], error) {
	requests := t.SliceRequests()
	t.logger.Infof("Upload attempt %d/%d: %d slices, %s remaining",
		attempt, maxTries, len(requests), units.BytesSize(float64(t.remaining.Remaining())))

	uploaded := t.size - t.remaining.Remaining()
	for i, slice := range requests {
		t.logger.Debugf("Uploading slice %d/%d [finished=%d] [avg=%v]",
			i+1, len(requests), t.stats.FinishedCount(), t.stats.Average().Round(time.Millisecond))

		start := time.Now()
		result, err := t.slices.Upload(ctx, t.session.UploadURL, slice, t.content)
		if err != nil {
			t.logger.Warnf("Slice %d/%d (%s) failed: %s", i+1, len(requests), slice.ContentRange(), err)
			return Result[T]{}, err
		}

		t.stats.Update(time.Since(start), slice.Length())
		uploaded += slice.Length()
		if t.progress != nil {
			t.progress(uploaded, t.size)
		}

		if result.Succeeded() {
			t.logger.Infof("Upload completed with slice %d/%d", i+1, len(requests))
			return result, nil
		}
	}

	return Result[T]{}, nil
}

// refresh replaces the local session and ranges with the service's view.
func (t *Task[T]) refresh(ctx context.Context) error {
	refreshed, err := t.sessions.Refresh(ctx, t.session)
	if err != nil {
		return err
	}

	remaining, err := ranges.Parse(refreshed.NextExpectedRanges, t.size)
	if err != nil {
		return err
	}

	t.session = refreshed
	t.remaining = remaining
	return nil
}

func (t *Task[T]) expiredError() error {
	return fmt.Errorf("%w: expired at %s", ErrSessionExpired, t.session.ExpirationDateTime.Format(time.RFC3339))
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
