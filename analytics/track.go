// Package analytics reports upload events through the go-utils analytics tracker.
package analytics

import (
	"time"

	"github.com/bitrise-io/go-resumable-upload/upload"
	"github.com/bitrise-io/go-utils/v2/analytics"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
)

// TrackerFactory creates the underlying tracker with the shared properties.
type TrackerFactory func(log.Logger, ...analytics.Properties) analytics.Tracker

// Environment keys the shared event properties are read from.
const (
	StepExecutionIDEnvKey = "BITRISE_STEP_EXECUTION_ID"
	BuildSlugEnvKey       = "BITRISE_BUILD_SLUG"
	AppSlugEnvKey         = "BITRISE_APP_SLUG"
	WorkflowEnvKey        = "BITRISE_TRIGGERED_WORKFLOW_ID"
)

// Tracker sends upload lifecycle events.
type Tracker struct {
	tracker analytics.Tracker
	logger  log.Logger
}

// NewTracker ...
func NewTracker(repository env.Repository, logger log.Logger, factory TrackerFactory) *Tracker {
	p := analytics.Properties{
		"step_execution_id": repository.Get(StepExecutionIDEnvKey),
		"build_slug":        repository.Get(BuildSlugEnvKey),
		"app_slug":          repository.Get(AppSlugEnvKey),
		"workflow":          repository.Get(WorkflowEnvKey),
		"is_pr_build":       repository.Get("IS_PR") == "true",
	}
	return &Tracker{
		tracker: factory(logger, p),
		logger:  logger,
	}
}

// UploadStarted ...
func (t *Tracker) UploadStarted(size int64, slices int, resumed bool) {
	t.tracker.Enqueue("upload_session_started", analytics.Properties{
		"size_bytes":  size,
		"slice_count": slices,
		"resumed":     resumed,
	})
}

// UploadFinished ...
func (t *Tracker) UploadFinished(uploadTime time.Duration, stats *upload.Stats) {
	t.tracker.Enqueue("upload_session_finished", analytics.Properties{
		"upload_time_s":       uploadTime.Truncate(time.Second).Seconds(),
		"uploaded_bytes":      stats.UploadedBytes(),
		"slice_count":         stats.FinishedCount(),
		"avg_slice_time_ms":   stats.Average().Milliseconds(),
		"slice_upload_time_s": stats.TotalDuration().Truncate(time.Second).Seconds(),
	})
}

// UploadFailed ...
func (t *Tracker) UploadFailed(uploadTime time.Duration, err error) {
	t.tracker.Enqueue("upload_session_failed", analytics.Properties{
		"upload_time_s": uploadTime.Truncate(time.Second).Seconds(),
		"error":         err.Error(),
	})
}

// SessionCancelled ...
func (t *Tracker) SessionCancelled() {
	t.tracker.Enqueue("upload_session_cancelled")
}

// Wait blocks until the queued events are sent.
func (t *Tracker) Wait() {
	t.tracker.Wait()
}
