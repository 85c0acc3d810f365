package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bytedance/sonic"
	"github.com/hashicorp/go-retryablehttp"
)

// ConflictBehavior tells the service what to do when the target item already exists.
type ConflictBehavior string

// Conflict behaviors ...
const (
	ConflictFail    ConflictBehavior = "fail"
	ConflictReplace ConflictBehavior = "replace"
	ConflictRename  ConflictBehavior = "rename"
)

// CreateSessionRequest is the body of a create upload session call.
type CreateSessionRequest struct {
	Item CreateSessionItem `json:"item"`
}

// CreateSessionItem ...
type CreateSessionItem struct {
	ConflictBehavior ConflictBehavior `json:"@microsoft.graph.conflictBehavior,omitempty"`
	Name             string           `json:"name,omitempty"`
	FileSize         int64            `json:"fileSize,omitempty"`
}

// SessionClient performs session level calls: status, delete and create.
type SessionClient struct {
	client Doer
	codec  Codec
	logger log.Logger
}

// NewSessionClient ...
func NewSessionClient(client Doer, codec Codec, logger log.Logger) *SessionClient {
	return &SessionClient{
		client: client,
		codec:  codec,
		logger: logger,
	}
}

// Refresh fetches the current state of the session from the service. The
// service may leave out the upload URL, so the known one is put back.
func (c *SessionClient) Refresh(ctx context.Context, session Session) (*UploadSession, error) {
	uploadURL := session.GetUploadURL()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, uploadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var refreshed UploadSession
	if err := c.doJSON(req, &refreshed); err != nil {
		return nil, fmt.Errorf("get session status: %w", err)
	}
	refreshed.UploadURL = uploadURL

	c.logger.Debugf("Session expects ranges %v, expires at %s", refreshed.NextExpectedRanges, refreshed.ExpirationDateTime)

	return &refreshed, nil
}

// Delete cancels the session on the service.
func (c *SessionClient) Delete(ctx context.Context, session Session) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodDelete, session.GetUploadURL(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	defer c.closeBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("delete session: %w", newAPIError(resp, nil))
	}

	return nil
}

// Create opens a new upload session at createURL.
func (c *SessionClient) Create(ctx context.Context, createURL string, request CreateSessionRequest) (*UploadSession, error) {
	body, err := sonic.Marshal(request)
	if err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, createURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var session UploadSession
	if err := c.doJSON(req, &session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if session.UploadURL == "" {
		return nil, fmt.Errorf("create session: %w: missing upload URL", ErrIncompleteUploadResponse)
	}

	c.logger.Debugf("Session created, expires at %s", session.ExpirationDateTime)

	return &session, nil
}

func (c *SessionClient) doJSON(req *retryablehttp.Request, v any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer c.closeBody(resp.Body)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp, data)
	}
	if len(data) == 0 {
		return ErrNoResponseBody
	}

	return c.codec.Unmarshal(resp.Header.Get("Content-Type"), data, v)
}

func (c *SessionClient) closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		c.logger.Warnf("close response body: %s", err)
	}
}
