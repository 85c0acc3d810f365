// Package transport builds the HTTP client used to talk to the upload
// service: transient failures are retried by go-retryablehttp and every
// request carries the client telemetry headers.
package transport

import (
	"context"
	"net/http"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
)

// Options ...
type Options struct {
	// Features collects the feature flags reported in the SdkVersion header.
	// A new accumulator is created when nil.
	Features *FeatureUsage
	// ServiceVersion of the target API, e.g. "v1.0" or "beta".
	ServiceVersion string
	// RetryMax overrides the number of transport level retries when positive.
	RetryMax int
}

// NewClient creates a retrying HTTP client with upload telemetry.
func NewClient(logger log.Logger, opts Options) *retryablehttp.Client {
	features := opts.Features
	if features == nil {
		features = NewFeatureUsage()
	}
	features.Set(RetryHandler, RedirectHandler, DefaultHTTPClient)

	client := retryhttp.NewClient(logger)
	client.CheckRetry = createCustomRetryFunction(logger)
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if opts.RetryMax > 0 {
		client.RetryMax = opts.RetryMax
	}
	client.RequestLogHook = requestIDHook(client.RequestLogHook)

	if client.HTTPClient == nil {
		client.HTTPClient = &http.Client{}
	}
	client.HTTPClient.Transport = &TelemetryTransport{
		Base:           client.HTTPClient.Transport,
		Features:       features,
		ServiceVersion: opts.ServiceVersion,
	}

	return client
}

// requestIDHook stamps the outer request before its first attempt, so every
// retry of one logical request carries the same client-request-id.
func requestIDHook(next retryablehttp.RequestLogHook) retryablehttp.RequestLogHook {
	return func(logger retryablehttp.Logger, req *http.Request, attempt int) {
		if req.Header.Get(ClientRequestIDHeader) == "" {
			req.Header.Set(ClientRequestIDHeader, uuid.NewString())
		}
		if next != nil {
			next(logger, req, attempt)
		}
	}
}

func createCustomRetryFunction(logger log.Logger) retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, reqErr error) (bool, error) {
		retry, err := retryablehttp.DefaultRetryPolicy(ctx, resp, reqErr)
		if retry {
			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			logger.Debugf("CheckRetry: retry=%v ; status=%d ; err=%+v ; requestErr=%+v", retry, status, err, reqErr)
		}
		return retry, err
	}
}
