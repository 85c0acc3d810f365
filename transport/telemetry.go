package transport

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/google/uuid"
)

const (
	// SDKVersionHeader carries the client library and feature usage.
	SDKVersionHeader = "SdkVersion"
	// ClientRequestIDHeader correlates a request with service side logs.
	ClientRequestIDHeader = "client-request-id"

	// LibraryName ...
	LibraryName = "graph-go-core"
	// LibraryVersion ...
	LibraryVersion = "1.0.0"
)

// TelemetryTransport adds the SdkVersion header to every request it forwards.
// Requests that arrive without a client-request-id get a fresh one; clients
// built by NewClient set it once per logical request instead.
type TelemetryTransport struct {
	Base     http.RoundTripper
	Features *FeatureUsage
	// ServiceVersion is appended to the library name unless it is "v1.0" or empty.
	ServiceVersion string
}

// RoundTrip implements http.RoundTripper.
func (t *TelemetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request
	req = req.Clone(req.Context())

	req.Header.Set(SDKVersionHeader, t.sdkVersion())
	if req.Header.Get(ClientRequestIDHeader) == "" {
		req.Header.Set(ClientRequestIDHeader, uuid.NewString())
	}

	return t.base().RoundTrip(req)
}

func (t *TelemetryTransport) sdkVersion() string {
	name := LibraryName
	if t.ServiceVersion != "" && t.ServiceVersion != "v1.0" {
		name += "-" + t.ServiceVersion
	}

	features := "0"
	if t.Features != nil {
		features = t.Features.String()
	}

	return fmt.Sprintf("%s/%s (featureUsage=%s; runtimeEnvironment=%s; hostOS=%s)",
		name, LibraryVersion, features, runtime.Version(), runtime.GOOS)
}

func (t *TelemetryTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}
