package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/melbahja/got"
)

const (
	fileScheme = "file://"
	httpScheme = "http://"
	tlsScheme  = "https://"
)

// Provider resolves an input reference to a local file path. Plain and
// file:// paths are made absolute, http(s) URLs are downloaded into a
// temporary directory first.
type Provider struct {
	client       *http.Client
	pathProvider pathutil.PathProvider
	pathModifier pathutil.PathModifier
	logger       log.Logger
}

// NewProvider ...
func NewProvider(client *http.Client, pathProvider pathutil.PathProvider, pathModifier pathutil.PathModifier, logger log.Logger) *Provider {
	return &Provider{
		client:       client,
		pathProvider: pathProvider,
		pathModifier: pathModifier,
		logger:       logger,
	}
}

// IsRemote reports whether ref has to be downloaded before it can be read.
func IsRemote(ref string) bool {
	return strings.HasPrefix(ref, httpScheme) || strings.HasPrefix(ref, tlsScheme)
}

// LocalPath returns the local path of ref. The returned cleanup removes
// whatever was downloaded for ref and must be called once the file is no
// longer needed.
func (p *Provider) LocalPath(ctx context.Context, ref string) (string, func() error, error) {
	if IsRemote(ref) {
		return p.download(ctx, ref)
	}

	path, err := p.pathModifier.AbsPath(strings.TrimPrefix(ref, fileScheme))
	if err != nil {
		return "", nil, err
	}
	return path, func() error { return nil }, nil
}

func (p *Provider) download(ctx context.Context, rawURL string) (string, func() error, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", nil, fmt.Errorf("parse %s: %w", rawURL, err)
	}

	name := filepath.Base(parsed.Path)
	if name == "." || name == "/" {
		return "", nil, fmt.Errorf("no file name in %s", rawURL)
	}

	tmpDir, err := p.pathProvider.CreateTempDir("upload-source")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	cleanup := func() error { return os.RemoveAll(tmpDir) }

	dest := filepath.Join(tmpDir, name)
	p.logger.Debugf("Downloading %s to %s", rawURL, dest)

	downloader := got.New()
	if p.client != nil {
		downloader.Client = p.client
	}
	if err := downloader.Do(got.NewDownload(ctx, rawURL, dest)); err != nil {
		_ = cleanup()
		return "", nil, fmt.Errorf("failed to download file from %s: %w", rawURL, err)
	}

	return dest, cleanup, nil
}
