package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-resumable-upload/config"
	"github.com/bitrise-io/go-resumable-upload/source"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
)

const s3Scheme = "s3://"

// inputContent is the resolved byte source of an upload.
type inputContent struct {
	source.Content
	name    string
	closers []func() error
}

func (c *inputContent) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i]()
	}
}

// openContent resolves the inputs into a single byte source. Downloaded
// inputs and archives live in temp dirs that Close removes.
func openContent(ctx context.Context, cfg config.Config, inputs []string, logger log.Logger) (_ *inputContent, err error) {
	if len(inputs) == 1 && strings.HasPrefix(inputs[0], s3Scheme) {
		return openS3(ctx, cfg, inputs[0], logger)
	}

	// Downloads go to arbitrary hosts, so they don't use the upload client.
	downloadClient := retryhttp.NewClient(logger).StandardClient()
	pathProvider := pathutil.NewPathProvider()
	provider := source.NewProvider(downloadClient, pathProvider, pathutil.NewPathModifier(), logger)

	workingDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	content := &inputContent{}
	defer func() {
		if err != nil {
			content.Close()
		}
	}()

	var patterns []string
	for _, input := range inputs {
		if strings.HasPrefix(input, s3Scheme) {
			return nil, fmt.Errorf("s3 inputs can't be combined with other inputs: %s", input)
		}
		if !source.IsRemote(input) && !strings.HasPrefix(input, "file://") {
			patterns = append(patterns, input)
			continue
		}
		localPath, cleanup, err := provider.LocalPath(ctx, input)
		if err != nil {
			return nil, err
		}
		content.closers = append(content.closers, cleanup)
		patterns = append(patterns, localPath)
	}

	files, err := source.ExpandPaths(workingDir, patterns)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files match the inputs: %s", strings.Join(inputs, ", "))
	}
	for _, f := range files {
		logger.Debugf("- %s", f)
	}

	if len(files) == 1 && !cfg.Compress {
		f, err := source.OpenFile(files[0])
		if err != nil {
			return nil, err
		}
		content.name = cfg.ItemName
		if content.name == "" {
			content.name = filepath.Base(files[0])
		}
		content.Content = f
		content.closers = append(content.closers, f.Close)
		return content, nil
	}

	tmpDir, err := pathProvider.CreateTempDir("upload-archive")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	content.closers = append(content.closers, func() error { return os.RemoveAll(tmpDir) })
	archivePath := filepath.Join(tmpDir, archiveName(cfg, files))

	logger.Infof("Compressing %d files", len(files))
	if err := source.NewArchiver(logger).Compress(archivePath, workingDir, files); err != nil {
		return nil, fmt.Errorf("compress inputs: %w", err)
	}

	f, err := source.OpenFile(archivePath)
	if err != nil {
		return nil, err
	}
	content.Content = f
	content.name = filepath.Base(archivePath)
	content.closers = append(content.closers, f.Close)
	return content, nil
}

func archiveName(cfg config.Config, files []string) string {
	name := cfg.ItemName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(files[0]), filepath.Ext(files[0]))
	}
	if !strings.HasSuffix(name, ".tzst") {
		name += ".tzst"
	}
	return name
}

func openS3(ctx context.Context, cfg config.Config, ref string, logger log.Logger) (*inputContent, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", ref, err)
	}

	obj, err := source.OpenS3Object(ctx, source.S3Params{
		Region:          cfg.AWSRegion,
		Bucket:          u.Host,
		Key:             strings.TrimPrefix(u.Path, "/"),
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ref, err)
	}

	name := cfg.ItemName
	if name == "" {
		name = path.Base(u.Path)
	}
	return &inputContent{Content: obj, name: name}, nil
}
