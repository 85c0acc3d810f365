package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"
)

const defaultS3Retries = 3

// ErrObjectNotFound is returned when the S3 object doesn't exist.
var ErrObjectNotFound = errors.New("object not found in s3 bucket")

// S3Params ...
type S3Params struct {
	Region          string
	Bucket          string
	Key             string
	AccessKeyID     string
	SecretAccessKey string
	NumRetries      int
}

// S3API is the subset of the S3 client used to read objects.
type S3API interface {
	manager.DownloadAPIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Object reads an S3 object with ranged GETs, so large objects can be
// uploaded without a local copy.
type S3Object struct {
	ctx        context.Context
	client     S3API
	downloader *manager.Downloader
	bucket     string
	key        string
	size       int64
	retries    uint
	retryWait  time.Duration
	logger     log.Logger
}

// OpenS3Object resolves the size of the object described by params.
// ctx is kept for the reads issued through ReadAt.
func OpenS3Object(ctx context.Context, params S3Params, logger log.Logger) (*S3Object, error) {
	if params.Bucket == "" {
		return nil, fmt.Errorf("bucket must not be empty")
	}
	if params.Key == "" {
		return nil, fmt.Errorf("key must not be empty")
	}

	cfg, err := loadAWSConfig(ctx, params.Region, params.AccessKeyID, params.SecretAccessKey, logger)
	if err != nil {
		return nil, fmt.Errorf("load aws credentials: %w", err)
	}

	retries := params.NumRetries
	if retries <= 0 {
		retries = defaultS3Retries
	}

	return newS3Object(ctx, s3.NewFromConfig(*cfg), params.Bucket, params.Key, uint(retries), 5*time.Second, logger)
}

func newS3Object(ctx context.Context, client S3API, bucket, key string, retries uint, retryWait time.Duration, logger log.Logger) (*S3Object, error) {
	o := &S3Object{
		ctx:        ctx,
		client:     client,
		downloader: manager.NewDownloader(client),
		bucket:     bucket,
		key:        key,
		retries:    retries,
		retryWait:  retryWait,
		logger:     logger,
	}

	if err := o.head(); err != nil {
		return nil, err
	}
	return o, nil
}

// Size ...
func (o *S3Object) Size() int64 {
	return o.size
}

// ReadAt reads len(p) bytes starting at off with a single ranged GET.
func (o *S3Object) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset: %d", off)
	}
	if off >= o.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	length := int64(len(p))
	var eof error
	if off+length > o.size {
		length = o.size - off
		eof = io.EOF
	}

	var n int64
	err := retry.Times(o.retries).Wait(o.retryWait).TryWithAbort(func(attempt uint) (error, bool) {
		if attempt > 0 {
			o.logger.Debugf("Retrying s3 range read %d-%d (attempt %d)", off, off+length-1, attempt)
		}

		buf := manager.NewWriteAtBuffer(make([]byte, 0, length))
		written, err := o.downloader.Download(o.ctx, buf, &s3.GetObjectInput{
			Bucket: aws.String(o.bucket),
			Key:    aws.String(o.key),
			Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, off+length-1)),
		})
		if err != nil {
			return fmt.Errorf("get object range: %w", err), o.ctx.Err() != nil
		}

		n = int64(copy(p[:length], buf.Bytes()[:written]))
		return nil, true
	})
	if err != nil {
		return int(n), err
	}
	if n < length {
		return int(n), io.ErrUnexpectedEOF
	}

	return int(n), eof
}

func (o *S3Object) head() error {
	return retry.Times(o.retries).Wait(o.retryWait).TryWithAbort(func(attempt uint) (error, bool) {
		out, err := o.client.HeadObject(o.ctx, &s3.HeadObjectInput{
			Bucket: aws.String(o.bucket),
			Key:    aws.String(o.key),
		})
		if err != nil {
			var apiError smithy.APIError
			if errors.As(err, &apiError) {
				switch apiError.(type) {
				case *types.NotFound:
					return fmt.Errorf("%w: %s", ErrObjectNotFound, o.key), true
				default:
					o.logger.Debugf("head object %s: %s", o.key, err)
					return fmt.Errorf("aws api error: %w", err), false
				}
			}
			return fmt.Errorf("generic aws error: %w", err), false
		}

		o.size = aws.ToInt64(out.ContentLength)
		return nil, true
	})
}

func loadAWSConfig(
	ctx context.Context,
	region string,
	accessKeyID string,
	secretKey string,
	logger log.Logger,
) (*aws.Config, error) {
	if region == "" {
		return nil, fmt.Errorf("region must not be empty")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}

	if accessKeyID != "" && secretKey != "" {
		logger.Debugf("aws credentials provided, using them...")
		opts = append(opts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config, %w", err)
	}

	return &cfg, nil
}
