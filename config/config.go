// Package config loads the upload-session command configuration from the
// environment.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/docker/go-units"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/joeshaw/envdecode"
)

// ErrInvalidConfig is returned when the decoded configuration doesn't validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config of the upload-session command. Every field has an environment variable.
type Config struct {
	// UploadURL of an existing session to resume. ENV: UPLOAD_SESSION_URL
	UploadURL string `env:"UPLOAD_SESSION_URL" validate:"required_without=CreateURL,omitempty,url"`
	// CreateURL is called to open a new session when there is nothing to resume. ENV: UPLOAD_CREATE_URL
	CreateURL string `env:"UPLOAD_CREATE_URL" validate:"omitempty,url"`
	// ItemName is sent when creating a session. ENV: UPLOAD_ITEM_NAME
	ItemName string `env:"UPLOAD_ITEM_NAME"`
	// ConflictBehavior is sent when creating a session. ENV: UPLOAD_CONFLICT_BEHAVIOR
	ConflictBehavior string `env:"UPLOAD_CONFLICT_BEHAVIOR,default=rename" validate:"oneof=fail replace rename"`

	// SliceSize in human readable form, like 5MB or 320KB. ENV: UPLOAD_SLICE_SIZE
	SliceSize string `env:"UPLOAD_SLICE_SIZE,default=5MB" validate:"required"`
	// MaxTries is the number of upload rounds. ENV: UPLOAD_MAX_TRIES
	MaxTries int `env:"UPLOAD_MAX_TRIES,default=3" validate:"min=1,max=10"`
	// ServiceVersion reported in the telemetry header. ENV: UPLOAD_SERVICE_VERSION
	ServiceVersion string `env:"UPLOAD_SERVICE_VERSION,default=v1.0" validate:"oneof=v1.0 beta"`
	// Compress packs the inputs into a zstd archive before uploading. ENV: UPLOAD_COMPRESS
	Compress bool `env:"UPLOAD_COMPRESS,default=false"`

	// SessionStore is where sessions are kept for resuming: memory or redis. ENV: UPLOAD_SESSION_STORE
	SessionStore string `env:"UPLOAD_SESSION_STORE,default=memory" validate:"oneof=memory redis"`
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379" validate:"required_if=SessionStore redis"`
	// KeyPrefix of the stored sessions. ENV: UPLOAD_SESSION_KEY_PREFIX
	KeyPrefix string `env:"UPLOAD_SESSION_KEY_PREFIX,default=upload:session:"`

	// AWS settings for s3:// inputs.
	AWSRegion          string `env:"AWS_REGION"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`

	// Verbose enables debug logging. ENV: UPLOAD_VERBOSE
	Verbose bool `env:"UPLOAD_VERBOSE,default=false"`
}

// MaxSliceSize returns SliceSize in bytes.
func (c Config) MaxSliceSize() (int64, error) {
	size, err := units.RAMInBytes(c.SliceSize)
	if err != nil {
		return 0, fmt.Errorf("%w: slice size: %s", ErrInvalidConfig, err)
	}
	if size <= 0 {
		return 0, fmt.Errorf("%w: slice size must be positive: %s", ErrInvalidConfig, c.SliceSize)
	}
	return size, nil
}

// Load decodes the configuration from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the field constraints and the slice size.
func (c Config) Validate() error {
	v, trans, err := newValidator()
	if err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		var valErrs validator.ValidationErrors
		if errors.As(err, &valErrs) {
			var msgs []string
			for _, fe := range valErrs {
				msgs = append(msgs, fe.Translate(trans))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return err
	}

	_, err = c.MaxSliceSize()
	return err
}

func newValidator() (*validator.Validate, ut.Translator, error) {
	locale := en.New()
	uni := ut.New(locale, locale)
	trans, _ := uni.GetTranslator("en")

	v := validator.New(validator.WithRequiredStructEnabled())
	if err := entranslations.RegisterDefaultTranslations(v, trans); err != nil {
		return nil, nil, fmt.Errorf("failed to register translations: %w", err)
	}
	return v, trans, nil
}
