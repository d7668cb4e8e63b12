package image

import (
	"denticheck-server/internal/platform/config"
	apperrors "denticheck-server/internal/platform/errors"
	"denticheck-server/internal/platform/logging"
)

// Pipeline runs buffered image payloads through the security validator.
type Pipeline struct {
	validator *SecurityValidator
	logger    *logging.Logger
	security  config.SecurityConfig
}

// Options configures the pipeline behaviour.
type Options struct {
	Security config.SecurityConfig
	Logger   *logging.Logger
}

// Output contains the validated bytes and detected format.
type Output struct {
	Bytes      []byte
	Format     string
	Validation ValidationResult
}

// NewPipeline constructs an image ingestion pipeline.
func NewPipeline(opts Options) (*Pipeline, error) {
	if opts.Security.MaxFileSize <= 0 {
		return nil, apperrors.New(apperrors.KindConfig, "image.pipeline", "security.max_file_size must be positive")
	}
	return &Pipeline{
		validator: NewSecurityValidator(opts.Security, opts.Logger),
		logger:    opts.Logger,
		security:  opts.Security,
	}, nil
}

// MaxFileSize is the byte cap applied to every payload.
func (p *Pipeline) MaxFileSize() int64 {
	return p.security.MaxFileSize
}

// ProcessBytes validates an already buffered payload.
func (p *Pipeline) ProcessBytes(raw []byte, declaredFormat, source string) (*Output, error) {
	const op = "image.process"
	if len(raw) == 0 {
		return nil, apperrors.New(apperrors.KindInvalidInput, op, "empty image payload")
	}

	validation := p.validator.ValidateBytes(raw, declaredFormat)
	if !validation.IsValid {
		p.logger.WarnTag("ACQUIRE", "image rejected: source=%s risk=%s err=%v",
			source, validation.SecurityRisk, validation.Error)
		if validation.Error != nil {
			return nil, apperrors.Wrap(apperrors.KindInvalidInput, op, "image validation failed", validation.Error)
		}
		return nil, apperrors.New(apperrors.KindInvalidInput, op, "image validation failed")
	}

	return &Output{
		Bytes:      raw,
		Format:     validation.Format,
		Validation: validation,
	}, nil
}
