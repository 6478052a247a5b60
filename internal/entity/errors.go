package entity

import "errors"

var (
	// Validation errors, caller faults
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrPayloadTooLarge   = errors.New("payload too large")
	ErrImageTooLarge     = errors.New("image dimensions exceed limit")
	ErrUnknownStyle      = errors.New("unknown caption style")
	ErrBatchTooLarge     = errors.New("batch size exceeds limit")
	ErrEmptyBatch        = errors.New("no images provided")

	// Infrastructure errors
	ErrModelUnavailable = errors.New("captioning models are not loaded")
	ErrOverloaded       = errors.New("too many captioning requests in flight")

	// Generation errors
	ErrGenerationTimeout     = errors.New("caption generation timed out")
	ErrInternalInconsistency = errors.New("internal inconsistency")
)

// IsValidation reports whether err is a caller fault that must not be retried.
func IsValidation(err error) bool {
	return errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrPayloadTooLarge) ||
		errors.Is(err, ErrImageTooLarge) ||
		errors.Is(err, ErrUnknownStyle) ||
		errors.Is(err, ErrBatchTooLarge) ||
		errors.Is(err, ErrEmptyBatch)
}
