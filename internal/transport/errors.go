package transport

import (
	"context"
	"errors"
	"net/http"

	"github.com/ds124wfegd/imagecaption/internal/entity"
	"github.com/ds124wfegd/imagecaption/internal/pkg/preprocess"
	"github.com/dustin/go-humanize"
)

const msgInvalidType = "Invalid file type. Use JPG, PNG, WebP, or BMP"

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrPayloadTooLarge), errors.Is(err, entity.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge
	case entity.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrOverloaded):
		return http.StatusTooManyRequests
	case errors.Is(err, entity.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// errorMessage is the client facing text for err. Internal failures are
// reported without detail.
func (h *CaptionHandler) errorMessage(err error) string {
	switch {
	case errors.Is(err, entity.ErrPayloadTooLarge):
		return tooLargeMessage(h.maxBytes)
	case errors.Is(err, entity.ErrImageTooLarge):
		return "Image dimensions too large. Maximum is " + humanize.Comma(preprocess.MaxPixels) + " pixels"
	case errors.Is(err, entity.ErrUnknownStyle):
		return "Invalid style. Use creative, technical, or simple"
	case errors.Is(err, entity.ErrUnsupportedFormat):
		return msgInvalidType
	case errors.Is(err, entity.ErrBatchTooLarge):
		return err.Error()
	case errors.Is(err, entity.ErrEmptyBatch):
		return "No files provided"
	case errors.Is(err, entity.ErrOverloaded):
		return "Server is busy. Try again later"
	case errors.Is(err, entity.ErrModelUnavailable):
		return "Models are not loaded"
	case errors.Is(err, entity.ErrGenerationTimeout):
		return "Caption generation timed out"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "Request timed out"
	}
	return "Internal server error"
}

func tooLargeMessage(maxBytes int64) string {
	return "File too large. Maximum size is " + humanize.Bytes(uint64(maxBytes))
}
