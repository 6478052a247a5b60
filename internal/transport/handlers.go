package transport

import (
	"github.com/ds124wfegd/imagecaption/internal/service"
)

type CaptionHandler struct {
	service      service.CaptionService
	maxBytes     int64
	defaultStyle string
}

func NewCaptionHandler(service service.CaptionService, maxBytes int64, defaultStyle string) *CaptionHandler {
	if defaultStyle == "" {
		defaultStyle = "creative"
	}
	return &CaptionHandler{service: service, maxBytes: maxBytes, defaultStyle: defaultStyle}
}
