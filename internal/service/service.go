package service

import (
	"context"
	"time"

	"github.com/ds124wfegd/imagecaption/internal/entity"
	"github.com/ds124wfegd/imagecaption/internal/pkg/kafka"
	"github.com/ds124wfegd/imagecaption/internal/pkg/models"
	"github.com/ds124wfegd/imagecaption/internal/pkg/preprocess"
	"github.com/ds124wfegd/imagecaption/internal/pkg/styles"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultMaxBatchSize  = 10
	DefaultBatchWorkers  = 4
	DefaultMaxInFlight   = 8
	DefaultAdmissionWait = 5 * time.Second
)

type CaptionService interface {
	Caption(ctx context.Context, img entity.Image, style entity.StyleID) (*entity.CaptionResult, error)
	CaptionBatch(ctx context.Context, imgs []entity.Image, style entity.StyleID) (*entity.BatchResult, error)
	Styles() []entity.StyleSpec
	Health() entity.Health
	MaxBatchSize() int
}

type Options struct {
	MaxBatchSize int
	BatchWorkers int
	// MaxInFlight bounds concurrent pipeline runs across all requests.
	MaxInFlight int64
	// AdmissionWait is how long a request may queue for a slot before it is
	// rejected with ErrOverloaded.
	AdmissionWait time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxBatchSize <= 0 {
		o.MaxBatchSize = DefaultMaxBatchSize
	}
	if o.BatchWorkers <= 0 {
		o.BatchWorkers = DefaultBatchWorkers
	}
	if o.MaxInFlight <= 0 {
		o.MaxInFlight = DefaultMaxInFlight
	}
	if o.AdmissionWait <= 0 {
		o.AdmissionWait = DefaultAdmissionWait
	}
	return o
}

type captionService struct {
	models   *models.Set
	styles   *styles.Registry
	pre      *preprocess.Preprocessor
	producer kafka.Producer
	admit    *semaphore.Weighted
	opts     Options
}

func NewCaptionService(set *models.Set, registry *styles.Registry, pre *preprocess.Preprocessor, producer kafka.Producer, opts Options) CaptionService {
	opts = opts.withDefaults()
	return &captionService{
		models:   set,
		styles:   registry,
		pre:      pre,
		producer: producer,
		admit:    semaphore.NewWeighted(opts.MaxInFlight),
		opts:     opts,
	}
}

func (s *captionService) Styles() []entity.StyleSpec {
	return s.styles.List()
}

func (s *captionService) MaxBatchSize() int {
	return s.opts.MaxBatchSize
}

func (s *captionService) Health() entity.Health {
	if !s.models.Ready() {
		return entity.Health{
			Status:  entity.HealthDegraded,
			Message: s.models.Err().Error(),
		}
	}
	return entity.Health{
		Status:       entity.HealthHealthy,
		ModelsLoaded: true,
		Message:      "Image Captioning API is running",
		Encoder:      s.models.EncoderName(),
		Device:       s.models.Device(),
	}
}
