package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ds124wfegd/imagecaption/internal/entity"
	"github.com/ds124wfegd/imagecaption/internal/pkg/kafka"
	"github.com/ds124wfegd/imagecaption/internal/pkg/postprocess"
	"github.com/sirupsen/logrus"
)

func (s *captionService) Caption(ctx context.Context, img entity.Image, styleID entity.StyleID) (*entity.CaptionResult, error) {
	style, err := s.styles.Resolve(styleID)
	if err != nil {
		return nil, err
	}
	if err := s.models.Err(); err != nil {
		return nil, err
	}
	return s.run(WithRequestID(ctx, RequestID(ctx)), img, style, false)
}

func (s *captionService) CaptionBatch(ctx context.Context, imgs []entity.Image, styleID entity.StyleID) (*entity.BatchResult, error) {
	if len(imgs) == 0 {
		return nil, entity.ErrEmptyBatch
	}
	if len(imgs) > s.opts.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d images, maximum is %d", entity.ErrBatchTooLarge, len(imgs), s.opts.MaxBatchSize)
	}
	style, err := s.styles.Resolve(styleID)
	if err != nil {
		return nil, err
	}
	if err := s.models.Err(); err != nil {
		return nil, err
	}

	ctx = WithRequestID(ctx, RequestID(ctx))
	result := &entity.BatchResult{Items: make([]entity.BatchItem, len(imgs))}
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < min(s.opts.BatchWorkers, len(imgs)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				res, err := s.run(ctx, imgs[i], style, true)
				result.Items[i] = entity.BatchItem{Filename: imgs[i].Filename, Result: res, Err: err}
			}
		}()
	}

	for i := range imgs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	logrus.WithFields(logrus.Fields{
		"request_id": RequestID(ctx),
		"style":      style.ID,
		"total":      len(imgs),
		"succeeded":  result.Succeeded(),
	}).Info("Batch captioned")

	return result, nil
}

// run executes the pipeline for one image inside an admission slot.
func (s *captionService) run(ctx context.Context, img entity.Image, style entity.StyleSpec, batch bool) (*entity.CaptionResult, error) {
	start := time.Now()
	reqID := RequestID(ctx)
	log := logrus.WithFields(logrus.Fields{
		"request_id": reqID,
		"style":      style.ID,
		"filename":   img.Filename,
	})

	result, stages, err := s.admitted(ctx, img, style)

	event := kafka.CaptionEvent{
		RequestID: reqID,
		Style:     string(style.ID),
		Success:   err == nil,
		Bytes:     len(img.Data),
		LatencyMS: time.Since(start).Milliseconds(),
		Batch:     batch,
		Time:      time.Now().UTC(),
	}

	if err != nil {
		event.ErrorKind = ErrorKind(err)
		entry := log.WithError(err).WithField("kind", event.ErrorKind)
		switch {
		case errors.Is(err, entity.ErrInternalInconsistency):
			entry.Error("Caption pipeline inconsistency")
		case entity.IsValidation(err):
			entry.Debug("Image rejected")
		default:
			entry.Warn("Caption failed")
		}
	} else {
		event.Confidence = result.Confidence
		event.Width, event.Height, event.Format = result.ImageInfo.Width, result.ImageInfo.Height, result.ImageInfo.Format
		event.Words = postprocess.WordCount(result.Caption)
		log.WithFields(stages).WithField("total", time.Since(start)).Debug("Caption generated")
	}

	if perr := s.producer.Publish(context.WithoutCancel(ctx), event); perr != nil {
		log.WithError(perr).Debug("Caption event not published")
	}

	return result, err
}

func (s *captionService) admitted(ctx context.Context, img entity.Image, style entity.StyleSpec) (*entity.CaptionResult, logrus.Fields, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.opts.AdmissionWait)
	err := s.admit.Acquire(waitCtx, 1)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, entity.ErrOverloaded
	}
	defer s.admit.Release(1)

	return s.pipeline(ctx, img, style)
}

func (s *captionService) pipeline(ctx context.Context, img entity.Image, style entity.StyleSpec) (*entity.CaptionResult, logrus.Fields, error) {
	stages := logrus.Fields{}
	mark := func(name string, since time.Time) { stages[name] = time.Since(since) }

	t := time.Now()
	tensor, info, err := s.pre.Preprocess(img.Data, img.ContentType)
	if err != nil {
		return nil, nil, err
	}
	mark("preprocess", t)

	t = time.Now()
	emb, err := s.models.Encoder().Encode(ctx, tensor)
	if err != nil {
		return nil, nil, err
	}
	mark("encode", t)

	t = time.Now()
	cond, err := s.models.Projector().Project(emb)
	if err != nil {
		return nil, nil, err
	}
	mark("project", t)

	t = time.Now()
	out, err := s.models.Decoder().Decode(ctx, cond, style)
	if err != nil {
		return nil, nil, err
	}
	mark("decode", t)
	stages["steps"] = out.Steps

	tokens := append(strings.Fields(style.Prompt), out.Words...)
	caption := postprocess.Clean(tokens)
	if caption == "" {
		return nil, nil, fmt.Errorf("%w: decoder produced an empty caption", entity.ErrInternalInconsistency)
	}

	return &entity.CaptionResult{
		Caption:    caption,
		Confidence: postprocess.ClampConfidence(out.Confidence),
		Style:      string(style.ID),
		ImageInfo:  info,
	}, stages, nil
}

// ErrorKind names the error class of err for logs and telemetry.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, entity.ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, entity.ErrPayloadTooLarge):
		return "payload_too_large"
	case errors.Is(err, entity.ErrImageTooLarge):
		return "image_too_large"
	case errors.Is(err, entity.ErrUnknownStyle):
		return "unknown_style"
	case errors.Is(err, entity.ErrBatchTooLarge):
		return "batch_too_large"
	case errors.Is(err, entity.ErrEmptyBatch):
		return "empty_batch"
	case errors.Is(err, entity.ErrModelUnavailable):
		return "model_unavailable"
	case errors.Is(err, entity.ErrOverloaded):
		return "overloaded"
	case errors.Is(err, entity.ErrGenerationTimeout):
		return "generation_timeout"
	case errors.Is(err, entity.ErrInternalInconsistency):
		return "internal"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	return "unknown"
}
