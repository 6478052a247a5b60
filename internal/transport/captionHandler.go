package transport

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/ds124wfegd/imagecaption/internal/entity"
	"github.com/gin-gonic/gin"
)

// multipartOverhead covers form fields and part headers on top of file data.
const multipartOverhead = 1 << 20

var allowedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".bmp":  true,
}

type batchItemResponse struct {
	Filename string `json:"filename"`
	*entity.CaptionResult
	Error   string `json:"error,omitempty"`
	Success bool   `json:"success"`
}

type batchResponse struct {
	Captions       []batchItemResponse `json:"captions"`
	TotalProcessed int                 `json:"total_processed"`
}

func (h *CaptionHandler) GenerateCaption(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)

	file, err := c.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		file, err = c.FormFile("image")
	}
	if err != nil {
		h.formError(c, err, "No file provided")
		return
	}
	if file.Filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file selected"})
		return
	}
	if !isValidImageType(file.Filename) {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidType})
		return
	}

	img, err := h.readImage(file)
	if err != nil {
		h.fail(c, err)
		return
	}

	res, err := h.service.Caption(c.Request.Context(), img, h.style(c))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *CaptionHandler) BatchCaption(c *gin.Context) {
	limit := int64(h.service.MaxBatchSize()+1)*h.maxBytes + multipartOverhead
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	form, err := c.MultipartForm()
	if err != nil {
		h.formError(c, err, "No files provided")
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files provided"})
		return
	}
	if len(files) > h.service.MaxBatchSize() {
		h.fail(c, entity.ErrBatchTooLarge)
		return
	}

	// files rejected here are reported in place without reaching the pipeline
	response := batchResponse{Captions: make([]batchItemResponse, len(files))}
	var (
		imgs  []entity.Image
		index []int
	)
	for i, file := range files {
		response.Captions[i].Filename = filepath.Base(file.Filename)
		if !isValidImageType(file.Filename) {
			response.Captions[i].Error = msgInvalidType
			continue
		}
		img, err := h.readImage(file)
		if err != nil {
			response.Captions[i].Error = h.errorMessage(err)
			continue
		}
		imgs = append(imgs, img)
		index = append(index, i)
	}

	if len(imgs) > 0 {
		result, err := h.service.CaptionBatch(c.Request.Context(), imgs, h.style(c))
		if err != nil {
			h.fail(c, err)
			return
		}
		for j, item := range result.Items {
			out := &response.Captions[index[j]]
			if item.Success() {
				out.CaptionResult = item.Result
				out.Success = true
			} else {
				out.Error = h.errorMessage(item.Err)
			}
		}
	}
	response.TotalProcessed = len(response.Captions)

	c.JSON(http.StatusOK, response)
}

func (h *CaptionHandler) GetStyles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"styles": h.service.Styles()})
}

func (h *CaptionHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Health())
}

func (h *CaptionHandler) style(c *gin.Context) entity.StyleID {
	style := c.PostForm("style")
	if style == "" {
		style = h.defaultStyle
	}
	return entity.StyleID(style)
}

func (h *CaptionHandler) readImage(file *multipart.FileHeader) (entity.Image, error) {
	name := filepath.Base(file.Filename)
	if file.Size > h.maxBytes {
		return entity.Image{}, entity.ErrPayloadTooLarge
	}

	src, err := file.Open()
	if err != nil {
		return entity.Image{}, err
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, h.maxBytes+1))
	if err != nil {
		return entity.Image{}, err
	}
	return entity.Image{
		Filename:    name,
		ContentType: file.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (h *CaptionHandler) formError(c *gin.Context, err error, missing string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": tooLargeMessage(h.maxBytes)})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": missing})
}

func (h *CaptionHandler) fail(c *gin.Context, err error) {
	c.Error(err)
	c.JSON(statusFor(err), gin.H{"error": h.errorMessage(err)})
}

func isValidImageType(filename string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(filename))]
}
