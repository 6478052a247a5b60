package entity

// Image is an uploaded image as received at request ingress.
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

type ImageInfo struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
}

type CaptionResult struct {
	Caption    string    `json:"caption"`
	Confidence float64   `json:"confidence"`
	Style      string    `json:"style"`
	ImageInfo  ImageInfo `json:"image_info"`
}

// BatchItem is the outcome for one image of a batch. Exactly one of Result
// and Err is set.
type BatchItem struct {
	Filename string
	Result   *CaptionResult
	Err      error
}

func (i BatchItem) Success() bool {
	return i.Err == nil && i.Result != nil
}

// BatchResult keeps items in input order.
type BatchResult struct {
	Items []BatchItem
}

func (b *BatchResult) Succeeded() int {
	n := 0
	for _, item := range b.Items {
		if item.Success() {
			n++
		}
	}
	return n
}
