package handlers

import (
	"errors"
	"fmt"
	"image"
	"io"
	"mime"
	"net/http"

	"github.com/kozaktomas/facegate/internal/facematch"
	"github.com/kozaktomas/facegate/internal/imaging"
)

// imageFormField is the multipart field holding the image.
const imageFormField = "image"

// readImage decodes the request image. The body is either the raw image or
// a multipart form with an "image" file field, at most maxBytes long and
// declaring at most maxPixels pixels.
func readImage(w http.ResponseWriter, r *http.Request, maxBytes int64, maxPixels int) (*image.Gray, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	var src io.Reader = r.Body
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			return nil, fmt.Errorf("%w: %w", facematch.ErrInvalidImage, err)
		}
		file, _, err := r.FormFile(imageFormField)
		if err != nil {
			return nil, fmt.Errorf("%w: missing %q field", facematch.ErrInvalidImage, imageFormField)
		}
		defer file.Close()
		src = file
	}

	img, err := imaging.Decode(src, maxPixels)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: larger than %d bytes", facematch.ErrInvalidImage, tooLarge.Limit)
		}
		return nil, fmt.Errorf("%w: %w", facematch.ErrInvalidImage, err)
	}
	return img, nil
}
