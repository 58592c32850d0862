// Package imgproc downscales oversized images before they are shipped to
// the blob store.
package imgproc

import (
	"bytes"
	"fmt"
	"image"

	// Register the decoders for the formats we accept.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
)

// getFormat maps the format string from image.Decode to the imaging enum
// so the image is re-encoded in its original format.
func getFormat(format string) (imaging.Format, error) {
	switch format {
	case "jpeg":
		return imaging.JPEG, nil
	case "png":
		return imaging.PNG, nil
	case "gif":
		return imaging.GIF, nil
	case "bmp":
		return imaging.BMP, nil
	case "tiff":
		return imaging.TIFF, nil
	default:
		return -1, fmt.Errorf("unsupported format for re-encoding: %s", format)
	}
}

// Normalize returns data downscaled so its longest side is at most maxDim,
// re-encoded in the original format. Bytes that do not decode as an image
// are returned untouched; not every uploaded asset is an image. maxDim <= 0
// disables normalization.
func Normalize(data []byte, maxDim int) ([]byte, error) {
	if maxDim <= 0 {
		return data, nil
	}

	img, formatStr, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data, nil
	}

	b := img.Bounds()
	if b.Dx() <= maxDim && b.Dy() <= maxDim {
		return data, nil
	}

	format, err := getFormat(formatStr)
	if err != nil {
		// Decodable but not re-encodable; keep the original bytes.
		return data, nil
	}

	scaled := imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)

	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, scaled, format); err != nil {
		return nil, fmt.Errorf("failed to re-encode image: %w", err)
	}
	return buf.Bytes(), nil
}
