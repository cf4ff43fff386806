package processor

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Wojt3kW/ocrpdf/internal/pdfdoc"
)

// prepareImage turns an uploaded image into an embeddable XObject. RGB and
// grayscale JPEGs are embedded as-is; everything else is decoded and
// re-encoded losslessly.
func prepareImage(data []byte) (*pdfdoc.Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image header: %w", err)
	}

	if format == "jpeg" {
		if img, err := pdfdoc.JPEGImage(data, cfg); err == nil {
			return img, nil
		}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s image: %w", format, err)
	}
	return pdfdoc.RasterImage(img)
}
