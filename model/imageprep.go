package model

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"

	"docqa/types"

	"golang.org/x/image/draw"
)

// PrepareImage downscales images whose longer side exceeds maxSide and
// re-encodes them as PNG. Smaller images are returned untouched.
// maxSide <= 0 disables resizing.
func PrepareImage(data []byte, mimeType string, maxSide int) ([]byte, string, error) {
	if maxSide <= 0 {
		return data, mimeType, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: decode image: %v", types.ErrExtractionFailed, err)
	}
	if cfg.Width <= maxSide && cfg.Height <= maxSide {
		return data, mimeType, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: decode image: %v", types.ErrExtractionFailed, err)
	}

	w, h := scaledSize(cfg.Width, cfg.Height, maxSide)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, "", fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), "image/png", nil
}

func scaledSize(w, h, maxSide int) (int, int) {
	if w >= h {
		return maxSide, max(1, h*maxSide/w)
	}
	return max(1, w*maxSide/h), maxSide
}
