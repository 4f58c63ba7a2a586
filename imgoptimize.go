// Optional downscaling of downloaded raster assets (-max-width).
// The file keeps its name and format so the site-relative path written into
// Markdown stays valid.
package main

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"

	xdraw "golang.org/x/image/draw"
)

// humanSize formats a byte count with one decimal in binary units, stopping
// at TB.
func humanSize(n int64) string {
	const units = "KMGT"
	if n < 1024 && n > -1024 {
		return fmt.Sprintf("%.1fB", float64(n))
	}
	size := float64(n) / 1024
	i := 0
	for i < len(units)-1 && math.Abs(size) >= 1024 {
		size /= 1024
		i++
	}
	return fmt.Sprintf("%.1f%cB", size, units[i])
}

type optimizeOpts struct {
	maxWidth int // 0 disables optimization
	quality  int // JPEG quality 1-100
}

// optimizeAsset downscales JPEG and PNG images wider than opts.maxWidth,
// re-encoding them in their original format. It returns the input unchanged
// and false when optimization is disabled, the format is anything else, the
// image is already narrow enough, or decoding fails.
func optimizeAsset(data []byte, opts optimizeOpts) ([]byte, bool) {
	if opts.maxWidth <= 0 {
		return data, false
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || (format != "jpeg" && format != "png") {
		return data, false
	}
	if cfg.Width <= opts.maxWidth {
		return data, false
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		fmt.Fprintf(logOut, "Warning: could not decode image (%s): %v\n", format, err)
		return data, false
	}

	ratio := float64(opts.maxWidth) / float64(cfg.Width)
	newH := int(math.Round(float64(cfg.Height) * ratio))
	if newH < 1 {
		newH = 1
	}
	scaled := image.NewNRGBA(image.Rect(0, 0, opts.maxWidth, newH))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), img, img.Bounds(), xdraw.Src, nil)

	var buf bytes.Buffer
	switch format {
	case "jpeg":
		quality := opts.quality
		if quality < 1 || quality > 100 {
			quality = jpeg.DefaultQuality
		}
		err = jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: quality})
	case "png":
		err = png.Encode(&buf, scaled)
	}
	if err != nil {
		fmt.Fprintf(logOut, "Warning: %s encode failed: %v\n", format, err)
		return data, false
	}
	return buf.Bytes(), true
}
