package media

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// JPEGQuality is used for every image written by this package.
const JPEGQuality = 80

// DecodeFrame decodes a single frame produced by the encoder on stdout.
func DecodeFrame(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty frame")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return img, nil
}

// Fit scales img down to fit within width x height, preserving aspect ratio.
// Images already inside the box are returned unchanged. A zero height bounds
// the width only.
func Fit(img image.Image, width, height int) image.Image {
	if height <= 0 {
		height = math.MaxInt32
	}
	return imaging.Fit(img, width, height, imaging.Lanczos)
}

// WriteJPEG encodes img to path. The data is written to a sibling temp file
// and renamed into place, so readers see either the old or the new image.
func WriteJPEG(path string, img image.Image) error {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return fmt.Errorf("failed to encode jpeg: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".img-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to rename into %s: %w", path, err)
	}
	return nil
}

// SpriteColumns picks a near-square grid for n frames.
func SpriteColumns(n int) int {
	if n <= 0 {
		return 0
	}
	return int(math.Ceil(math.Sqrt(float64(n))))
}

// Sprite lays frames out left to right, top to bottom in a grid with the
// given number of columns. Cells are sized to the largest frame; smaller
// frames are centered on a black background.
func Sprite(frames []image.Image, columns int) (image.Image, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames")
	}
	if columns <= 0 {
		columns = SpriteColumns(len(frames))
	}
	if columns > len(frames) {
		columns = len(frames)
	}

	cellW, cellH := 0, 0
	for _, f := range frames {
		b := f.Bounds()
		cellW = max(cellW, b.Dx())
		cellH = max(cellH, b.Dy())
	}

	rows := (len(frames) + columns - 1) / columns
	sheet := imaging.New(cellW*columns, cellH*rows, color.Black)

	for i, f := range frames {
		b := f.Bounds()
		x := (i%columns)*cellW + (cellW-b.Dx())/2
		y := (i/columns)*cellH + (cellH-b.Dy())/2
		sheet = imaging.Paste(sheet, f, image.Pt(x, y))
	}
	return sheet, nil
}
