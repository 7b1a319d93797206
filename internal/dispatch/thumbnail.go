package dispatch

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// ThumbnailMaxDim bounds the longer edge of a generated thumbnail.
const ThumbnailMaxDim = 512

// MakeThumbnail downsizes an image file at srcPath to fit within
// ThumbnailMaxDim on its longer edge and writes it alongside the original
// as "<name>.thumb.jpg". Returns the thumbnail path. Non-image media
// (audio, video, documents) should not be routed through this helper.
func MakeThumbnail(srcPath string) (string, error) {
	img, err := imaging.Open(srcPath, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("dispatch: opening media for thumbnail: %w", err)
	}

	thumb := imaging.Fit(img, ThumbnailMaxDim, ThumbnailMaxDim, imaging.Lanczos)

	ext := strings.TrimSuffix(srcPath, filepath.Ext(srcPath))
	dst := ext + ".thumb.jpg"
	if err := imaging.Save(thumb, dst, imaging.JPEGQuality(85)); err != nil {
		return "", fmt.Errorf("dispatch: saving thumbnail: %w", err)
	}
	return dst, nil
}

// IsThumbnailableImage reports whether path looks like a raster image this
// package can thumbnail.
func IsThumbnailableImage(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tiff":
		return true
	default:
		return false
	}
}
