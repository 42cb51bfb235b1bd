//go:build !linux || !cgo

package enrich

import (
	"errors"
	"image"
	"io"
)

func decodeHEIC(r io.Reader) (image.Image, error) {
	return nil, errors.New("heic decoding not supported")
}

func heicSupported() bool {
	return false
}
