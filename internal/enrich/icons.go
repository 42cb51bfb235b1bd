package enrich

import (
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/justyntemme/razorlist/internal/debug"
	"github.com/justyntemme/razorlist/internal/item"
	"github.com/justyntemme/razorlist/internal/model"
)

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
	".heic": true, ".heif": true,
}

// ImageProvider renders thumbnails for local images and falls back to a
// per-extension placeholder shared through the icon cache.
type ImageProvider struct {
	Cache      *item.IconCache
	Thumbnails bool
	MaxBytes   int64 // larger images get the placeholder
}

// NewImageProvider creates a provider backed by cache.
func NewImageProvider(cache *item.IconCache, thumbnails bool) *ImageProvider {
	if cache == nil {
		cache = item.NewIconCache(0)
	}
	return &ImageProvider{Cache: cache, Thumbnails: thumbnails, MaxBytes: 32 << 20}
}

// GetIcon returns a thumbnail for decodable images and a placeholder for
// everything else.
func (p *ImageProvider) GetIcon(ctx context.Context, path string, size int) (*model.Icon, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	local := !strings.Contains(path, "://")
	ext := strings.ToLower(filepath.Ext(path))
	if local {
		fi, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if fi.IsDir() {
			return p.placeholder(item.FolderExt, size), nil
		}
		if p.Thumbnails && imageExts[ext] && fi.Size() <= p.MaxBytes {
			icon, err := p.thumbnail(ctx, path, ext, size)
			if err == nil {
				return icon, nil
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			debug.Log(debug.ENRICH, "thumbnail %s: %v", path, err)
		}
	}
	return p.placeholder(ext, size), nil
}

func (p *ImageProvider) thumbnail(ctx context.Context, path, ext string, size int) (*model.Icon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var img image.Image
	if ext == ".heic" || ext == ".heif" {
		if !heicSupported() {
			return nil, fmt.Errorf("heic decoding not supported on this platform")
		}
		img, err = decodeHEIC(f)
	} else {
		img, _, err = image.Decode(f)
	}
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &model.Icon{Size: size, Image: scaleToFit(img, size)}, nil
}

// scaleToFit scales src down so neither side exceeds limit.
func scaleToFit(src image.Image, limit int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= limit && h <= limit {
		return src
	}

	var scale float64
	if w > h {
		scale = float64(limit) / float64(w)
	} else {
		scale = float64(limit) / float64(h)
	}
	nw, nh := int(float64(w)*scale), int(float64(h)*scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

func (p *ImageProvider) placeholder(ext string, size int) *model.Icon {
	return p.Cache.GetOrCreate(item.IconKey{Ext: ext, Size: size}, func() *model.Icon {
		return &model.Icon{Size: size, Image: placeholderImage(ext, size), Placeholder: true}
	})
}

var placeholderPalette = []color.RGBA{
	{0x4a, 0x90, 0xd9, 0xff},
	{0x7e, 0xb2, 0x6d, 0xff},
	{0xe0, 0x8e, 0x45, 0xff},
	{0xb5, 0x6f, 0xc4, 0xff},
	{0xd9, 0x53, 0x4f, 0xff},
	{0x8c, 0x8c, 0x8c, 0xff},
}

var folderColor = color.RGBA{0xe8, 0xc0, 0x4a, 0xff}

// placeholderImage draws a flat tile whose color is stable per extension.
func placeholderImage(ext string, size int) image.Image {
	c := folderColor
	if ext != item.FolderExt {
		h := fnv.New32a()
		io.WriteString(h, ext)
		c = placeholderPalette[h.Sum32()%uint32(len(placeholderPalette))]
	}
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}
