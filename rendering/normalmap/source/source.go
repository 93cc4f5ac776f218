// Package source resolves the configured normal map: flat, generated Perlin
// noise, or an image file on disk.
package source

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"trailfield/config"
	"trailfield/rendering/normalmap"
	"trailfield/rendering/normalmap/perlin"
)

// Load builds the normal map described by cfg.
func Load(cfg config.NormalMapSettings) (*normalmap.Map, error) {
	switch cfg.Source {
	case "", "flat":
		return normalmap.Flat(max(cfg.Size, 1), max(cfg.Size, 1)), nil
	case "perlin":
		return perlin.Generate(cfg.Size, cfg.Size, 0, 0, float32(cfg.Scale), float32(cfg.Strength))
	}

	f, err := os.Open(cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("open normal map: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode normal map %s: %w", cfg.Source, err)
	}
	size := cfg.Size
	if size <= 0 {
		size = img.Bounds().Dx()
	}
	m, err := normalmap.FromImage(img, size, size)
	if err != nil {
		return nil, fmt.Errorf("%s normal map: %w", format, err)
	}
	return m, nil
}
