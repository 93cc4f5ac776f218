// Package perlin builds a normal map from raylib's Perlin noise generator.
package perlin

import (
	"fmt"

	rl "github.com/gen2brain/raylib-go/raylib"

	"trailfield/rendering/normalmap"
)

// Generate renders a width x height Perlin height field starting at
// (offsetX, offsetY) with the given noise scale and converts it into a
// normal map. It only touches raylib's CPU image functions, so no window is
// needed.
func Generate(width, height, offsetX, offsetY int, scale, strength float32) (*normalmap.Map, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("perlin size %dx%d", width, height)
	}

	img := rl.GenImagePerlinNoise(width, height, offsetX, offsetY, scale)
	if img == nil {
		return nil, fmt.Errorf("raylib returned no image")
	}
	defer rl.UnloadImage(img)

	colors := rl.LoadImageColors(img)
	defer rl.UnloadImageColors(colors)
	if len(colors) != width*height {
		return nil, fmt.Errorf("perlin image has %d texels, want %d", len(colors), width*height)
	}

	heights := make([]float32, width*height)
	for y := 0; y < height; y++ {
		// raylib images are stored top row first.
		src := (height - 1 - y) * width
		for x := 0; x < width; x++ {
			heights[y*width+x] = float32(colors[src+x].R) / 255
		}
	}
	return normalmap.FromHeights(width, height, heights, strength)
}
