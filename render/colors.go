package render

import (
	"fmt"
	"image/color"
)

// palette is the list of hex colors tracks are painted with
var palette = []string{
	"#FF3838", "#FF701F", "#FFB21D", "#CFD231", "#48F90A",
	"#1A9334", "#00D4BB", "#00C2FF", "#344593", "#6473FF",
	"#0018EC", "#8438FF", "#520085", "#FF95C8", "#FF37C7",
	"#FF9D97", "#2C99A8", "#3DDB86", "#CB38FF", "#92CC17",
}

var (
	trackColors = parsePalette(palette)

	Black  = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Gray   = color.RGBA{R: 160, G: 160, B: 160, A: 255}
	Yellow = color.RGBA{R: 255, G: 255, B: 50, A: 255}
	Pink   = color.RGBA{R: 255, G: 0, B: 255, A: 255}
)

// TrackColor returns the palette color for a track ID.  The same ID always
// gets the same color
func TrackColor(id uint64) color.RGBA {
	return trackColors[id%uint64(len(trackColors))]
}

// HexColor parses an opaque "#RRGGBB" color
func HexColor(hex string) (color.RGBA, error) {

	c := color.RGBA{A: 255}

	if _, err := fmt.Sscanf(hex, "#%2x%2x%2x", &c.R, &c.G, &c.B); err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", hex, err)
	}

	return c, nil
}

// parsePalette converts the hex palette, panicking on a malformed entry
func parsePalette(hexes []string) []color.RGBA {

	out := make([]color.RGBA, len(hexes))

	for i, h := range hexes {
		c, err := HexColor(h)

		if err != nil {
			panic(err)
		}

		out[i] = c
	}

	return out
}
