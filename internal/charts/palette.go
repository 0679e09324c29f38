package charts

import (
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
)

// divergingPalette returns a blue-white-red palette suited to correlation
// values in [-1, 1].
func divergingPalette(colors int) palette.Palette {
	return moreland.SmoothBlueRed().Palette(colors)
}
