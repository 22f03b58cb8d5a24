package pyramid

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	red    = color.NRGBA{R: 255, A: 255}
	green  = color.NRGBA{G: 255, A: 255}
	blue   = color.NRGBA{B: 255, A: 255}
	yellow = color.NRGBA{R: 255, G: 255, A: 255}
)

// quadrantColorImage builds a square image whose four quadrants are filled
// with the given colors, top-left, top-right, bottom-left, bottom-right.
func quadrantColorImage(size int, tl, tr, bl, br color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	half := size / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := tl
			switch {
			case x >= half && y < half:
				c = tr
			case x < half && y >= half:
				c = bl
			case x >= half && y >= half:
				c = br
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// uniformImage builds a size by size image filled with c.
func uniformImage(size int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// assertColorNear samples img at (x, y) and checks each channel against
// want, allowing off by one rounding from resampling.
func assertColorNear(t *testing.T, img image.Image, x, y int, want color.NRGBA) {
	t.Helper()
	got := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
	assert.InDelta(t, want.R, got.R, 1, "red channel at (%d,%d)", x, y)
	assert.InDelta(t, want.G, got.G, 1, "green channel at (%d,%d)", x, y)
	assert.InDelta(t, want.B, got.B, 1, "blue channel at (%d,%d)", x, y)
	assert.InDelta(t, want.A, got.A, 1, "alpha channel at (%d,%d)", x, y)
}

func TestSplitQuadrants(t *testing.T) {
	t.Run("splits into uniform quadrants", func(t *testing.T) {
		img := quadrantColorImage(8, red, green, blue, yellow)

		quadrants := SplitQuadrants(img)

		want := []color.NRGBA{red, green, blue, yellow}
		for i, quadrant := range quadrants {
			bounds := quadrant.Bounds()
			assert.Equal(t, 4, bounds.Dx())
			assert.Equal(t, 4, bounds.Dy())
			for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
				for x := bounds.Min.X; x < bounds.Max.X; x++ {
					assertColorNear(t, quadrant, x, y, want[i])
				}
			}
		}
	})

	t.Run("odd dimensions are floored", func(t *testing.T) {
		img := image.NewNRGBA(image.Rect(0, 0, 7, 5))

		quadrants := SplitQuadrants(img)

		for _, quadrant := range quadrants {
			assert.Equal(t, 3, quadrant.Bounds().Dx())
			assert.Equal(t, 2, quadrant.Bounds().Dy())
		}
	})
}

func TestMergeQuadrants(t *testing.T) {
	t.Run("places each child in its quadrant", func(t *testing.T) {
		children := [4]image.Image{
			uniformImage(2, red),
			uniformImage(2, green),
			uniformImage(2, blue),
			uniformImage(2, yellow),
		}

		merged := MergeQuadrants(children, 2)

		require.Equal(t, 4, merged.Bounds().Dx())
		require.Equal(t, 4, merged.Bounds().Dy())
		assertColorNear(t, merged, 0, 0, red)
		assertColorNear(t, merged, 3, 0, green)
		assertColorNear(t, merged, 0, 3, blue)
		assertColorNear(t, merged, 3, 3, yellow)
	})

	t.Run("missing children stay transparent", func(t *testing.T) {
		children := [4]image.Image{
			uniformImage(2, red),
			nil,
			nil,
			uniformImage(2, yellow),
		}

		merged := MergeQuadrants(children, 2)

		assertColorNear(t, merged, 0, 0, red)
		assertColorNear(t, merged, 3, 3, yellow)
		// Untouched quadrants keep zero alpha.
		assertColorNear(t, merged, 3, 0, color.NRGBA{})
		assertColorNear(t, merged, 0, 3, color.NRGBA{})
	})

	t.Run("merge inverts split", func(t *testing.T) {
		original := image.NewNRGBA(image.Rect(0, 0, 8, 8))
		for y := 0; y < 8; y++ {
			for x := 0; x < 8; x++ {
				original.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 16), G: uint8(y * 16), B: uint8(x + y), A: 255})
			}
		}

		quadrants := SplitQuadrants(original)
		merged := MergeQuadrants([4]image.Image{quadrants[0], quadrants[1], quadrants[2], quadrants[3]}, 4)

		require.Equal(t, original.Bounds(), merged.Bounds())
		assert.Equal(t, original.Pix, merged.Pix)
	})
}

func TestResizeToTile(t *testing.T) {
	resized := ResizeToTile(uniformImage(512, red))

	assert.Equal(t, TilePixelSize, resized.Bounds().Dx())
	assert.Equal(t, TilePixelSize, resized.Bounds().Dy())
	assertColorNear(t, resized, 128, 128, red)
}

func TestBuildBaseLevelTiles(t *testing.T) {
	fullMap := quadrantColorImage(1024, red, green, blue, yellow)
	root := Coord{X: 3, Y: 5, Z: 9}

	tiles := BuildBaseLevelTiles(root, fullMap)

	require.Len(t, tiles, 21)

	t.Run("order is grandchildren per child, children, then root", func(t *testing.T) {
		wantCoords := []Coord{
			// Grandchildren of the top-left child.
			{X: 12, Y: 20, Z: 11}, {X: 13, Y: 20, Z: 11}, {X: 12, Y: 21, Z: 11}, {X: 13, Y: 21, Z: 11},
			// Grandchildren of the top-right child.
			{X: 14, Y: 20, Z: 11}, {X: 15, Y: 20, Z: 11}, {X: 14, Y: 21, Z: 11}, {X: 15, Y: 21, Z: 11},
			// Grandchildren of the bottom-left child.
			{X: 12, Y: 22, Z: 11}, {X: 13, Y: 22, Z: 11}, {X: 12, Y: 23, Z: 11}, {X: 13, Y: 23, Z: 11},
			// Grandchildren of the bottom-right child.
			{X: 14, Y: 22, Z: 11}, {X: 15, Y: 22, Z: 11}, {X: 14, Y: 23, Z: 11}, {X: 15, Y: 23, Z: 11},
			// Children.
			{X: 6, Y: 10, Z: 10}, {X: 7, Y: 10, Z: 10}, {X: 6, Y: 11, Z: 10}, {X: 7, Y: 11, Z: 10},
			// Root.
			{X: 3, Y: 5, Z: 9},
		}

		for i, want := range wantCoords {
			assert.Equal(t, want, tiles[i].Coord, "tile %d", i)
		}
	})

	t.Run("every tile has the display size", func(t *testing.T) {
		for i, tile := range tiles {
			assert.Equal(t, TilePixelSize, tile.Image.Bounds().Dx(), "tile %d width", i)
			assert.Equal(t, TilePixelSize, tile.Image.Bounds().Dy(), "tile %d height", i)
		}
	})

	t.Run("tiles carry the right part of the map", func(t *testing.T) {
		// The first grandchild sits fully inside the red quadrant.
		assertColorNear(t, tiles[0].Image, 128, 128, red)
		// The last grandchild of the top-right child is fully green.
		assertColorNear(t, tiles[7].Image, 128, 128, green)
		// Children are uniform too.
		assertColorNear(t, tiles[16].Image, 128, 128, red)
		assertColorNear(t, tiles[19].Image, 128, 128, yellow)
		// The root tile shows all four quadrants, sampled away from seams.
		assertColorNear(t, tiles[20].Image, 64, 64, red)
		assertColorNear(t, tiles[20].Image, 192, 64, green)
		assertColorNear(t, tiles[20].Image, 64, 192, blue)
		assertColorNear(t, tiles[20].Image, 192, 192, yellow)
	})
}
