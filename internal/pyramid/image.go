package pyramid

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// SplitQuadrants cuts img into its four quadrants, ordered top-left,
// top-right, bottom-left, bottom-right. Odd dimensions are halved rounding
// down, dropping the last column or row.
func SplitQuadrants(img image.Image) [4]*image.NRGBA {
	bounds := img.Bounds()
	halfWidth := bounds.Dx() / 2
	halfHeight := bounds.Dy() / 2

	var quadrants [4]*image.NRGBA
	for i, offset := range quadrantOffsets(halfWidth, halfHeight) {
		quadrants[i] = imaging.Crop(img, image.Rect(
			bounds.Min.X+offset.X,
			bounds.Min.Y+offset.Y,
			bounds.Min.X+offset.X+halfWidth,
			bounds.Min.Y+offset.Y+halfHeight,
		))
	}

	return quadrants
}

// MergeQuadrants composites up to four tiles of childSize pixels onto a
// transparent canvas twice that size. A nil entry leaves its quadrant
// transparent, which is how holes at the edge of a generated area show up.
func MergeQuadrants(children [4]image.Image, childSize int) *image.NRGBA {
	canvas := imaging.New(2*childSize, 2*childSize, color.NRGBA{})
	for i, offset := range quadrantOffsets(childSize, childSize) {
		if children[i] == nil {
			continue
		}
		canvas = imaging.Paste(canvas, children[i], offset)
	}

	return canvas
}

// ResizeToTile scales img to the display tile size with Lanczos resampling.
func ResizeToTile(img image.Image) *image.NRGBA {
	return imaging.Resize(img, TilePixelSize, TilePixelSize, imaging.Lanczos)
}

// quadrantOffsets returns the top-left corner of each quadrant on a canvas
// of 2*width by 2*height pixels, in the same order as SplitQuadrants.
func quadrantOffsets(width, height int) [4]image.Point {
	return [4]image.Point{
		{X: 0, Y: 0},
		{X: width, Y: 0},
		{X: 0, Y: height},
		{X: width, Y: height},
	}
}

// Tile pairs a pyramid coordinate with its display image.
type Tile struct {
	Coord Coord
	Image *image.NRGBA
}

// BuildBaseLevelTiles derives all the display tiles covered by one full
// resolution map tile rooted at root: the 16 grandchildren first, grouped
// under their parent, then the 4 children, then root itself. Splitting
// happens at native resolution before any tile is resized, so the deeper
// levels keep the full rendering detail.
func BuildBaseLevelTiles(root Coord, fullMap image.Image) []Tile {
	children := root.Children()
	childImages := SplitQuadrants(fullMap)

	tiles := make([]Tile, 0, 21)
	for i, childImage := range childImages {
		grandChildren := children[i].Children()
		for j, grandChildImage := range SplitQuadrants(childImage) {
			tiles = append(tiles, Tile{Coord: grandChildren[j], Image: ResizeToTile(grandChildImage)})
		}
	}
	for i, childImage := range childImages {
		tiles = append(tiles, Tile{Coord: children[i], Image: ResizeToTile(childImage)})
	}
	tiles = append(tiles, Tile{Coord: root, Image: ResizeToTile(fullMap)})

	return tiles
}
