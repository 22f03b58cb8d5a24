// Package pyramid implements the tile pyramid displayed by the map viewer:
// quad-tree addressing, image splitting and merging, and the fan-out of one
// full resolution map tile into display tiles.
package pyramid

// TilePixelSize is the side length in pixels of every display tile.
const TilePixelSize = 256

// Coord addresses one tile of an area's pyramid.
type Coord struct {
	X int
	Y int
	Z int
}

// Children returns the four tiles covering c at the next zoom level,
// ordered top-left, top-right, bottom-left, bottom-right.
func (c Coord) Children() [4]Coord {
	return [4]Coord{
		{X: 2 * c.X, Y: 2 * c.Y, Z: c.Z + 1},
		{X: 2*c.X + 1, Y: 2 * c.Y, Z: c.Z + 1},
		{X: 2 * c.X, Y: 2*c.Y + 1, Z: c.Z + 1},
		{X: 2*c.X + 1, Y: 2*c.Y + 1, Z: c.Z + 1},
	}
}
