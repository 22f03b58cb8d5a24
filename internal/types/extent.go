package types

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// TileSizeMeters is the side length of a processing tile in projected
// coordinates (EPSG:2154 meters).
const TileSizeMeters = 1000

// Extent is an axis-aligned bounding box in projected coordinates.
type Extent struct {
	MinX int64
	MinY int64
	MaxX int64
	MaxY int64
}

// ExtentFromTileID derives the nominal extent of a tile from its id.
// Tile ids encode the bottom-left corner as "{min_x}_{min_y}".
func ExtentFromTileID(tileID string) (Extent, error) {
	parts := strings.Split(tileID, "_")
	if len(parts) != 2 {
		return Extent{}, fmt.Errorf("invalid tile id: %s", tileID)
	}

	minX, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Extent{}, fmt.Errorf("invalid tile id %s: %w", tileID, err)
	}
	minY, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Extent{}, fmt.Errorf("invalid tile id %s: %w", tileID, err)
	}

	return Extent{
		MinX: minX,
		MinY: minY,
		MaxX: minX + TileSizeMeters,
		MaxY: minY + TileSizeMeters,
	}, nil
}

// ReadExtentFile parses an extent descriptor written by the tile engine:
// four whitespace-separated integers, min x, min y, max x then max y.
func ReadExtentFile(path string) (Extent, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Extent{}, fmt.Errorf("failed to read extent file: %w", err)
	}

	fields := strings.Fields(string(content))
	if len(fields) != 4 {
		return Extent{}, fmt.Errorf("malformed extent file %s: expected 4 values, got %d", path, len(fields))
	}

	values := make([]int64, 4)
	for i, field := range fields {
		values[i], err = strconv.ParseInt(field, 10, 64)
		if err != nil {
			return Extent{}, fmt.Errorf("malformed extent file %s: %w", path, err)
		}
	}

	return Extent{MinX: values[0], MinY: values[1], MaxX: values[2], MaxY: values[3]}, nil
}

// Expand grows the extent by margin meters in every direction.
func (e Extent) Expand(margin int64) Extent {
	return Extent{
		MinX: e.MinX - margin,
		MinY: e.MinY - margin,
		MaxX: e.MaxX + margin,
		MaxY: e.MaxY + margin,
	}
}

// String renders the extent in the same format ReadExtentFile parses.
func (e Extent) String() string {
	return fmt.Sprintf("%d %d %d %d", e.MinX, e.MinY, e.MaxX, e.MaxY)
}
