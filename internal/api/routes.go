// Package api provides the client for the mapant.fr map generation API.
package api

import "fmt"

// APIPrefix is the prefix for all map generation endpoints
const APIPrefix = "/api/map-generation"

// NextJobURL returns the URL for requesting the next job
func NextJobURL(baseURL string) string {
	return fmt.Sprintf("%s%s/next-job", baseURL, APIPrefix)
}

// LidarStepURL returns the URL of a tile's LiDAR step archive. Workers POST
// completed archives to it and GET the archives of already processed tiles.
func LidarStepURL(baseURL, tileID string) string {
	return fmt.Sprintf("%s%s/lidar-steps/%s", baseURL, APIPrefix, tileID)
}

// RenderStepURL returns the URL for uploading the render step artifacts of a tile
func RenderStepURL(baseURL, tileID string) string {
	return fmt.Sprintf("%s%s/render-steps/%s", baseURL, APIPrefix, tileID)
}

// FullMapURL returns the URL of the full resolution rendered map of a tile
func FullMapURL(baseURL, tileID string) string {
	return fmt.Sprintf("%s%s/render-steps/%s/full-map", baseURL, APIPrefix, tileID)
}

// PyramidStepURL returns the URL of a single pyramid tile
func PyramidStepURL(baseURL, areaID string, z, x, y int) string {
	return fmt.Sprintf("%s%s/pyramid-steps/%s/%d/%d/%d", baseURL, APIPrefix, areaID, z, x, y)
}

// PyramidBaseLevelURL returns the URL for uploading the whole base level
// subtree derived from one rendered tile
func PyramidBaseLevelURL(baseURL, areaID string, x, y int) string {
	return fmt.Sprintf("%s%s/pyramid-steps/%s/base-level/%d/%d", baseURL, APIPrefix, areaID, x, y)
}
