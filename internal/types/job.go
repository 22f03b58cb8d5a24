// Package types holds the wire types exchanged with the mapant.fr API and
// the tile addressing primitives shared by the step implementations.
package types

import (
	"encoding/json"
	"fmt"
)

// JobType discriminates the payloads returned by the next-job endpoint.
type JobType string

// Job type constants, matching the "type" tag sent by the server.
const (
	// JobTypeLidar is a LiDAR processing job for a single tile
	JobTypeLidar JobType = "Lidar"
	// JobTypeRender is a map rendering job for a tile and its neighbors
	JobTypeRender JobType = "Render"
	// JobTypePyramid is a tile pyramid job for one pyramid coordinate
	JobTypePyramid JobType = "Pyramid"
	// JobTypeNoJobLeft means the server queue is currently empty
	JobTypeNoJobLeft JobType = "NoJobLeft"
)

// String returns the string representation of the job type
func (t JobType) String() string {
	return string(t)
}

// ParseJobType converts a string to a JobType
func ParseJobType(str string) (JobType, error) {
	switch str {
	case string(JobTypeLidar):
		return JobTypeLidar, nil
	case string(JobTypeRender):
		return JobTypeRender, nil
	case string(JobTypePyramid):
		return JobTypePyramid, nil
	case string(JobTypeNoJobLeft):
		return JobTypeNoJobLeft, nil
	default:
		return "", fmt.Errorf("invalid job type: %s", str)
	}
}

// LidarJob processes the point cloud of a single tile.
type LidarJob struct {
	TileID  string `json:"tile_id"`
	TileURL string `json:"tile_url"`
}

// RenderJob renders the map for a tile given its already processed neighbors.
type RenderJob struct {
	TileID string `json:"tile_id"`
	// The misspelled key is the one the server actually sends.
	NeighboringTileIDs []string `json:"neigbhoring_tiles_ids"`
}

// PyramidJob builds one tile of the display pyramid.
type PyramidJob struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
	// BaseZoomLevelTileID is set when the coordinate is at the base zoom
	// level and the tile must be derived from a rendered map tile.
	BaseZoomLevelTileID *string `json:"base_zoom_level_tile_id"`
	AreaID              string  `json:"area_id"`
}

// Job is the decoded form of a next-job response. Exactly one of the
// payload fields matching Type is non-nil; a NoJobLeft job has none.
type Job struct {
	Type    JobType
	Lidar   *LidarJob
	Render  *RenderJob
	Pyramid *PyramidJob
}

// jobEnvelope mirrors the externally tagged encoding used by the server:
// {"type": "...", "data": {...}}.
type jobEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// UnmarshalJSON implements json.Unmarshaler for Job
func (j *Job) UnmarshalJSON(data []byte) error {
	var envelope jobEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("invalid job envelope: %w", err)
	}

	jobType, err := ParseJobType(envelope.Type)
	if err != nil {
		return err
	}

	*j = Job{Type: jobType}

	switch jobType {
	case JobTypeLidar:
		j.Lidar = &LidarJob{}
		err = json.Unmarshal(envelope.Data, j.Lidar)
	case JobTypeRender:
		j.Render = &RenderJob{}
		err = json.Unmarshal(envelope.Data, j.Render)
	case JobTypePyramid:
		j.Pyramid = &PyramidJob{}
		err = json.Unmarshal(envelope.Data, j.Pyramid)
	case JobTypeNoJobLeft:
		// No payload.
	}
	if err != nil {
		return fmt.Errorf("invalid %s job payload: %w", jobType, err)
	}

	return nil
}

// MarshalJSON implements json.Marshaler for Job
func (j Job) MarshalJSON() ([]byte, error) {
	envelope := struct {
		Type string      `json:"type"`
		Data interface{} `json:"data,omitempty"`
	}{Type: j.Type.String()}

	switch j.Type {
	case JobTypeLidar:
		envelope.Data = j.Lidar
	case JobTypeRender:
		envelope.Data = j.Render
	case JobTypePyramid:
		envelope.Data = j.Pyramid
	case JobTypeNoJobLeft:
	default:
		return nil, fmt.Errorf("invalid job type: %s", j.Type)
	}

	return json.Marshal(envelope)
}
