package boundary

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/ilemi-bj/foncier-geo/internal/core/model"
)

// ReportRequest is a report call carrying a precomputed overlap analysis.
// Analysis is nil when the caller sent none.
type ReportRequest struct {
	Terrain  []orb.Point
	Analysis *model.OverlapResult
}

// DecodeReportRequest reads {"terrainCoordinates": ring | [ring],
// "overlaps": [...] | "analysis": {...}}.
func DecodeReportRequest(b []byte) (ReportRequest, error) {
	var env struct {
		Terrain  json.RawMessage `json:"terrainCoordinates"`
		Overlaps json.RawMessage `json:"overlaps"`
		Analysis json.RawMessage `json:"analysis"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(b), &env); err != nil {
		return ReportRequest{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	terrain := terrainPoints(env.Terrain)
	if len(terrain) == 0 {
		return ReportRequest{}, ErrNoCoordinates
	}
	req := ReportRequest{Terrain: terrain}

	var err error
	switch {
	case len(env.Overlaps) > 0 && !isNull(env.Overlaps):
		req.Analysis, err = DecodeOverlaps(b)
	case len(env.Analysis) > 0:
		req.Analysis, err = DecodeOverlaps(env.Analysis)
	}
	if err != nil {
		return ReportRequest{}, err
	}
	return req, nil
}

// terrainPoints accepts a ring or a polygon whose first ring is used.
func terrainPoints(raw json.RawMessage) []orb.Point {
	if len(raw) == 0 || isNull(raw) {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	for depth(v) > 2 {
		arr := v.([]any)
		v = arr[0]
	}
	if depth(v) != 2 {
		return nil
	}
	return []orb.Point(ringFrom(v))
}
