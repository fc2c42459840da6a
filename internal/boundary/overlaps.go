package boundary

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/ilemi-bj/foncier-geo/internal/core/model"
	"github.com/ilemi-bj/foncier-geo/internal/layers"
	"github.com/ilemi-bj/foncier-geo/internal/parcel"
)

type wireMatch struct {
	SourceLayerID string           `json:"sourceLayerId"`
	Document      string           `json:"document"`
	FileName      string           `json:"fileName"`
	FeatureID     json.RawMessage  `json:"featureId"`
	Properties    model.Properties `json:"properties"`
	Feature       json.RawMessage  `json:"feature"`
	SourceFeature json.RawMessage  `json:"sourceFeature"`
	Geometry      json.RawMessage  `json:"geometry"`
	Coordinates   json.RawMessage  `json:"coordinates"`
	CRS           *model.CRS       `json:"crs"`
}

// DecodeOverlaps reads a bare match array or {"overlaps": [...],
// "yesNoData": {...}}. A missing or null "overlaps" member returns
// (nil, nil): the caller supplied no analysis at all, which is different
// from an empty list.
func DecodeOverlaps(b []byte) (*model.OverlapResult, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || isNull(b) {
		return nil, nil
	}
	switch b[0] {
	case '[':
		matches, err := decodeMatches(b)
		if err != nil {
			return nil, err
		}
		return &model.OverlapResult{Overlaps: matches}, nil
	case '{':
		var env struct {
			Overlaps json.RawMessage   `json:"overlaps"`
			YesNo    map[string]string `json:"yesNoData"`
		}
		if err := json.Unmarshal(b, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if len(env.Overlaps) == 0 || isNull(env.Overlaps) {
			return nil, nil
		}
		matches, err := decodeMatches(env.Overlaps)
		if err != nil {
			return nil, err
		}
		return &model.OverlapResult{Overlaps: matches, YesNo: env.YesNo}, nil
	}
	return nil, fmt.Errorf("%w: overlaps must be an array or object", ErrMalformed)
}

func decodeMatches(b []byte) ([]model.OverlapMatch, error) {
	var wire []wireMatch
	if err := json.Unmarshal(b, &wire); err != nil {
		return nil, fmt.Errorf("%w: overlaps: %v", ErrMalformed, err)
	}
	out := make([]model.OverlapMatch, 0, len(wire))
	for _, w := range wire {
		out = append(out, w.toModel())
	}
	return out, nil
}

func (w wireMatch) toModel() model.OverlapMatch {
	m := model.OverlapMatch{
		SourceLayerID: resolveLayer(w.SourceLayerID, w.Document, w.FileName),
		Properties:    w.Properties,
		CRS:           w.CRS,
	}

	var featureProps model.Properties
	for _, raw := range []json.RawMessage{w.Feature, w.SourceFeature} {
		if len(raw) == 0 || isNull(raw) {
			continue
		}
		f, err := geojson.UnmarshalFeature(raw)
		if err != nil || f.Geometry == nil || !polygonal(f.Geometry) {
			continue
		}
		m.Geometry = f.Geometry
		featureProps = model.Properties(f.Properties)
		break
	}
	if m.Geometry == nil && len(w.Geometry) > 0 && !isNull(w.Geometry) {
		if g, err := geojson.UnmarshalGeometry(w.Geometry); err == nil && polygonal(g.Geometry()) {
			m.Geometry = g.Geometry()
		}
	}
	if m.Geometry == nil && len(w.Coordinates) > 0 {
		m.Geometry = geometryFromCoordinates(w.Coordinates)
	}

	if len(m.Properties) == 0 && len(featureProps) > 0 {
		m.Properties = featureProps
	}
	if len(w.FeatureID) > 0 {
		_ = m.FeatureID.UnmarshalJSON(w.FeatureID)
	}
	if m.FeatureID.IsZero() {
		m.FeatureID = model.FeatureIDOf(m.Properties)
	}
	return m
}

// resolveLayer prefers an exact registry id, then the document name, then
// the dataset file name.
func resolveLayer(sourceLayerID, document, fileName string) string {
	if _, ok := layers.ByID(sourceLayerID); ok {
		return sourceLayerID
	}
	for _, name := range []string{sourceLayerID, document, fileName} {
		if id, ok := layers.ResolveDocument(name); ok {
			return id
		}
	}
	for _, name := range []string{sourceLayerID, document, fileName} {
		if name != "" {
			return name
		}
	}
	return ""
}

func polygonal(g orb.Geometry) bool {
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return true
	}
	return false
}

// geometryFromCoordinates infers a Polygon or MultiPolygon from bare nested
// coordinate arrays by nesting depth.
func geometryFromCoordinates(raw json.RawMessage) orb.Geometry {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	switch depth(v) {
	case 4:
		var mp orb.MultiPolygon
		for _, p := range v.([]any) {
			if poly := polygonFrom(p); len(poly) > 0 {
				mp = append(mp, poly)
			}
		}
		if len(mp) > 0 {
			return mp
		}
	case 3:
		if poly := polygonFrom(v); len(poly) > 0 {
			return poly
		}
	case 2:
		if ring := ringFrom(v); len(ring) > 0 {
			return orb.Polygon{ring}
		}
	}
	return nil
}

func depth(v any) int {
	arr, ok := v.([]any)
	if !ok {
		return 0
	}
	if len(arr) == 0 {
		return 1
	}
	return 1 + depth(arr[0])
}

func polygonFrom(v any) orb.Polygon {
	arr, _ := v.([]any)
	var poly orb.Polygon
	for _, r := range arr {
		if ring := ringFrom(r); len(ring) > 0 {
			poly = append(poly, ring)
		}
	}
	return poly
}

func ringFrom(v any) orb.Ring {
	arr, _ := v.([]any)
	ring := make(orb.Ring, 0, len(arr))
	for _, p := range arr {
		if pt, ok := pointValue(p); ok {
			ring = append(ring, pt)
		}
	}
	return ring
}

func pointValue(v any) (orb.Point, bool) {
	pair, ok := v.([]any)
	if !ok || len(pair) < 2 {
		return orb.Point{}, false
	}
	x, okx := numberValue(pair[0])
	y, oky := numberValue(pair[1])
	return orb.Point{x, y}, okx && oky
}

func numberValue(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		return parcel.ParseCoordinate(t)
	}
	return 0, false
}
