// Package invalidation defines the layer-change event consumed to keep the
// layer store and the report cache in step with the reference datasets.
package invalidation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Event announces that a reference layer's dataset file changed. Seq is a
// per-layer monotonic sequence used to drop redelivered events; zero
// disables deduplication. The changed area is given as a WGS84 bbox or a
// GeoJSON geometry; when both are absent the whole layer is considered
// changed.
type Event struct {
	Version  int             `json:"version"`
	Op       string          `json:"op"`
	Layer    string          `json:"layer"`
	TS       time.Time       `json:"ts"`
	Seq      uint64          `json:"seq,omitempty"`
	Source   string          `json:"source,omitempty"`
	BBox     *BBox           `json:"bbox,omitempty"`
	Geometry json.RawMessage `json:"geometry,omitempty"`
}

type BBox struct {
	X1   float64 `json:"x1"`
	Y1   float64 `json:"y1"`
	X2   float64 `json:"x2"`
	Y2   float64 `json:"y2"`
	SRID string  `json:"srid"`
}

func (b BBox) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.X1, b.Y1}, Max: orb.Point{b.X2, b.Y2}}
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case "insert", "update", "delete", "reload":
	default:
		return fmt.Errorf("op must be insert|update|delete|reload")
	}
	if strings.TrimSpace(e.Layer) == "" {
		return fmt.Errorf("layer is required")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	hasBBox := e.BBox != nil
	hasGeom := len(e.Geometry) > 0
	if hasBBox && hasGeom {
		return fmt.Errorf("at most one of bbox or geometry is allowed")
	}
	if hasBBox {
		bb := *e.BBox
		if bb.SRID != "EPSG:4326" {
			return fmt.Errorf("bbox.srid must be EPSG:4326")
		}
		if !(bb.X1 >= -180 && bb.X1 <= 180 && bb.X2 >= -180 && bb.X2 <= 180) {
			return fmt.Errorf("bbox longitude out of range")
		}
		if !(bb.Y1 >= -90 && bb.Y1 <= 90 && bb.Y2 >= -90 && bb.Y2 <= 90) {
			return fmt.Errorf("bbox latitude out of range")
		}
		if !(bb.X2 > bb.X1 && bb.Y2 > bb.Y1) {
			return fmt.Errorf("bbox must satisfy x2>x1 and y2>y1")
		}
	}
	if hasGeom {
		if _, err := e.geometryBound(); err != nil {
			return err
		}
	}
	return nil
}

// Area returns the WGS84 bound of the changed area. ok is false when the
// event covers the whole layer.
func (e Event) Area() (orb.Bound, bool) {
	if e.BBox != nil {
		return e.BBox.Bound(), true
	}
	if len(e.Geometry) > 0 {
		b, err := e.geometryBound()
		return b, err == nil
	}
	return orb.Bound{}, false
}

func (e Event) geometryBound() (orb.Bound, error) {
	g, err := geojson.UnmarshalGeometry(e.Geometry)
	if err != nil {
		return orb.Bound{}, fmt.Errorf("geometry parse: %w", err)
	}
	switch g.Geometry().(type) {
	case orb.Polygon, orb.MultiPolygon:
	default:
		return orb.Bound{}, fmt.Errorf("geometry.type must be Polygon or MultiPolygon")
	}
	return g.Geometry().Bound(), nil
}
