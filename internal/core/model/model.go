// Package model defines core domain types shared across the service.
package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// IncomingPoint is a raw boundary vertex as returned by coordinate extraction.
// X and Y are numeric strings in the source projected CRS.
type IncomingPoint struct {
	Bornes string `json:"bornes,omitempty"`
	X      string `json:"x"`
	Y      string `json:"y"`
}

// MatchStrategy selects how a layer's features are tested against a parcel.
type MatchStrategy int

const (
	Intersects MatchStrategy = iota
	SouthOfBoundingBox
)

func (s MatchStrategy) String() string {
	switch s {
	case Intersects:
		return "intersects"
	case SouthOfBoundingBox:
		return "south_of_bbox"
	default:
		return "unknown"
	}
}

func (s MatchStrategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// LayerDefinition is one static registry entry.
type LayerDefinition struct {
	ID          string        `json:"id"`
	DisplayName string        `json:"name"`
	Color       string        `json:"color"`
	SourceFile  string        `json:"file"`
	Strategy    MatchStrategy `json:"strategy"`
}

// CRS is the legacy GeoJSON "crs" member, e.g.
// {"type":"name","properties":{"name":"urn:ogc:def:crs:EPSG::32631"}}.
type CRS struct {
	Type       string         `json:"type,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

func (c *CRS) Name() string {
	if c == nil || c.Properties == nil {
		return ""
	}
	if s, ok := c.Properties["name"].(string); ok {
		return s
	}
	return ""
}

// EPSG returns the trailing EPSG code of the descriptor name, or 0.
func (c *CRS) EPSG() int {
	name := strings.ToUpper(c.Name())
	i := strings.LastIndex(name, "EPSG")
	if i < 0 {
		return 0
	}
	rest := name[i+len("EPSG"):]
	code, err := strconv.Atoi(rest[strings.LastIndex(rest, ":")+1:])
	if err != nil {
		return 0
	}
	return code
}

// IsGeographic reports whether the descriptor names WGS84 lon/lat.
func (c *CRS) IsGeographic() bool {
	if c == nil {
		return false
	}
	if c.EPSG() == 4326 {
		return true
	}
	return strings.HasSuffix(strings.ToUpper(c.Name()), "CRS84")
}

// Properties is the free-form property bag of a reference feature.
type Properties map[string]any

// Text returns the property formatted as text; empty, null and
// non-scalar values report ok=false.
func (p Properties) Text(key string) (string, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", false
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		s = strconv.Itoa(t)
	case int64:
		s = strconv.FormatInt(t, 10)
	case json.Number:
		s = t.String()
	case bool:
		if !t {
			return "", false
		}
		s = "true"
	default:
		return "", false
	}
	if strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

func (p Properties) NumTF() (string, bool)       { return p.Text("num_tf") }
func (p Properties) Type() (string, bool)        { return p.Text("type") }
func (p Properties) Designation() (string, bool) { return p.Text("désignation") }
func (p Properties) Nom() (string, bool)         { return p.Text("nom") }
func (p Properties) Name() (string, bool)        { return p.Text("name") }

// FeatureID is the identifier of a matched feature: num_tf when present,
// otherwise id. It is either text or a number on the wire.
type FeatureID struct {
	Text    string
	Number  float64
	Numeric bool
}

// FeatureIDOf picks num_tf, then id, from the property bag.
func FeatureIDOf(p Properties) FeatureID {
	for _, key := range []string{"num_tf", "id"} {
		switch v := p[key].(type) {
		case string:
			if v != "" {
				return FeatureID{Text: v}
			}
		case float64:
			if v != 0 {
				return FeatureID{Number: v, Numeric: true}
			}
		case int:
			if v != 0 {
				return FeatureID{Number: float64(v), Numeric: true}
			}
		}
	}
	return FeatureID{}
}

func (id FeatureID) IsZero() bool { return !id.Numeric && id.Text == "" }

func (id FeatureID) String() string {
	if id.Numeric {
		return strconv.FormatFloat(id.Number, 'f', -1, 64)
	}
	return id.Text
}

func (id FeatureID) MarshalJSON() ([]byte, error) {
	switch {
	case id.Numeric:
		return json.Marshal(id.Number)
	case id.Text != "":
		return json.Marshal(id.Text)
	default:
		return []byte("null"), nil
	}
}

func (id *FeatureID) UnmarshalJSON(b []byte) error {
	*id = FeatureID{}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
	case string:
		id.Text = t
	case float64:
		id.Number, id.Numeric = t, true
	default:
		return fmt.Errorf("feature id: unsupported json type %T", v)
	}
	return nil
}

// ReferenceFeature is one polygonal feature of a reference layer. Geometry
// is always an orb.Polygon or orb.MultiPolygon.
type ReferenceFeature struct {
	ID         any
	Geometry   orb.Geometry
	Properties Properties
	Bound      orb.Bound
}

// LayerData is the loaded content of one layer's dataset file.
type LayerData struct {
	Features []ReferenceFeature
	CRS      *CRS
}

// OverlapMatch is one reference feature that satisfied its layer's
// matching strategy. Geometry carries the untransformed source coordinates.
type OverlapMatch struct {
	SourceLayerID string
	FeatureID     FeatureID
	Properties    Properties
	Geometry      orb.Geometry
	CRS           *CRS
}

type overlapMatchJSON struct {
	SourceLayerID string            `json:"sourceLayerId"`
	Document      string            `json:"document,omitempty"`
	FeatureID     FeatureID         `json:"featureId"`
	Properties    Properties        `json:"properties"`
	Geometry      *geojson.Geometry `json:"geometry,omitempty"`
	CRS           *CRS              `json:"crs,omitempty"`
}

func (m OverlapMatch) MarshalJSON() ([]byte, error) {
	out := overlapMatchJSON{
		SourceLayerID: m.SourceLayerID,
		Document:      m.SourceLayerID,
		FeatureID:     m.FeatureID,
		Properties:    m.Properties,
		CRS:           m.CRS,
	}
	if out.Properties == nil {
		out.Properties = Properties{}
	}
	if m.Geometry != nil {
		out.Geometry = geojson.NewGeometry(m.Geometry)
	}
	return json.Marshal(out)
}

// Values of the per-layer yes/no table.
const (
	YesNoYes = "OUI"
	YesNoNo  = "NON"
)

// OverlapResult is the flat list of matches across all layers for one
// request. A nil *OverlapResult means no analysis was performed at all.
type OverlapResult struct {
	Overlaps []OverlapMatch    `json:"overlaps"`
	YesNo    map[string]string `json:"yesNoData,omitempty"`
}

const (
	StatusLitigieux     = "Litigieux"
	StatusRestreint     = "Restreint"
	StatusDomainePublic = "Domaine Public"
	StatusContraintes   = "Contraintes"
	StatusLibre         = "Libre"
)

// MatchedFeature is one reference feature listed under a LayerReport.
type MatchedFeature struct {
	LayerID     string     `json:"layerId"`
	FeatureID   FeatureID  `json:"featureId"`
	Properties  Properties `json:"properties"`
	Coordinates []orb.Ring `json:"coordinates"`
	CRS         *CRS       `json:"crs,omitempty"`
}

// LayerReport is the per-layer section of a ParcelReport. Coordinates are
// WGS84 rings and serialize as [] when empty.
type LayerReport struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Color           string           `json:"color"`
	Coordinates     []orb.Ring       `json:"coordinates"`
	Intersects      bool             `json:"intersects"`
	Description     string           `json:"description,omitempty"`
	Status          string           `json:"status,omitempty"`
	MatchedFeatures []MatchedFeature `json:"matchedFeatures,omitempty"`
	CRS             *CRS             `json:"crs,omitempty"`
}

// Summary holds the parcel-wide figures of a report.
type Summary struct {
	TotalAreaHectares      float64 `json:"totalAreaHectares"`
	IntersectingLayerCount int     `json:"intersectingLayerCount"`
	OverallStatus          string  `json:"overallStatus"`
}

// ParcelReport is the final artifact of one analysis. Geographic is false
// when the terrain ring could not be reprojected and raw source coordinates
// were used instead.
type ParcelReport struct {
	TerrainCoordinates []orb.Ring    `json:"terrainCoordinates"`
	Layers             []LayerReport `json:"layers"`
	Summary            Summary       `json:"summary"`
	Geographic         bool          `json:"geographic"`
}

// Analysis is the outcome of a full pipeline run: the report plus the
// per-layer OUI/NON flags keyed by layer id.
type Analysis struct {
	Report *ParcelReport     `json:"report"`
	YesNo  map[string]string `json:"yesNoData"`
}
