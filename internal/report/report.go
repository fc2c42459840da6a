// Package report assembles the parcel report from a flat list of overlap
// matches: terrain area, one section per registry layer and the overall
// classification.
package report

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"

	"github.com/ilemi-bj/foncier-geo/internal/core/model"
	"github.com/ilemi-bj/foncier-geo/internal/reproject"
)

var ErrMissingAnalysisData = errors.New("missing analysis data: overlap results are required to build a report")

const squareMetresPerHectare = 10000

// Generator turns overlap matches into a per-layer parcel report.
type Generator struct {
	defs     []model.LayerDefinition
	geo      *reproject.Reprojector
	identity *reproject.Reprojector
}

// New returns a Generator emitting one layer section per definition, in
// order. geo converts source coordinates to WGS84; nil means UTM zone 31N.
func New(defs []model.LayerDefinition, geo *reproject.Reprojector) *Generator {
	if geo == nil {
		geo = reproject.MustNew(reproject.DefaultSourceCRS)
	}
	return &Generator{
		defs:     defs,
		geo:      geo,
		identity: reproject.MustNew("EPSG:4326"),
	}
}

// Generate builds the report for one parcel. data == nil means the overlap
// analysis never ran and is rejected; an empty match list is valid.
func (g *Generator) Generate(terrain orb.Ring, data *model.OverlapResult) (*model.ParcelReport, error) {
	if data == nil {
		return nil, ErrMissingAnalysisData
	}

	rep := &model.ParcelReport{Layers: make([]model.LayerReport, 0, len(g.defs))}
	ring := g.geo.Ring(terrain)
	if len(ring) >= 4 {
		rep.Geographic = true
		rep.Summary.TotalAreaHectares = math.Abs(geo.Area(orb.Polygon{ring})) / squareMetresPerHectare
	} else {
		ring = rawRing(terrain)
		rep.Summary.TotalAreaHectares = math.Abs(planar.Area(orb.Polygon{ring})) / squareMetresPerHectare
	}
	rep.TerrainCoordinates = []orb.Ring{ring}

	byLayer := make(map[string][]model.OverlapMatch, len(g.defs))
	for _, m := range data.Overlaps {
		byLayer[m.SourceLayerID] = append(byLayer[m.SourceLayerID], m)
	}

	for _, def := range g.defs {
		lr := g.layerReport(def, byLayer[def.ID])
		if lr.Intersects {
			rep.Summary.IntersectingLayerCount++
		}
		rep.Layers = append(rep.Layers, lr)
	}
	rep.Summary.OverallStatus = OverallStatus(rep.Layers)
	return rep, nil
}

func (g *Generator) layerReport(def model.LayerDefinition, matches []model.OverlapMatch) model.LayerReport {
	lr := model.LayerReport{
		ID:          def.ID,
		Name:        def.DisplayName,
		Color:       def.Color,
		Coordinates: []orb.Ring{},
	}
	if len(matches) == 0 {
		lr.Status = NoConstraintStatus
		lr.Description = NoConstraintDescription
		return lr
	}

	lr.Intersects = true
	lr.MatchedFeatures = make([]model.MatchedFeature, 0, len(matches))
	for _, m := range matches {
		props := m.Properties
		if props == nil {
			props = model.Properties{}
		}
		lr.MatchedFeatures = append(lr.MatchedFeatures, model.MatchedFeature{
			LayerID:     def.ID,
			FeatureID:   m.FeatureID,
			Properties:  props,
			Coordinates: g.rings(m),
			CRS:         m.CRS,
		})
	}

	// the first match drives the displayed geometry unless it has none
	lr.Coordinates = lr.MatchedFeatures[0].Coordinates
	if len(lr.Coordinates) == 0 {
		for _, mf := range lr.MatchedFeatures[1:] {
			if len(mf.Coordinates) > 0 {
				lr.Coordinates = mf.Coordinates
				break
			}
		}
	}
	lr.CRS = matches[0].CRS
	lr.Status, lr.Description = describe(def.ID, matches[0].Properties)
	return lr
}

// rings converts a match geometry for display. Geometry already declared as
// WGS84 is only validated.
func (g *Generator) rings(m model.OverlapMatch) []orb.Ring {
	if m.Geometry == nil {
		return []orb.Ring{}
	}
	if m.CRS.IsGeographic() {
		return g.identity.Geometry(m.Geometry)
	}
	return g.geo.Geometry(m.Geometry)
}

// rawRing is the non-geographic fallback: finite source coordinates,
// closed, otherwise untouched.
func rawRing(terrain orb.Ring) orb.Ring {
	out := make(orb.Ring, 0, len(terrain)+1)
	for _, p := range terrain {
		if isFinite(p[0]) && isFinite(p[1]) {
			out = append(out, p)
		}
	}
	return reproject.Close(out)
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
