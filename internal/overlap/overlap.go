// Package overlap decides which reference features a parcel overlaps, using
// the matching strategy attached to each layer definition.
package overlap

import (
	"log/slog"

	"github.com/paulmach/orb"

	"github.com/ilemi-bj/foncier-geo/internal/core/model"
	"github.com/ilemi-bj/foncier-geo/internal/core/observability"
	"github.com/ilemi-bj/foncier-geo/internal/reproject"
)

// Engine matches a parcel against reference layers by each layer's strategy.
type Engine struct {
	geo *reproject.Reprojector
	log *slog.Logger
}

// New returns an Engine. geo converts the parcel when a layer declares a
// geographic CRS; it may be nil when every layer shares the parcel's CRS.
func New(geo *reproject.Reprojector, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{geo: geo, log: log}
}

// Match returns one OverlapMatch per feature of data that satisfies the
// layer's strategy, in dataset order. Source geometry is not transformed.
func (e *Engine) Match(terrain orb.Polygon, def model.LayerDefinition, data model.LayerData) []model.OverlapMatch {
	if len(terrain) == 0 || len(data.Features) == 0 {
		return nil
	}

	subject := terrain
	if data.CRS.IsGeographic() && e.geo != nil {
		converted, ok := e.geo.Polygon(terrain)
		if !ok {
			e.log.Warn("parcel not convertible to layer crs, layer skipped",
				"layer", def.ID, "crs", data.CRS.Name())
			return nil
		}
		subject = converted
	}
	bound := subject.Bound()

	var out []model.OverlapMatch
	for _, f := range data.Features {
		if !matches(def.Strategy, subject, bound, f) {
			continue
		}
		out = append(out, model.OverlapMatch{
			SourceLayerID: def.ID,
			FeatureID:     featureID(f),
			Properties:    f.Properties,
			Geometry:      f.Geometry,
			CRS:           data.CRS,
		})
	}
	observability.AddLayerMatches(def.ID, len(out))
	return out
}

// MatchAll runs Match for every definition against the data loaded for it.
// defs and data are parallel slices.
func (e *Engine) MatchAll(terrain orb.Polygon, defs []model.LayerDefinition, data []model.LayerData) []model.OverlapMatch {
	out := []model.OverlapMatch{}
	for i, def := range defs {
		if i >= len(data) {
			break
		}
		out = append(out, e.Match(terrain, def, data[i])...)
	}
	return out
}

func matches(s model.MatchStrategy, subject orb.Polygon, bound orb.Bound, f model.ReferenceFeature) bool {
	switch s {
	case model.SouthOfBoundingBox:
		// public-domain buffers: any parcel south of the feature envelope is
		// considered inside the buffer zone
		return SouthOf(bound, f.Bound)
	default:
		return Intersects(subject, f.Geometry)
	}
}

func featureID(f model.ReferenceFeature) model.FeatureID {
	if id := model.FeatureIDOf(f.Properties); !id.IsZero() {
		return id
	}
	switch v := f.ID.(type) {
	case string:
		return model.FeatureID{Text: v}
	case float64:
		return model.FeatureID{Number: v, Numeric: true}
	}
	return model.FeatureID{}
}
