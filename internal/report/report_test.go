package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/paulmach/orb"

	"github.com/ilemi-bj/foncier-geo/internal/core/model"
	"github.com/ilemi-bj/foncier-geo/internal/layers"
	"github.com/ilemi-bj/foncier-geo/internal/reproject"
)

// one hectare in central Cotonou, UTM 31N
var terrain = orb.Ring{{432500, 704300}, {432600, 704300}, {432600, 704400}, {432500, 704400}, {432500, 704300}}

func newGen() *Generator {
	return New(layers.All(), reproject.MustNew(reproject.DefaultSourceCRS))
}

func match(layer string, props model.Properties) model.OverlapMatch {
	return model.OverlapMatch{
		SourceLayerID: layer,
		FeatureID:     model.FeatureIDOf(props),
		Properties:    props,
		Geometry:      orb.Polygon{{{432550, 704350}, {432700, 704350}, {432700, 704500}, {432550, 704350}}},
	}
}

func layerByID(t *testing.T, rep *model.ParcelReport, id string) model.LayerReport {
	t.Helper()
	for _, l := range rep.Layers {
		if l.ID == id {
			return l
		}
	}
	t.Fatalf("layer %s missing from report", id)
	return model.LayerReport{}
}

func TestGenerate_MissingAnalysisData(t *testing.T) {
	_, err := newGen().Generate(terrain, nil)
	if !errors.Is(err, ErrMissingAnalysisData) {
		t.Fatalf("err=%v want ErrMissingAnalysisData", err)
	}
}

func TestNew_NilReprojectorDefaultsToUTM31N(t *testing.T) {
	rep, err := New(layers.All(), nil).Generate(terrain, &model.OverlapResult{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !rep.Geographic || math.Abs(rep.Summary.TotalAreaHectares-1) > 0.02 {
		t.Fatalf("geographic=%v area=%v", rep.Geographic, rep.Summary.TotalAreaHectares)
	}
}

func TestGenerate_NoMatchesIsLibre(t *testing.T) {
	rep, err := newGen().Generate(terrain, &model.OverlapResult{Overlaps: []model.OverlapMatch{}})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if rep.Summary.OverallStatus != model.StatusLibre || rep.Summary.IntersectingLayerCount != 0 {
		t.Fatalf("summary=%+v", rep.Summary)
	}
	for _, l := range rep.Layers {
		if l.Intersects || l.Status != NoConstraintStatus || l.Description != NoConstraintDescription {
			t.Fatalf("layer %s=%+v", l.ID, l)
		}
		if l.Coordinates == nil || len(l.Coordinates) != 0 {
			t.Fatalf("layer %s coordinates must be empty, non-nil", l.ID)
		}
	}
	if !rep.Geographic {
		t.Fatalf("expected geographic report")
	}
	if math.Abs(rep.Summary.TotalAreaHectares-1) > 0.01 {
		t.Fatalf("area=%f ha want ~1", rep.Summary.TotalAreaHectares)
	}
}

func TestGenerate_LayersFollowRegistryOrder(t *testing.T) {
	res := &model.OverlapResult{Overlaps: []model.OverlapMatch{
		match(layers.Restriction, nil),
		match(layers.AIF, nil),
	}}
	rep, err := newGen().Generate(terrain, res)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	defs := layers.All()
	if len(rep.Layers) != len(defs) {
		t.Fatalf("layers=%d want %d", len(rep.Layers), len(defs))
	}
	count := 0
	for i, d := range defs {
		if rep.Layers[i].ID != d.ID || rep.Layers[i].Name != d.DisplayName || rep.Layers[i].Color != d.Color {
			t.Fatalf("layer %d=%s want %s", i, rep.Layers[i].ID, d.ID)
		}
		if rep.Layers[i].Intersects {
			count++
		}
	}
	if rep.Summary.IntersectingLayerCount != count || count != 2 {
		t.Fatalf("intersecting=%d counted=%d", rep.Summary.IntersectingLayerCount, count)
	}
}

func TestGenerate_OverallStatusPrecedence(t *testing.T) {
	cases := []struct {
		layers []string
		want   string
	}{
		{[]string{layers.Litige}, model.StatusLitigieux},
		{[]string{layers.AIF, layers.DPM, layers.Restriction, layers.Litige}, model.StatusLitigieux},
		{[]string{layers.DPL, layers.Restriction}, model.StatusRestreint},
		{[]string{layers.DPM, layers.TFEtat}, model.StatusDomainePublic},
		{[]string{layers.AirProteges}, model.StatusContraintes},
		{nil, model.StatusLibre},
	}
	for _, c := range cases {
		res := &model.OverlapResult{Overlaps: []model.OverlapMatch{}}
		for _, id := range c.layers {
			res.Overlaps = append(res.Overlaps, match(id, nil))
		}
		rep, err := newGen().Generate(terrain, res)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if rep.Summary.OverallStatus != c.want {
			t.Fatalf("%v: overall=%s want %s", c.layers, rep.Summary.OverallStatus, c.want)
		}
	}
}

func TestGenerate_DescriptionsFromProperties(t *testing.T) {
	res := &model.OverlapResult{Overlaps: []model.OverlapMatch{
		match(layers.Restriction, model.Properties{"type": "ZDUP", "désignation": "Zone portuaire"}),
		match(layers.TFEtat, model.Properties{"num_tf": "1234", "nom": "Domaine Akpakpa"}),
		match(layers.TFDemembres, model.Properties{"num_tf": 77.0}),
		match(layers.AIF, model.Properties{"name": "AIF Godomey"}),
		match(layers.Litige, model.Properties{}),
		match(layers.EnregistrementIndividuel, model.Properties{"num_tf": "999", "nom": "Parcelle"}),
	}}
	rep, err := newGen().Generate(terrain, res)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	cases := map[string][2]string{
		layers.Restriction:              {"Zone restreinte", "Type: ZDUP - Zone portuaire"},
		layers.TFEtat:                   {"Titre foncier de l'État", "N° TF: 1234 - Domaine Akpakpa"},
		layers.TFDemembres:              {"Titre foncier démembré", "N° TF: 77"},
		layers.AIF:                      {"Association d'intérêts fonciers", "AIF Godomey"},
		layers.Litige:                   {"Zone litigieuse", "Zone en litige devant les juridictions."},
		layers.EnregistrementIndividuel: {"Enregistrement individuel", "Parcelle"},
	}
	for id, want := range cases {
		l := layerByID(t, rep, id)
		if l.Status != want[0] || l.Description != want[1] {
			t.Fatalf("%s: status=%q description=%q want %q %q", id, l.Status, l.Description, want[0], want[1])
		}
	}
}

func TestGenerate_RestrictionWithoutTypeUsesNom(t *testing.T) {
	rep, err := newGen().Generate(terrain, &model.OverlapResult{Overlaps: []model.OverlapMatch{
		match(layers.Restriction, model.Properties{"désignation": "ignored", "nom": "PAG Cotonou"}),
	}})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if l := layerByID(t, rep, layers.Restriction); l.Description != "PAG Cotonou" {
		t.Fatalf("description=%q", l.Description)
	}
}

func TestGenerate_MatchedFeaturesAndGeometry(t *testing.T) {
	noGeom := match(layers.Litige, model.Properties{"id": "a"})
	noGeom.Geometry = nil
	res := &model.OverlapResult{Overlaps: []model.OverlapMatch{
		noGeom,
		match(layers.Litige, model.Properties{"id": "b"}),
	}}
	rep, err := newGen().Generate(terrain, res)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	l := layerByID(t, rep, layers.Litige)
	if len(l.MatchedFeatures) != 2 {
		t.Fatalf("matched=%d want 2", len(l.MatchedFeatures))
	}
	if l.MatchedFeatures[0].FeatureID.Text != "a" || l.MatchedFeatures[1].FeatureID.Text != "b" {
		t.Fatalf("matched ids=%+v", l.MatchedFeatures)
	}
	// first match has no geometry: the next one with rings is displayed
	if len(l.Coordinates) != 1 {
		t.Fatalf("coordinates=%v", l.Coordinates)
	}
	ring := l.Coordinates[0]
	if len(ring) < 4 || ring[0] != ring[len(ring)-1] {
		t.Fatalf("display ring not closed: %v", ring)
	}
	if ring[0][0] < 2 || ring[0][0] > 3 || ring[0][1] < 6 || ring[0][1] > 7 {
		t.Fatalf("display ring not in degrees: %v", ring)
	}
}

func TestGenerate_GeographicMatchPassesThrough(t *testing.T) {
	m := match(layers.AirProteges, nil)
	m.CRS = &model.CRS{Type: "name", Properties: map[string]any{"name": "EPSG:4326"}}
	m.Geometry = orb.Polygon{{{2.3, 6.3}, {2.5, 6.3}, {2.5, 6.5}, {2.3, 6.3}}}
	rep, err := newGen().Generate(terrain, &model.OverlapResult{Overlaps: []model.OverlapMatch{m}})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	l := layerByID(t, rep, layers.AirProteges)
	if len(l.Coordinates) != 1 || l.Coordinates[0][0] != (orb.Point{2.3, 6.3}) {
		t.Fatalf("coordinates=%v", l.Coordinates)
	}
	if l.CRS == nil || l.CRS.EPSG() != 4326 {
		t.Fatalf("layer crs=%+v", l.CRS)
	}
}

func TestGenerate_NonGeographicFallback(t *testing.T) {
	raw := orb.Ring{{0, 0}, {200, 0}, {200, 50}, {0, 50}, {0, 0}}
	gen := New(layers.All(), reproject.MustNew("EPSG:4326"))
	rep, err := gen.Generate(raw, &model.OverlapResult{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if rep.Geographic {
		t.Fatalf("expected non-geographic report")
	}
	if got := rep.TerrainCoordinates[0]; len(got) != 5 || got[1] != (orb.Point{200, 0}) {
		t.Fatalf("raw ring=%v", got)
	}
	if math.Abs(rep.Summary.TotalAreaHectares-1) > 1e-9 {
		t.Fatalf("planar area=%f want 1", rep.Summary.TotalAreaHectares)
	}
}

func TestGenerate_IdempotentJSON(t *testing.T) {
	res := &model.OverlapResult{Overlaps: []model.OverlapMatch{
		match(layers.TFEtat, model.Properties{"num_tf": "1", "z": 1.0, "a": "x"}),
		match(layers.DPL, model.Properties{"nom": "Lagune"}),
	}}
	gen := newGen()
	r1, err := gen.Generate(terrain, res)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	r2, err := gen.Generate(terrain, res)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b1, _ := json.Marshal(r1)
	b2, _ := json.Marshal(r2)
	if !bytes.Equal(b1, b2) {
		t.Fatalf("reports differ:\n%s\n%s", b1, b2)
	}
	if !strings.Contains(string(b1), `"coordinates":[]`) {
		t.Fatalf("empty layers must serialize coordinates as []: %s", b1)
	}
	if !strings.Contains(string(b1), `"terrainCoordinates":[[[`) {
		t.Fatalf("terrain must be a single-ring array: %s", b1)
	}
}
