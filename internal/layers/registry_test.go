package layers

import (
	"testing"

	"github.com/ilemi-bj/foncier-geo/internal/core/model"
)

func TestRegistry_UniqueIDsAndStrategies(t *testing.T) {
	all := All()
	if len(all) != 11 {
		t.Fatalf("registry size=%d want 11", len(all))
	}
	seen := map[string]bool{}
	for _, d := range all {
		if seen[d.ID] {
			t.Fatalf("duplicate id %s", d.ID)
		}
		seen[d.ID] = true
		want := model.Intersects
		if IsPublicDomain(d.ID) {
			want = model.SouthOfBoundingBox
		}
		if d.Strategy != want {
			t.Fatalf("%s strategy=%v want %v", d.ID, d.Strategy, want)
		}
	}
	if all[0].ID != AIF || all[len(all)-1].ID != Restriction {
		t.Fatalf("unexpected registry order: first=%s last=%s", all[0].ID, all[len(all)-1].ID)
	}
}

func TestAll_ReturnsCopy(t *testing.T) {
	a := All()
	a[0].ID = "mutated"
	if All()[0].ID != AIF {
		t.Fatalf("All must return a copy")
	}
}

func TestResolveDocument(t *testing.T) {
	cases := map[string]string{
		"litige":                            Litige,
		"litige.geojson":                    Litige,
		"data/tf_etat.geojson":              TFEtat,
		"enregistrement individuel.geojson": EnregistrementIndividuel,
		"Enregistrement Individuel":         EnregistrementIndividuel,
		`C:\gis\dpm.geojson`:                DPM,
	}
	for in, want := range cases {
		got, ok := ResolveDocument(in)
		if !ok || got != want {
			t.Fatalf("ResolveDocument(%q)=%q,%v want %q", in, got, ok, want)
		}
	}
	for _, in := range []string{"", "unknown.geojson", "."} {
		if got, ok := ResolveDocument(in); ok {
			t.Fatalf("ResolveDocument(%q)=%q, expected no match", in, got)
		}
	}
}

func TestIsTitleDeed(t *testing.T) {
	for _, id := range []string{TFDemembres, TitreReconstitue, TFEtat, TFEnCours} {
		if !IsTitleDeed(id) {
			t.Fatalf("%s should be a title-deed layer", id)
		}
	}
	if IsTitleDeed(EnregistrementIndividuel) || IsTitleDeed(AIF) {
		t.Fatalf("unexpected title-deed layer")
	}
}
