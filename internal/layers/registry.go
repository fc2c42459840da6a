// Package layers holds the fixed registry of regulatory reference layers and
// the store that loads their datasets.
package layers

import (
	"path"
	"strings"

	"github.com/ilemi-bj/foncier-geo/internal/core/model"
)

const (
	AIF                      = "aif"
	AirProteges              = "air_proteges"
	DPL                      = "dpl"
	DPM                      = "dpm"
	TFDemembres              = "tf_demembres"
	TitreReconstitue         = "titre_reconstitue"
	TFEnCours                = "tf_en_cours"
	EnregistrementIndividuel = "enregistrement_individuel"
	TFEtat                   = "tf_etat"
	Litige                   = "litige"
	Restriction              = "restriction"
)

// registry order is the display order of every report.
var registry = []model.LayerDefinition{
	{ID: AIF, DisplayName: "AIF - Association d'Intérêts Fonciers", Color: "#ef4444", SourceFile: "aif.geojson"},
	{ID: AirProteges, DisplayName: "Aires Protégées", Color: "#10b981", SourceFile: "air_proteges.geojson"},
	{ID: DPL, DisplayName: "Domaine Public Lagunaire", Color: "#3b82f6", SourceFile: "dpl.geojson", Strategy: model.SouthOfBoundingBox},
	{ID: DPM, DisplayName: "Domaine Public Maritime", Color: "#6366f1", SourceFile: "dpm.geojson", Strategy: model.SouthOfBoundingBox},
	{ID: TFDemembres, DisplayName: "Titres Fonciers démembrés", Color: "#efb7c0", SourceFile: "tf_demembres.geojson"},
	{ID: TitreReconstitue, DisplayName: "Titres Fonciers reconstitués", Color: "#fca5a5", SourceFile: "titre_reconstitue.geojson"},
	{ID: TFEnCours, DisplayName: "Titres Fonciers en cours", Color: "#fb923c", SourceFile: "tf_en_cours.geojson"},
	{ID: EnregistrementIndividuel, DisplayName: "Enregistrements individuels", Color: "#60a5fa", SourceFile: "enregistrement individuel.geojson"},
	{ID: TFEtat, DisplayName: "Titres Fonciers de l'État", Color: "#94a3b8", SourceFile: "tf_etat.geojson"},
	{ID: Litige, DisplayName: "Zones Litigieuses", Color: "#f59e0b", SourceFile: "litige.geojson"},
	{ID: Restriction, DisplayName: "Zones de Restriction", Color: "#8b5cf6", SourceFile: "restriction.geojson"},
}

// All returns a copy of the registry in display order.
func All() []model.LayerDefinition {
	out := make([]model.LayerDefinition, len(registry))
	copy(out, registry)
	return out
}

// ByID looks up a definition by its exact id.
func ByID(id string) (model.LayerDefinition, bool) {
	for _, d := range registry {
		if d.ID == id {
			return d, true
		}
	}
	return model.LayerDefinition{}, false
}

// ResolveDocument maps a dataset file name or document name such as
// "enregistrement individuel.geojson" or "tf_etat" back to a layer id.
func ResolveDocument(name string) (string, bool) {
	base := strings.TrimSpace(path.Base(strings.ReplaceAll(name, "\\", "/")))
	base = strings.TrimSuffix(base, ".geojson")
	if base == "" || base == "." {
		return "", false
	}
	for _, d := range registry {
		if strings.EqualFold(base, d.ID) || strings.EqualFold(base, strings.TrimSuffix(d.SourceFile, ".geojson")) {
			return d.ID, true
		}
	}
	return "", false
}

// IsTitleDeed reports whether features of the layer carry a num_tf.
func IsTitleDeed(id string) bool {
	switch id {
	case TFDemembres, TitreReconstitue, TFEtat, TFEnCours:
		return true
	}
	return false
}

func IsPublicDomain(id string) bool { return id == DPL || id == DPM }
