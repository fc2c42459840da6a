package report

import (
	"github.com/ilemi-bj/foncier-geo/internal/core/model"
	"github.com/ilemi-bj/foncier-geo/internal/layers"
)

const (
	NoConstraintStatus      = "Aucune contrainte"
	NoConstraintDescription = "Aucune contrainte détectée pour cette couche selon l'analyse fournie"

	defaultMatchStatus = "Intersection détectée"
)

type layerText struct {
	status   string
	fallback string
}

var layerTexts = map[string]layerText{
	layers.AIF: {
		status:   "Association d'intérêts fonciers",
		fallback: "Couverture AIF: périmètre souvent vaste, peut contenir plusieurs villages. Si votre parcelle est incluse dans un Titre Foncier, elle doit faire l'objet de morcellement pour obtenir un TF distinct.",
	},
	layers.AirProteges: {
		status:   "Zone protégée",
		fallback: "Aire protégée *: données à considérer avec prudence — certaines limites peuvent être imprécises dans nos sources.",
	},
	layers.DPL: {
		status:   "Domaine public lagunaire",
		fallback: "DPL: périmètre autour des plans d'eau, généralement non constructible.",
	},
	layers.DPM: {
		status:   "Domaine public maritime",
		fallback: "DPM: périmètre maritime/zone côtière, généralement non constructible.",
	},
	layers.TFDemembres: {
		status:   "Titre foncier démembré",
		fallback: "Titre foncier démembré: souvent en zone lotie ; champ 'num_tf' contient le numéro du TF.",
	},
	layers.TitreReconstitue: {
		status:   "Titre foncier reconstitué",
		fallback: "Titre reconstitué: similaire aux TF démembrés mais souvent sur de grandes superficies.",
	},
	layers.TFEnCours: {
		status:   "TF en cours",
		fallback: "TF en cours: parcelles en cours de morcellement ou confirmation de droits.",
	},
	layers.EnregistrementIndividuel: {
		status:   "Enregistrement individuel",
		fallback: "Parcelles enregistrées au cadastre (enregistrement individuel).",
	},
	layers.TFEtat: {
		status:   "Titre foncier de l'État",
		fallback: "Titres fonciers de l'État: échantillon de TF appartenant à l'État.",
	},
	layers.Litige: {
		status:   "Zone litigieuse",
		fallback: "Zone en litige devant les juridictions.",
	},
	layers.Restriction: {
		status:   "Zone restreinte",
		fallback: "Restriction: certaines entités correspondent à des ZDUP ou PAG; consultez le champ 'type' et 'désignation' pour plus de détails.",
	},
}

// describe builds the status and description of an intersecting layer from
// the properties of its first match.
func describe(layerID string, props model.Properties) (status, description string) {
	if typ, ok := props.Type(); layerID == layers.Restriction && ok {
		description = "Type: " + typ
		if d, ok := props.Designation(); ok {
			description += " - " + d
		}
	} else if nom, ok := props.Nom(); ok {
		description = nom
	} else if name, ok := props.Name(); ok {
		description = name
	}

	if num, ok := props.NumTF(); ok && layers.IsTitleDeed(layerID) {
		if description != "" {
			description = "N° TF: " + num + " - " + description
		} else {
			description = "N° TF: " + num
		}
	}

	text, known := layerTexts[layerID]
	if !known {
		return defaultMatchStatus, description
	}
	if description == "" {
		description = text.fallback
	}
	return text.status, description
}

// OverallStatus applies the fixed precedence
// Litigieux > Restreint > Domaine Public > Contraintes > Libre.
func OverallStatus(reports []model.LayerReport) string {
	var hit, restricted, public bool
	for _, l := range reports {
		if !l.Intersects {
			continue
		}
		hit = true
		switch {
		case l.ID == layers.Litige:
			return model.StatusLitigieux
		case l.ID == layers.Restriction:
			restricted = true
		case layers.IsPublicDomain(l.ID):
			public = true
		}
	}
	switch {
	case restricted:
		return model.StatusRestreint
	case public:
		return model.StatusDomainePublic
	case hit:
		return model.StatusContraintes
	}
	return model.StatusLibre
}
