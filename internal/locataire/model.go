package locataire

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/gestimmo/api/internal/immeuble"
)

var (
	ErrNotFound             = errors.New("locataire introuvable")
	ErrTelephoneDejaUtilise = errors.New("téléphone déjà utilisé par un autre locataire")
	ErrDejaLoge             = errors.New("locataire déjà affecté à un appartement")
	ErrSansLogement         = errors.New("locataire sans appartement")
)

// Locataire est la fiche maîtresse d'un locataire. L'appartement et la
// date d'entrée sont nuls quand le locataire est sans logement. Une
// date de sortie absente signifie que le locataire est toujours actif;
// elle est posée à la libération et effacée à la réaffectation.
type Locataire struct {
	ID            uuid.UUID  `json:"id"`
	Nom           string     `json:"nom"`
	Prenom        string     `json:"prenom"`
	Telephone     string     `json:"telephone"`
	Email         *string    `json:"email,omitempty"`
	AppartementID *uuid.UUID `json:"appartement_id,omitempty"`
	DateEntree    *time.Time `json:"date_entree,omitempty"`
	DateSortie    *time.Time `json:"date_sortie,omitempty"`
	DateFinBail   *time.Time `json:"date_fin_bail,omitempty"`
	CreePar       *uuid.UUID `json:"cree_par,omitempty"`
	CreeLe        time.Time  `json:"cree_le"`
	MajLe         time.Time  `json:"maj_le"`
}

// Fiche regroupe le locataire et son logement courant pour l'espace
// locataire.
type Fiche struct {
	Locataire   Locataire             `json:"locataire"`
	Appartement *immeuble.Appartement `json:"appartement,omitempty"`
	Immeuble    *immeuble.Immeuble    `json:"immeuble,omitempty"`
}

// CreateInput contient les champs de création. AppartementID déclenche
// l'affectation immédiate dans la même transaction.
type CreateInput struct {
	Nom           string
	Prenom        string
	Telephone     string
	Email         *string
	ImmeubleID    uuid.UUID
	AppartementID *uuid.UUID
	DateEntree    *time.Time
	DateFinBail   *time.Time
	CreePar       *uuid.UUID
}

// UpdateInput contient les champs modifiables sur place. La mise à jour
// se propage à l'instantané de l'appartement occupé.
type UpdateInput struct {
	Nom         string
	Prenom      string
	Telephone   string
	Email       *string
	DateFinBail *time.Time
}

// ArchiveDepuisSnapshot fige l'occupant courant d'un appartement en
// ligne d'historique. Retourne false si l'appartement est libre.
func ArchiveDepuisSnapshot(app *immeuble.Appartement, sortie time.Time) (immeuble.HistoriqueLocataire, bool) {
	occ := app.LocataireActuel
	if occ == nil {
		return immeuble.HistoriqueLocataire{}, false
	}
	return immeuble.HistoriqueLocataire{
		ID:            uuid.New(),
		AppartementID: app.ID,
		LocataireID:   occ.LocataireID,
		Nom:           occ.Nom,
		Prenom:        occ.Prenom,
		Telephone:     occ.Telephone,
		Email:         occ.Email,
		DateEntree:    occ.DateEntree,
		DateSortie:    sortie,
	}, true
}
