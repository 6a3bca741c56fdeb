package immeuble

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound            = errors.New("immeuble introuvable")
	ErrAppartementNotFound = errors.New("appartement introuvable")
)

// Types d'immeuble acceptés.
const (
	TypeHabitation = "habitation"
	TypeCommercial = "commercial"
	TypeMixte      = "mixte"
)

// Statuts d'appartement.
const (
	StatutOccupe = "occupe"
	StatutLibre  = "libre"
)

// Proprietaire est l'instantané du propriétaire courant.
type Proprietaire struct {
	Nom       string    `json:"nom"`
	Contact   string    `json:"contact"`
	DateDebut time.Time `json:"date_debut"`
}

// ProprietaireHistorique est une entrée d'historique de propriété.
type ProprietaireHistorique struct {
	ID        uuid.UUID  `json:"id"`
	Nom       string     `json:"nom"`
	Contact   string     `json:"contact"`
	DateDebut time.Time  `json:"date_debut"`
	DateFin   *time.Time `json:"date_fin,omitempty"`
}

// Immeuble représente un immeuble géré.
type Immeuble struct {
	ID                 uuid.UUID    `json:"id"`
	Nom                string       `json:"nom"`
	Pays               string       `json:"pays"`
	Ville              string       `json:"ville"`
	Quartier           string       `json:"quartier"`
	Type               string       `json:"type"`
	NombreAppartements int          `json:"nombre_appartements"`
	Proprietaire       Proprietaire `json:"proprietaire"`
	CreeLe             time.Time    `json:"cree_le"`
	MajLe              time.Time    `json:"maj_le"`
}

// LocataireActuel est l'instantané dénormalisé du locataire occupant.
type LocataireActuel struct {
	LocataireID uuid.UUID `json:"locataire_id"`
	Nom         string    `json:"nom"`
	Prenom      string    `json:"prenom"`
	Telephone   string    `json:"telephone"`
	Email       *string   `json:"email,omitempty"`
	DateEntree  time.Time `json:"date_entree"`
}

// Appartement est une unité rattachée à un immeuble. Invariant: statut
// vaut occupe exactement quand LocataireActuel est non nul.
type Appartement struct {
	ID              uuid.UUID        `json:"id"`
	ImmeubleID      uuid.UUID        `json:"immeuble_id"`
	Numero          string           `json:"numero"`
	Statut          string           `json:"statut"`
	LocataireActuel *LocataireActuel `json:"locataire_actuel,omitempty"`
	CreeLe          time.Time        `json:"cree_le"`
	MajLe           time.Time        `json:"maj_le"`
}

// HistoriqueLocataire est une entrée d'historique d'occupation, figée au
// moment où le locataire quitte la position "actuel".
type HistoriqueLocataire struct {
	ID            uuid.UUID `json:"id"`
	AppartementID uuid.UUID `json:"appartement_id"`
	LocataireID   uuid.UUID `json:"locataire_id"`
	Nom           string    `json:"nom"`
	Prenom        string    `json:"prenom"`
	Telephone     string    `json:"telephone"`
	Email         *string   `json:"email,omitempty"`
	DateEntree    time.Time `json:"date_entree"`
	DateSortie    time.Time `json:"date_sortie"`
}

// CreateInput contient les champs de création d'un immeuble.
type CreateInput struct {
	Nom                string
	Pays               string
	Ville              string
	Quartier           string
	Type               string
	NombreAppartements int
	Proprietaire       Proprietaire
}

// UpdateInput contient les champs modifiables d'un immeuble.
type UpdateInput struct {
	Nom      string
	Pays     string
	Ville    string
	Quartier string
	Type     string
}

// NormalizeType replie le type sur une valeur supportée.
func NormalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	switch t {
	case TypeHabitation, TypeCommercial, TypeMixte:
		return t
	default:
		return ""
	}
}
