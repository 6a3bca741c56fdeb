package compta

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("écriture introuvable")
	ErrRapportNotFound = errors.New("rapport introuvable")
	ErrAnneeOuverte    = errors.New("l'année n'est pas close, rapport non générable")
)

// Catégories de dépenses usuelles. Le champ reste libre, ces valeurs
// guident seulement l'interface.
const (
	CategorieEntretien  = "entretien"
	CategorieReparation = "reparation"
	CategorieTaxe       = "taxe"
	CategorieSalaire    = "salaire"
	CategorieAutre      = "autre"
)

// Depense est une sortie d'argent rattachée à un immeuble. Montant en
// GNF.
type Depense struct {
	ID         uuid.UUID `json:"id"`
	ImmeubleID uuid.UUID `json:"immeuble_id"`
	Libelle    string    `json:"libelle"`
	Categorie  string    `json:"categorie"`
	Montant    int64     `json:"montant"`
	Date       time.Time `json:"date"`
	CreeParID  uuid.UUID `json:"cree_par_id"`
	CreeLe     time.Time `json:"cree_le"`
	MajLe      time.Time `json:"maj_le"`
}

// DepenseInput contient les champs d'une dépense.
type DepenseInput struct {
	Libelle   string
	Categorie string
	Montant   int64
	Date      time.Time
}

// Bilan agrège revenus approuvés et dépenses sur un intervalle de
// périodes.
type Bilan struct {
	ImmeubleID   uuid.UUID `json:"immeuble_id"`
	PeriodeDebut string    `json:"periode_debut"`
	PeriodeFin   string    `json:"periode_fin"`
	Revenus      int64     `json:"revenus"`
	Depenses     int64     `json:"depenses"`
	Solde        int64     `json:"solde"`
}

// LigneMensuelle est le détail d'un mois dans un rapport annuel.
type LigneMensuelle struct {
	Periode  string `json:"periode"`
	Revenus  int64  `json:"revenus"`
	Depenses int64  `json:"depenses"`
}

// StatutLocataire mesure la régularité d'un locataire sur l'année:
// mois occupés dans l'immeuble contre mois couverts par un reçu
// approuvé.
type StatutLocataire struct {
	LocataireID uuid.UUID `json:"locataire_id"`
	Nom         string    `json:"nom"`
	Prenom      string    `json:"prenom"`
	MoisOccupes int       `json:"mois_occupes"`
	MoisRegles  int       `json:"mois_regles"`
	EnRetard    bool      `json:"en_retard"`
}

// RapportAnnuel est un instantané comptable figé. Une fois généré pour
// une année close, il est relu tel quel, jamais recalculé.
type RapportAnnuel struct {
	ID            uuid.UUID         `json:"id"`
	ImmeubleID    uuid.UUID         `json:"immeuble_id"`
	Annee         int               `json:"annee"`
	Revenus       int64             `json:"revenus"`
	Depenses      int64             `json:"depenses"`
	Solde         int64             `json:"solde"`
	Detail        []LigneMensuelle  `json:"detail"`
	Retardataires []StatutLocataire `json:"retardataires"`
	GenereParID   uuid.UUID         `json:"genere_par_id"`
	GenereLe      time.Time         `json:"genere_le"`
}

// Occupation compte les mois d'occupation d'un locataire dans un
// immeuble sur une année, positions courantes et historique confondus.
type Occupation struct {
	LocataireID uuid.UUID
	Nom         string
	Prenom      string
	Mois        int
}

// BornesAnnee retourne les périodes extrêmes AAAA-MM d'une année.
func BornesAnnee(annee int) (string, string) {
	return fmt.Sprintf("%04d-01", annee), fmt.Sprintf("%04d-12", annee)
}
