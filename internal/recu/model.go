package recu

import (
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound         = errors.New("reçu introuvable")
	ErrDejaRevu         = errors.New("reçu déjà revu")
	ErrDecisionInvalide = errors.New("décision de revue invalide")
	ErrPeriodeInvalide  = errors.New("période invalide, format attendu AAAA-MM")
	ErrMontantRequis    = errors.New("montant requis pour approuver le reçu")
)

// Statuts d'un reçu. La revue est terminale: un reçu approuvé ou
// rejeté ne revient jamais en attente.
const (
	StatutEnAttente = "en_attente"
	StatutApprouve  = "approuve"
	StatutRejete    = "rejete"
)

var periodeRe = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// Recu est un justificatif de paiement envoyé par un locataire. La
// période est le premier mois couvert et NombreMois étend la
// couverture; un reçu peut régler plusieurs loyers d'un coup. Le
// montant est en GNF, sans subdivision, et reste à zéro tant que le
// réviseur ne l'a pas saisi.
type Recu struct {
	ID            uuid.UUID  `json:"id"`
	LocataireID   uuid.UUID  `json:"locataire_id"`
	AppartementID uuid.UUID  `json:"appartement_id"`
	ImmeubleID    uuid.UUID  `json:"immeuble_id"`
	Periode       string     `json:"periode"`
	NombreMois    int        `json:"nombre_mois"`
	Montant       int64      `json:"montant"`
	Description   string     `json:"description"`
	FichierURL    string     `json:"fichier_url"`
	Statut        string     `json:"statut"`
	Commentaire   *string    `json:"commentaire,omitempty"`
	RevuParID     *uuid.UUID `json:"revu_par_id,omitempty"`
	RevuLe        *time.Time `json:"revu_le,omitempty"`
	CreeLe        time.Time  `json:"cree_le"`
	MajLe         time.Time  `json:"maj_le"`
}

// CreateInput contient les champs d'un dépôt de reçu. Le montant et la
// description sont facultatifs au dépôt, le réviseur les renseigne.
type CreateInput struct {
	LocataireID   uuid.UUID
	AppartementID uuid.UUID
	ImmeubleID    uuid.UUID
	Periode       string
	NombreMois    int
	Montant       int64
	Description   string
	Fichier       []byte
	NomFichier    string
	ContentType   string
}

// ReviewInput contient la décision de revue.
type ReviewInput struct {
	RecuID      uuid.UUID
	RevuParID   uuid.UUID
	Approuve    bool
	Commentaire string
	// Montant saisi par le réviseur, 0 pour conserver le montant
	// déclaré au dépôt.
	Montant int64
	// Description saisie par le réviseur, nil pour conserver.
	Description *string
}

// PeriodeValide vérifie le format AAAA-MM.
func PeriodeValide(periode string) bool {
	return periodeRe.MatchString(periode)
}
