package compte

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/gestimmo/api/internal/permission"
)

var (
	ErrNotFound              = errors.New("compte introuvable")
	ErrEmailDejaUtilise      = errors.New("email déjà utilisé")
	ErrInvitationInvalide    = errors.New("invitation invalide")
	ErrInvitationExpiree     = errors.New("invitation expirée")
	ErrInvitationConsommee   = errors.New("invitation déjà utilisée")
	ErrIdentifiantsInvalides = errors.New("email ou mot de passe incorrect")
)

// Utilisateur est un compte du backoffice.
type Utilisateur struct {
	ID             uuid.UUID  `json:"id"`
	Nom            string     `json:"nom"`
	Prenom         string     `json:"prenom"`
	Email          string     `json:"email"`
	Telephone      *string    `json:"telephone,omitempty"`
	MotDePasseHash string     `json:"-"`
	Role           string     `json:"role"`
	Actif          bool       `json:"actif"`
	DernierAccesLe *time.Time `json:"dernier_acces_le,omitempty"`
	CreeLe         time.Time  `json:"cree_le"`
	MajLe          time.Time  `json:"maj_le"`
}

// Affectation lie un compte à un immeuble avec son jeu de permissions
// typé.
type Affectation struct {
	ImmeubleID uuid.UUID      `json:"immeuble_id"`
	Jeu        permission.Jeu `json:"jeu"`
}

// Invitation est une invitation à rejoindre le backoffice. Le jeton
// n'est jamais stocké en clair, seule son empreinte l'est. L'identité
// (nom, prénom, téléphone) est fixée par l'inviteur et reportée sur le
// compte à l'acceptation.
type Invitation struct {
	ID           uuid.UUID     `json:"id"`
	Email        string        `json:"email"`
	Nom          string        `json:"nom"`
	Prenom       string        `json:"prenom"`
	Telephone    *string       `json:"telephone,omitempty"`
	Role         string        `json:"role"`
	Affectations []Affectation `json:"affectations"`
	TokenHash    string        `json:"-"`
	CreeParID    uuid.UUID     `json:"cree_par_id"`
	ExpireLe     time.Time     `json:"expire_le"`
	ConsommeeLe  *time.Time    `json:"consommee_le,omitempty"`
	CreeLe       time.Time     `json:"cree_le"`
}

// EstExpiree indique si l'invitation a dépassé sa fenêtre de validité.
func (i *Invitation) EstExpiree(now time.Time) bool {
	return now.After(i.ExpireLe)
}

// CreateUtilisateurInput contient les champs de création directe d'un
// compte.
type CreateUtilisateurInput struct {
	Nom          string
	Prenom       string
	Email        string
	MotDePasse   string
	Role         string
	Affectations []Affectation
}

// InviterInput contient les champs d'une invitation.
type InviterInput struct {
	Email        string
	Nom          string
	Prenom       string
	Telephone    *string
	Role         string
	Affectations []Affectation
	CreeParID    uuid.UUID
}

// AccepterInput contient les champs fournis à l'acceptation. L'identité
// vient de l'invitation, l'invité ne fournit que son mot de passe.
type AccepterInput struct {
	Token      string
	MotDePasse string
}

// RoleValide vérifie qu'un rôle de backoffice est connu.
func RoleValide(role string) bool {
	switch role {
	case permission.RoleSuperAdmin, permission.RoleAdmin, permission.RoleGestionnaire:
		return true
	default:
		return false
	}
}
