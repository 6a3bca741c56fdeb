// Package permission dérive les droits effectifs d'un utilisateur du
// backoffice sur un immeuble donné. La dérivation est une fonction pure du
// contexte chargé en base: aucun cache, aucune requête.
package permission

import "github.com/google/uuid"

// Rôles du backoffice. ADMIN est un palier informel distinct de
// GESTIONNAIRE: il court-circuite les jeux de permissions et se réduit à
// l'appartenance aux immeubles assignés.
const (
	RoleSuperAdmin   = "SUPER_ADMIN"
	RoleAdmin        = "ADMIN"
	RoleGestionnaire = "GESTIONNAIRE"
	RoleLocataire    = "LOCATAIRE"
)

// Compta regroupe les droits comptabilité.
type Compta struct {
	Lecture  bool `json:"lecture"`
	Ecriture bool `json:"ecriture"`
	Export   bool `json:"export"`
}

// Stats regroupe les droits statistiques.
type Stats struct {
	Lecture bool `json:"lecture"`
	Export  bool `json:"export"`
}

// Jeu est le jeu de permissions à forme fixe rattaché à une affectation
// utilisateur↔immeuble. L'absence de jeu pour un immeuble assigné est
// distincte d'un jeu entièrement à faux, et vaut refus.
type Jeu struct {
	GestionImmeuble     bool   `json:"gestion_immeuble"`
	GestionLocataires   bool   `json:"gestion_locataires"`
	Comptabilite        Compta `json:"comptabilite"`
	Statistiques        Stats  `json:"statistiques"`
	SuppressionImmeuble bool   `json:"suppression_immeuble"`
}

// Contexte est la vue mémoire d'un utilisateur nécessaire à la dérivation.
type Contexte struct {
	UtilisateurID     uuid.UUID
	Role              string
	ImmeublesAssignes []uuid.UUID
	Jeux              map[uuid.UUID]Jeu
}

// EstAssigne indique l'appartenance de l'immeuble aux assignations.
func (c *Contexte) EstAssigne(immeubleID uuid.UUID) bool {
	for _, id := range c.ImmeublesAssignes {
		if id == immeubleID {
			return true
		}
	}
	return false
}

// JeuPour retourne le jeu de permissions de l'immeuble et un booléen
// explicite signalant son existence.
func (c *Contexte) JeuPour(immeubleID uuid.UUID) (Jeu, bool) {
	if c.Jeux == nil {
		return Jeu{}, false
	}
	jeu, ok := c.Jeux[immeubleID]
	return jeu, ok
}

// derive factorise le schéma commun: SUPER_ADMIN passe toujours, ADMIN se
// réduit à l'appartenance, les autres rôles lisent le jeu typé.
func (c *Contexte) derive(immeubleID uuid.UUID, fn func(Jeu) bool) bool {
	switch c.Role {
	case RoleSuperAdmin:
		return true
	case RoleAdmin:
		return c.EstAssigne(immeubleID)
	default:
		jeu, ok := c.JeuPour(immeubleID)
		if !ok {
			return false
		}
		return fn(jeu)
	}
}

// AccesImmeuble répond: l'utilisateur voit-il cet immeuble. Pour tous les
// rôles non SUPER_ADMIN l'accès se réduit à l'appartenance; les prédicats
// granulaires exigent en plus un jeu présent.
func (c *Contexte) AccesImmeuble(immeubleID uuid.UUID) bool {
	if c.Role == RoleSuperAdmin {
		return true
	}
	return c.EstAssigne(immeubleID)
}

// GestionImmeuble autorise la modification des données de l'immeuble.
func (c *Contexte) GestionImmeuble(immeubleID uuid.UUID) bool {
	return c.derive(immeubleID, func(j Jeu) bool { return j.GestionImmeuble })
}

// EcritureLocataires autorise créer/modifier/sortir des locataires.
func (c *Contexte) EcritureLocataires(immeubleID uuid.UUID) bool {
	return c.derive(immeubleID, func(j Jeu) bool { return j.GestionLocataires })
}

// LectureCompta autorise la consultation comptable.
func (c *Contexte) LectureCompta(immeubleID uuid.UUID) bool {
	return c.derive(immeubleID, func(j Jeu) bool { return j.Comptabilite.Lecture })
}

// EcritureCompta autorise dépenses et revue des reçus.
func (c *Contexte) EcritureCompta(immeubleID uuid.UUID) bool {
	return c.derive(immeubleID, func(j Jeu) bool { return j.Comptabilite.Ecriture })
}

// ExportCompta autorise les exports comptables.
func (c *Contexte) ExportCompta(immeubleID uuid.UUID) bool {
	return c.derive(immeubleID, func(j Jeu) bool { return j.Comptabilite.Export })
}

// LectureStats autorise la consultation des statistiques.
func (c *Contexte) LectureStats(immeubleID uuid.UUID) bool {
	return c.derive(immeubleID, func(j Jeu) bool { return j.Statistiques.Lecture })
}

// ExportStats autorise l'export des statistiques et rapports.
func (c *Contexte) ExportStats(immeubleID uuid.UUID) bool {
	return c.derive(immeubleID, func(j Jeu) bool { return j.Statistiques.Export })
}

// SuppressionImmeuble autorise la suppression définitive de l'immeuble.
func (c *Contexte) SuppressionImmeuble(immeubleID uuid.UUID) bool {
	return c.derive(immeubleID, func(j Jeu) bool { return j.SuppressionImmeuble })
}
