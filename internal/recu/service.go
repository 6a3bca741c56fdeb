package recu

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/gestimmo/api/internal/storage"
)

// Taille maximale d'un justificatif.
const MaxFichier = 10 << 20

// Repo est la surface de persistance consommée par le service.
type Repo interface {
	Create(ctx context.Context, rec *Recu) (*Recu, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Recu, error)
	ListByImmeuble(ctx context.Context, immeubleID uuid.UUID, statut string) ([]Recu, error)
	ListByLocataire(ctx context.Context, locataireID uuid.UUID) ([]Recu, error)
	Review(ctx context.Context, input ReviewInput) (*Recu, error)
	SommeApprouvee(ctx context.Context, immeubleID uuid.UUID, debut, fin string) (int64, error)
	ParMois(ctx context.Context, immeubleID uuid.UUID, debut, fin string) (map[string]int64, error)
	MoisReglesParLocataire(ctx context.Context, immeubleID uuid.UUID, debut, fin string) (map[uuid.UUID]int, error)
}

type Service struct {
	repo     Repo
	uploader storage.Uploader
}

func NewService(repo Repo, uploader storage.Uploader) *Service {
	return &Service{repo: repo, uploader: uploader}
}

// Deposer stocke le justificatif puis enregistre le reçu en attente.
func (s *Service) Deposer(ctx context.Context, input CreateInput) (*Recu, error) {
	if !PeriodeValide(input.Periode) {
		return nil, ErrPeriodeInvalide
	}
	if input.NombreMois == 0 {
		input.NombreMois = 1
	}
	if input.NombreMois < 1 || input.NombreMois > 24 {
		return nil, errors.New("nombre de mois invalide")
	}
	if input.Montant < 0 {
		return nil, errors.New("montant invalide")
	}
	if len(input.Fichier) == 0 {
		return nil, errors.New("justificatif obligatoire")
	}
	if len(input.Fichier) > MaxFichier {
		return nil, fmt.Errorf("justificatif trop volumineux, maximum %d octets", MaxFichier)
	}
	if !typeAccepte(input.ContentType) {
		return nil, errors.New("type de fichier non accepté, image ou PDF attendu")
	}

	recuID := uuid.New()
	res, err := s.uploader.Upload(ctx, storage.UploadInput{
		Key:         storage.RecuKey(input.ImmeubleID, recuID, input.NomFichier),
		Body:        input.Fichier,
		ContentType: input.ContentType,
	})
	if err != nil {
		return nil, err
	}

	return s.repo.Create(ctx, &Recu{
		ID:            recuID,
		LocataireID:   input.LocataireID,
		AppartementID: input.AppartementID,
		ImmeubleID:    input.ImmeubleID,
		Periode:       input.Periode,
		NombreMois:    input.NombreMois,
		Montant:       input.Montant,
		Description:   input.Description,
		FichierURL:    res.URL,
	})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Recu, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByImmeuble(ctx context.Context, immeubleID uuid.UUID, statut string) ([]Recu, error) {
	if statut != "" && statut != StatutEnAttente && statut != StatutApprouve && statut != StatutRejete {
		return nil, fmt.Errorf("statut inconnu: %s", statut)
	}
	return s.repo.ListByImmeuble(ctx, immeubleID, statut)
}

func (s *Service) ListByLocataire(ctx context.Context, locataireID uuid.UUID) ([]Recu, error) {
	return s.repo.ListByLocataire(ctx, locataireID)
}

// Revoir applique une décision terminale sur un reçu en attente. Une
// approbation exige un montant, saisi ici ou déclaré au dépôt.
func (s *Service) Revoir(ctx context.Context, input ReviewInput) (*Recu, error) {
	if !input.Approuve && input.Commentaire == "" {
		return nil, errors.New("un rejet doit être commenté")
	}
	if input.Montant < 0 {
		return nil, errors.New("montant invalide")
	}
	if input.Approuve && input.Montant == 0 {
		courant, err := s.repo.GetByID(ctx, input.RecuID)
		if err != nil {
			return nil, err
		}
		if courant.Montant <= 0 {
			return nil, ErrMontantRequis
		}
	}
	return s.repo.Review(ctx, input)
}

// SommeApprouvee expose l'agrégat aux calculs comptables.
func (s *Service) SommeApprouvee(ctx context.Context, immeubleID uuid.UUID, debut, fin string) (int64, error) {
	return s.repo.SommeApprouvee(ctx, immeubleID, debut, fin)
}

// ParMois expose la ventilation mensuelle aux rapports annuels.
func (s *Service) ParMois(ctx context.Context, immeubleID uuid.UUID, debut, fin string) (map[string]int64, error) {
	return s.repo.ParMois(ctx, immeubleID, debut, fin)
}

// MoisReglesParLocataire expose, par locataire, le nombre de périodes
// couvertes par un reçu approuvé.
func (s *Service) MoisReglesParLocataire(ctx context.Context, immeubleID uuid.UUID, debut, fin string) (map[uuid.UUID]int, error) {
	return s.repo.MoisReglesParLocataire(ctx, immeubleID, debut, fin)
}

func typeAccepte(contentType string) bool {
	switch contentType {
	case "image/jpeg", "image/png", "image/webp", "application/pdf":
		return true
	default:
		return false
	}
}
