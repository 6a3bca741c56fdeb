package locataire

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gestimmo/api/internal/util"
)

// Repo est la surface de persistance consommée par le service.
type Repo interface {
	Create(ctx context.Context, input CreateInput) (*Locataire, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Locataire, error)
	GetByTelephone(ctx context.Context, telephone string) (*Locataire, error)
	ListByImmeuble(ctx context.Context, immeubleID uuid.UUID) ([]Locataire, error)
	ListSansLogement(ctx context.Context) ([]Locataire, error)
	ImmeubleDe(ctx context.Context, appartementID uuid.UUID) (uuid.UUID, error)
	Fiche(ctx context.Context, id uuid.UUID) (*Fiche, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*Locataire, error)
	Affecter(ctx context.Context, locataireID, immeubleID, appartementID uuid.UUID, entree time.Time) (*Locataire, error)
	Demenager(ctx context.Context, locataireID, immeubleID, appartementID uuid.UUID, date time.Time) (*Locataire, error)
	Liberer(ctx context.Context, locataireID uuid.UUID, sortie time.Time) (*Locataire, error)
	Delete(ctx context.Context, locataireID uuid.UUID) error
}

type Service struct {
	repo Repo
}

func NewService(repo Repo) *Service {
	return &Service{repo: repo}
}

// Create valide la fiche, normalise le téléphone puis délègue.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Locataire, error) {
	if err := util.RequireString(input.Nom, "nom"); err != nil {
		return nil, err
	}
	if err := util.RequireString(input.Prenom, "prénom"); err != nil {
		return nil, err
	}
	tel, err := util.FormatTelephone(input.Telephone)
	if err != nil {
		return nil, err
	}
	input.Telephone = tel
	if input.Email != nil {
		if err := util.ValidateEmail(*input.Email); err != nil {
			return nil, err
		}
	}
	if input.AppartementID != nil && input.ImmeubleID == uuid.Nil {
		return nil, util.Invalide("immeuble requis pour affecter un appartement")
	}
	return s.repo.Create(ctx, input)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Locataire, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByTelephone normalise le numéro avant la recherche, les fiches
// stockant uniquement le format international.
func (s *Service) GetByTelephone(ctx context.Context, telephone string) (*Locataire, error) {
	tel, err := util.FormatTelephone(telephone)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.repo.GetByTelephone(ctx, tel)
}

func (s *Service) ListByImmeuble(ctx context.Context, immeubleID uuid.UUID) ([]Locataire, error) {
	return s.repo.ListByImmeuble(ctx, immeubleID)
}

func (s *Service) ListSansLogement(ctx context.Context) ([]Locataire, error) {
	return s.repo.ListSansLogement(ctx)
}

func (s *Service) ImmeubleDe(ctx context.Context, appartementID uuid.UUID) (uuid.UUID, error) {
	return s.repo.ImmeubleDe(ctx, appartementID)
}

func (s *Service) Fiche(ctx context.Context, id uuid.UUID) (*Fiche, error) {
	return s.repo.Fiche(ctx, id)
}

// Update applique la modification sur place, instantané compris.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*Locataire, error) {
	if err := util.RequireString(input.Nom, "nom"); err != nil {
		return nil, err
	}
	if err := util.RequireString(input.Prenom, "prénom"); err != nil {
		return nil, err
	}
	tel, err := util.FormatTelephone(input.Telephone)
	if err != nil {
		return nil, err
	}
	input.Telephone = tel
	if input.Email != nil {
		if err := util.ValidateEmail(*input.Email); err != nil {
			return nil, err
		}
	}
	return s.repo.Update(ctx, id, input)
}

func (s *Service) Affecter(ctx context.Context, locataireID, immeubleID, appartementID uuid.UUID, entree time.Time) (*Locataire, error) {
	if entree.IsZero() {
		entree = time.Now().UTC()
	}
	return s.repo.Affecter(ctx, locataireID, immeubleID, appartementID, entree)
}

func (s *Service) Demenager(ctx context.Context, locataireID, immeubleID, appartementID uuid.UUID, date time.Time) (*Locataire, error) {
	if date.IsZero() {
		date = time.Now().UTC()
	}
	return s.repo.Demenager(ctx, locataireID, immeubleID, appartementID, date)
}

func (s *Service) Liberer(ctx context.Context, locataireID uuid.UUID, sortie time.Time) (*Locataire, error) {
	if sortie.IsZero() {
		sortie = time.Now().UTC()
	}
	return s.repo.Liberer(ctx, locataireID, sortie)
}

func (s *Service) Delete(ctx context.Context, locataireID uuid.UUID) error {
	return s.repo.Delete(ctx, locataireID)
}
