package immeuble

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Service porte les règles métier des immeubles.
type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// Create valide puis enregistre un immeuble avec ses unités.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Immeuble, error) {
	if input.Nom == "" {
		return nil, errors.New("nom obligatoire")
	}
	input.Type = NormalizeType(input.Type)
	if input.Type == "" {
		return nil, errors.New("type d'immeuble invalide")
	}
	if input.NombreAppartements < 0 || input.NombreAppartements > 500 {
		return nil, errors.New("nombre d'appartements invalide")
	}
	if input.Proprietaire.Nom == "" {
		return nil, errors.New("propriétaire obligatoire")
	}
	return s.repo.Create(ctx, input)
}

// Get charge un immeuble.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Immeuble, error) {
	return s.repo.GetByID(ctx, id)
}

// List retourne les immeubles visibles. Un slice nil signifie tous (réservé
// au SUPER_ADMIN); un slice vide ne retourne rien.
func (s *Service) List(ctx context.Context, visibles []uuid.UUID) ([]Immeuble, error) {
	if visibles != nil && len(visibles) == 0 {
		return nil, nil
	}
	return s.repo.List(ctx, visibles)
}

// Update modifie les champs descriptifs.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*Immeuble, error) {
	if input.Type != "" {
		input.Type = NormalizeType(input.Type)
		if input.Type == "" {
			return nil, errors.New("type d'immeuble invalide")
		}
	}
	return s.repo.Update(ctx, id, input)
}

// ChangeOwner archive l'ancien propriétaire et installe le nouveau.
func (s *Service) ChangeOwner(ctx context.Context, id uuid.UUID, nouveau Proprietaire) (*Immeuble, error) {
	if nouveau.Nom == "" {
		return nil, errors.New("propriétaire obligatoire")
	}
	return s.repo.ChangeOwner(ctx, id, nouveau)
}

// OwnerHistory liste l'historique de propriété.
func (s *Service) OwnerHistory(ctx context.Context, id uuid.UUID) ([]ProprietaireHistorique, error) {
	return s.repo.ListOwnerHistory(ctx, id)
}

// Delete supprime définitivement l'immeuble.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// Appartements liste les unités d'un immeuble.
func (s *Service) Appartements(ctx context.Context, immeubleID uuid.UUID) ([]Appartement, error) {
	return s.repo.ListAppartements(ctx, immeubleID)
}

// Appartement charge une unité par id.
func (s *Service) Appartement(ctx context.Context, id uuid.UUID) (*Appartement, error) {
	return s.repo.GetAppartement(ctx, id)
}

// AddAppartement ajoute une unité après création de l'immeuble. Le nombre
// déclaré n'est pas recalé: l'écart est exposé par les statistiques.
func (s *Service) AddAppartement(ctx context.Context, immeubleID uuid.UUID, numero string) (*Appartement, error) {
	if numero == "" {
		return nil, errors.New("numéro obligatoire")
	}
	return s.repo.CreateAppartement(ctx, immeubleID, numero)
}

// RenameAppartement change le numéro d'unité.
func (s *Service) RenameAppartement(ctx context.Context, id uuid.UUID, numero string) (*Appartement, error) {
	if numero == "" {
		return nil, errors.New("numéro obligatoire")
	}
	return s.repo.UpdateAppartementNumero(ctx, id, numero)
}

// Historique liste l'historique d'occupation d'une unité.
func (s *Service) Historique(ctx context.Context, appartementID uuid.UUID) ([]HistoriqueLocataire, error) {
	return s.repo.ListHistorique(ctx, appartementID)
}

// Stats résume l'occupation d'un immeuble.
type Stats struct {
	ImmeubleID         uuid.UUID `json:"immeuble_id"`
	NombreDeclare      int       `json:"nombre_declare"`
	NombreReel         int       `json:"nombre_reel"`
	Occupes            int       `json:"occupes"`
	Libres             int       `json:"libres"`
	TauxOccupation     float64   `json:"taux_occupation"`
}

// ComputeStats calcule l'occupation courante et l'écart avec le déclaré.
func (s *Service) ComputeStats(ctx context.Context, immeubleID uuid.UUID) (*Stats, error) {
	imm, err := s.repo.GetByID(ctx, immeubleID)
	if err != nil {
		return nil, err
	}

	apps, err := s.repo.ListAppartements(ctx, immeubleID)
	if err != nil {
		return nil, err
	}

	stats := &Stats{ImmeubleID: immeubleID, NombreDeclare: imm.NombreAppartements, NombreReel: len(apps)}
	for _, app := range apps {
		if app.Statut == StatutOccupe {
			stats.Occupes++
		} else {
			stats.Libres++
		}
	}
	if stats.NombreReel > 0 {
		stats.TauxOccupation = float64(stats.Occupes) / float64(stats.NombreReel)
	}
	return stats, nil
}
