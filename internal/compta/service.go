package compta

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gestimmo/api/internal/util"
)

// Repo est la surface de persistance consommée par le service.
type Repo interface {
	CreateDepense(ctx context.Context, immeubleID, creePar uuid.UUID, input DepenseInput) (*Depense, error)
	GetDepense(ctx context.Context, id uuid.UUID) (*Depense, error)
	ListDepenses(ctx context.Context, immeubleID uuid.UUID, debut, fin string) ([]Depense, error)
	UpdateDepense(ctx context.Context, id uuid.UUID, input DepenseInput) (*Depense, error)
	DeleteDepense(ctx context.Context, id uuid.UUID) error
	SommeDepenses(ctx context.Context, immeubleID uuid.UUID, debut, fin string) (int64, error)
	DepensesParMois(ctx context.Context, immeubleID uuid.UUID, debut, fin string) (map[string]int64, error)
	GetRapport(ctx context.Context, immeubleID uuid.UUID, annee int) (*RapportAnnuel, error)
	ListRapports(ctx context.Context, immeubleID uuid.UUID) ([]RapportAnnuel, error)
	DeleteRapport(ctx context.Context, immeubleID uuid.UUID, annee int) error
	InsertRapport(ctx context.Context, rapport *RapportAnnuel) (*RapportAnnuel, error)
	OccupationsAnnee(ctx context.Context, immeubleID uuid.UUID, annee int) ([]Occupation, error)
}

// Revenus expose les agrégats de reçus approuvés au calcul comptable.
type Revenus interface {
	SommeApprouvee(ctx context.Context, immeubleID uuid.UUID, debut, fin string) (int64, error)
	ParMois(ctx context.Context, immeubleID uuid.UUID, debut, fin string) (map[string]int64, error)
	MoisReglesParLocataire(ctx context.Context, immeubleID uuid.UUID, debut, fin string) (map[uuid.UUID]int, error)
}

type Service struct {
	repo    Repo
	revenus Revenus
	now     func() time.Time
}

func NewService(repo Repo, revenus Revenus) *Service {
	return &Service{repo: repo, revenus: revenus, now: func() time.Time { return time.Now().UTC() }}
}

// CreateDepense valide et enregistre une dépense.
func (s *Service) CreateDepense(ctx context.Context, immeubleID, creePar uuid.UUID, input DepenseInput) (*Depense, error) {
	if err := validerDepense(&input); err != nil {
		return nil, err
	}
	return s.repo.CreateDepense(ctx, immeubleID, creePar, input)
}

func (s *Service) GetDepense(ctx context.Context, id uuid.UUID) (*Depense, error) {
	return s.repo.GetDepense(ctx, id)
}

func (s *Service) ListDepenses(ctx context.Context, immeubleID uuid.UUID, debut, fin string) ([]Depense, error) {
	return s.repo.ListDepenses(ctx, immeubleID, debut, fin)
}

func (s *Service) UpdateDepense(ctx context.Context, id uuid.UUID, input DepenseInput) (*Depense, error) {
	if err := validerDepense(&input); err != nil {
		return nil, err
	}
	return s.repo.UpdateDepense(ctx, id, input)
}

func (s *Service) DeleteDepense(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteDepense(ctx, id)
}

// Bilan calcule revenus, dépenses et solde sur l'intervalle.
func (s *Service) Bilan(ctx context.Context, immeubleID uuid.UUID, debut, fin string) (*Bilan, error) {
	revenus, err := s.revenus.SommeApprouvee(ctx, immeubleID, debut, fin)
	if err != nil {
		return nil, err
	}
	depenses, err := s.repo.SommeDepenses(ctx, immeubleID, debut, fin)
	if err != nil {
		return nil, err
	}

	return &Bilan{
		ImmeubleID:   immeubleID,
		PeriodeDebut: debut,
		PeriodeFin:   fin,
		Revenus:      revenus,
		Depenses:     depenses,
		Solde:        revenus - depenses,
	}, nil
}

// RapportAnnuel retourne le rapport figé de l'année, en le générant à
// la première demande. Une année encore ouverte n'est pas générable.
func (s *Service) RapportAnnuel(ctx context.Context, immeubleID uuid.UUID, annee int, genereParID uuid.UUID) (*RapportAnnuel, error) {
	existant, err := s.repo.GetRapport(ctx, immeubleID, annee)
	if err == nil {
		return existant, nil
	}
	if !errors.Is(err, ErrRapportNotFound) {
		return nil, err
	}

	if annee >= s.now().Year() {
		return nil, ErrAnneeOuverte
	}

	debut, fin := BornesAnnee(annee)
	revenusMois, err := s.revenus.ParMois(ctx, immeubleID, debut, fin)
	if err != nil {
		return nil, err
	}
	depensesMois, err := s.repo.DepensesParMois(ctx, immeubleID, debut, fin)
	if err != nil {
		return nil, err
	}

	rapport := &RapportAnnuel{
		ImmeubleID:  immeubleID,
		Annee:       annee,
		GenereParID: genereParID,
	}
	for mois := 1; mois <= 12; mois++ {
		periode := fmt.Sprintf("%04d-%02d", annee, mois)
		ligne := LigneMensuelle{
			Periode:  periode,
			Revenus:  revenusMois[periode],
			Depenses: depensesMois[periode],
		}
		rapport.Revenus += ligne.Revenus
		rapport.Depenses += ligne.Depenses
		rapport.Detail = append(rapport.Detail, ligne)
	}
	rapport.Solde = rapport.Revenus - rapport.Depenses

	retardataires, err := s.calculerRetardataires(ctx, immeubleID, annee, debut, fin)
	if err != nil {
		return nil, err
	}
	rapport.Retardataires = retardataires

	return s.repo.InsertRapport(ctx, rapport)
}

// ListRapports retourne les rapports figés d'un immeuble.
func (s *Service) ListRapports(ctx context.Context, immeubleID uuid.UUID) ([]RapportAnnuel, error) {
	return s.repo.ListRapports(ctx, immeubleID)
}

// DeleteRapport supprime un rapport figé. La prochaine demande de
// l'année régénérera le calcul.
func (s *Service) DeleteRapport(ctx context.Context, immeubleID uuid.UUID, annee int) error {
	return s.repo.DeleteRapport(ctx, immeubleID, annee)
}

// calculerRetardataires confronte, pour chaque locataire ayant occupé
// l'immeuble dans l'année, les mois d'occupation aux mois couverts par
// un reçu approuvé.
func (s *Service) calculerRetardataires(ctx context.Context, immeubleID uuid.UUID, annee int, debut, fin string) ([]StatutLocataire, error) {
	occupations, err := s.repo.OccupationsAnnee(ctx, immeubleID, annee)
	if err != nil {
		return nil, err
	}
	regles, err := s.revenus.MoisReglesParLocataire(ctx, immeubleID, debut, fin)
	if err != nil {
		return nil, err
	}

	statuts := make([]StatutLocataire, 0, len(occupations))
	for _, occ := range occupations {
		statuts = append(statuts, StatutLocataire{
			LocataireID: occ.LocataireID,
			Nom:         occ.Nom,
			Prenom:      occ.Prenom,
			MoisOccupes: occ.Mois,
			MoisRegles:  regles[occ.LocataireID],
			EnRetard:    regles[occ.LocataireID] < occ.Mois,
		})
	}
	return statuts, nil
}

func validerDepense(input *DepenseInput) error {
	if err := util.RequireString(input.Libelle, "libellé"); err != nil {
		return err
	}
	if input.Montant <= 0 {
		return errors.New("montant invalide")
	}
	if input.Date.IsZero() {
		return errors.New("date obligatoire")
	}
	if input.Categorie == "" {
		input.Categorie = CategorieAutre
	}
	return nil
}
