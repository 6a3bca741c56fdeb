package compta

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type stubRepo struct {
	depensesMois  map[string]int64
	sommeDepenses int64
	rapports      map[int]*RapportAnnuel
	occupations   []Occupation
}

func newStubRepo() *stubRepo {
	return &stubRepo{depensesMois: map[string]int64{}, rapports: map[int]*RapportAnnuel{}}
}

func (s *stubRepo) CreateDepense(ctx context.Context, immeubleID, creePar uuid.UUID, input DepenseInput) (*Depense, error) {
	return &Depense{ID: uuid.New(), ImmeubleID: immeubleID, Libelle: input.Libelle,
		Categorie: input.Categorie, Montant: input.Montant, Date: input.Date, CreeParID: creePar}, nil
}

func (s *stubRepo) GetDepense(ctx context.Context, id uuid.UUID) (*Depense, error) {
	return nil, ErrNotFound
}

func (s *stubRepo) ListDepenses(ctx context.Context, immeubleID uuid.UUID, debut, fin string) ([]Depense, error) {
	return nil, nil
}

func (s *stubRepo) UpdateDepense(ctx context.Context, id uuid.UUID, input DepenseInput) (*Depense, error) {
	return nil, ErrNotFound
}

func (s *stubRepo) DeleteDepense(ctx context.Context, id uuid.UUID) error { return nil }

func (s *stubRepo) SommeDepenses(ctx context.Context, immeubleID uuid.UUID, debut, fin string) (int64, error) {
	return s.sommeDepenses, nil
}

func (s *stubRepo) DepensesParMois(ctx context.Context, immeubleID uuid.UUID, debut, fin string) (map[string]int64, error) {
	return s.depensesMois, nil
}

func (s *stubRepo) GetRapport(ctx context.Context, immeubleID uuid.UUID, annee int) (*RapportAnnuel, error) {
	r, ok := s.rapports[annee]
	if !ok {
		return nil, ErrRapportNotFound
	}
	return r, nil
}

func (s *stubRepo) InsertRapport(ctx context.Context, rapport *RapportAnnuel) (*RapportAnnuel, error) {
	rapport.ID = uuid.New()
	rapport.GenereLe = time.Now().UTC()
	s.rapports[rapport.Annee] = rapport
	return rapport, nil
}

func (s *stubRepo) ListRapports(ctx context.Context, immeubleID uuid.UUID) ([]RapportAnnuel, error) {
	var out []RapportAnnuel
	for _, r := range s.rapports {
		out = append(out, *r)
	}
	return out, nil
}

func (s *stubRepo) DeleteRapport(ctx context.Context, immeubleID uuid.UUID, annee int) error {
	if _, ok := s.rapports[annee]; !ok {
		return ErrRapportNotFound
	}
	delete(s.rapports, annee)
	return nil
}

func (s *stubRepo) OccupationsAnnee(ctx context.Context, immeubleID uuid.UUID, annee int) ([]Occupation, error) {
	return s.occupations, nil
}

type stubRevenus struct {
	somme  int64
	mois   map[string]int64
	regles map[uuid.UUID]int
}

func (s *stubRevenus) SommeApprouvee(ctx context.Context, immeubleID uuid.UUID, debut, fin string) (int64, error) {
	return s.somme, nil
}

func (s *stubRevenus) ParMois(ctx context.Context, immeubleID uuid.UUID, debut, fin string) (map[string]int64, error) {
	return s.mois, nil
}

func (s *stubRevenus) MoisReglesParLocataire(ctx context.Context, immeubleID uuid.UUID, debut, fin string) (map[uuid.UUID]int, error) {
	return s.regles, nil
}

func TestBilanCalculeLeSolde(t *testing.T) {
	repo := newStubRepo()
	repo.sommeDepenses = 400_000
	svc := NewService(repo, &stubRevenus{somme: 1_000_000})

	bilan, err := svc.Bilan(context.Background(), uuid.New(), "2025-01", "2025-12")
	if err != nil {
		t.Fatalf("bilan: %v", err)
	}
	if bilan.Solde != 600_000 {
		t.Fatalf("solde %d, attendu 600000", bilan.Solde)
	}
}

func TestRapportAnnuelEstFige(t *testing.T) {
	repo := newStubRepo()
	revenus := &stubRevenus{mois: map[string]int64{"2025-01": 500_000, "2025-06": 700_000}}
	repo.depensesMois = map[string]int64{"2025-03": 200_000}
	svc := NewService(repo, revenus)
	svc.now = func() time.Time { return time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) }

	immeubleID := uuid.New()
	rapport, err := svc.RapportAnnuel(context.Background(), immeubleID, 2025, uuid.New())
	if err != nil {
		t.Fatalf("génération: %v", err)
	}
	if rapport.Revenus != 1_200_000 || rapport.Depenses != 200_000 || rapport.Solde != 1_000_000 {
		t.Fatalf("totaux incorrects: %+v", rapport)
	}
	if len(rapport.Detail) != 12 {
		t.Fatalf("le détail doit couvrir 12 mois, obtenu %d", len(rapport.Detail))
	}

	// Les données sources bougent après la clôture: le rapport relu
	// reste identique.
	revenus.mois["2025-01"] = 9_999_999
	repo.depensesMois["2025-03"] = 0

	relu, err := svc.RapportAnnuel(context.Background(), immeubleID, 2025, uuid.New())
	if err != nil {
		t.Fatalf("relecture: %v", err)
	}
	if relu.Revenus != 1_200_000 || relu.ID != rapport.ID {
		t.Fatal("le rapport figé ne doit jamais être recalculé")
	}
}

func TestRapportAnnuelSignaleLesRetardataires(t *testing.T) {
	repo := newStubRepo()
	aJour := uuid.New()
	enRetard := uuid.New()
	repo.occupations = []Occupation{
		{LocataireID: aJour, Nom: "Bah", Prenom: "Fatoumata", Mois: 6},
		{LocataireID: enRetard, Nom: "Sylla", Prenom: "Ibrahima", Mois: 12},
	}
	revenus := &stubRevenus{regles: map[uuid.UUID]int{aJour: 6, enRetard: 9}}
	svc := NewService(repo, revenus)
	svc.now = func() time.Time { return time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) }

	rapport, err := svc.RapportAnnuel(context.Background(), uuid.New(), 2025, uuid.New())
	if err != nil {
		t.Fatalf("génération: %v", err)
	}
	if len(rapport.Retardataires) != 2 {
		t.Fatalf("attendu 2 statuts, obtenu %d", len(rapport.Retardataires))
	}
	for _, statut := range rapport.Retardataires {
		switch statut.LocataireID {
		case aJour:
			if statut.EnRetard {
				t.Error("un locataire ayant réglé tous ses mois ne doit pas être en retard")
			}
		case enRetard:
			if !statut.EnRetard || statut.MoisRegles != 9 || statut.MoisOccupes != 12 {
				t.Errorf("statut du retardataire incorrect: %+v", statut)
			}
		}
	}
}

func TestRapportAnnuelRefuseLAnneeOuverte(t *testing.T) {
	svc := NewService(newStubRepo(), &stubRevenus{})
	svc.now = func() time.Time { return time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) }

	_, err := svc.RapportAnnuel(context.Background(), uuid.New(), 2026, uuid.New())
	if !errors.Is(err, ErrAnneeOuverte) {
		t.Fatalf("attendu ErrAnneeOuverte, obtenu %v", err)
	}
}

func TestCreateDepenseValide(t *testing.T) {
	svc := NewService(newStubRepo(), &stubRevenus{})

	_, err := svc.CreateDepense(context.Background(), uuid.New(), uuid.New(), DepenseInput{
		Libelle: "peinture cage d'escalier",
		Montant: 350_000,
		Date:    time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("création: %v", err)
	}

	_, err = svc.CreateDepense(context.Background(), uuid.New(), uuid.New(), DepenseInput{
		Libelle: "peinture",
		Montant: -5,
		Date:    time.Now(),
	})
	if err == nil {
		t.Fatal("un montant négatif doit être refusé")
	}
}
