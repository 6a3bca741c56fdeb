package locataire

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gestimmo/api/internal/immeuble"
	"github.com/gestimmo/api/internal/util"
)

type stubRepo struct {
	createFn       func(ctx context.Context, input CreateInput) (*Locataire, error)
	getByTelFn     func(ctx context.Context, telephone string) (*Locataire, error)
	updateFn       func(ctx context.Context, id uuid.UUID, input UpdateInput) (*Locataire, error)
	affecterFn     func(ctx context.Context, locataireID, immeubleID, appartementID uuid.UUID, entree time.Time) (*Locataire, error)
}

func (s *stubRepo) Create(ctx context.Context, input CreateInput) (*Locataire, error) {
	return s.createFn(ctx, input)
}

func (s *stubRepo) GetByID(ctx context.Context, id uuid.UUID) (*Locataire, error) {
	return nil, ErrNotFound
}

func (s *stubRepo) GetByTelephone(ctx context.Context, telephone string) (*Locataire, error) {
	return s.getByTelFn(ctx, telephone)
}

func (s *stubRepo) ListByImmeuble(ctx context.Context, immeubleID uuid.UUID) ([]Locataire, error) {
	return nil, nil
}

func (s *stubRepo) ListSansLogement(ctx context.Context) ([]Locataire, error) { return nil, nil }

func (s *stubRepo) ImmeubleDe(ctx context.Context, appartementID uuid.UUID) (uuid.UUID, error) {
	return uuid.Nil, immeuble.ErrAppartementNotFound
}

func (s *stubRepo) Fiche(ctx context.Context, id uuid.UUID) (*Fiche, error) { return nil, ErrNotFound }

func (s *stubRepo) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*Locataire, error) {
	return s.updateFn(ctx, id, input)
}

func (s *stubRepo) Affecter(ctx context.Context, locataireID, immeubleID, appartementID uuid.UUID, entree time.Time) (*Locataire, error) {
	return s.affecterFn(ctx, locataireID, immeubleID, appartementID, entree)
}

func (s *stubRepo) Demenager(ctx context.Context, locataireID, immeubleID, appartementID uuid.UUID, date time.Time) (*Locataire, error) {
	return nil, nil
}

func (s *stubRepo) Liberer(ctx context.Context, locataireID uuid.UUID, sortie time.Time) (*Locataire, error) {
	return nil, nil
}

func (s *stubRepo) Delete(ctx context.Context, locataireID uuid.UUID) error { return nil }

func TestCreateNormaliseTelephone(t *testing.T) {
	var recu CreateInput
	repo := &stubRepo{
		createFn: func(ctx context.Context, input CreateInput) (*Locataire, error) {
			recu = input
			return &Locataire{ID: uuid.New(), Telephone: input.Telephone}, nil
		},
	}
	svc := NewService(repo)

	_, err := svc.Create(context.Background(), CreateInput{
		Nom:       "Diallo",
		Prenom:    "Mamadou",
		Telephone: "628 40 73 35",
	})
	if err != nil {
		t.Fatalf("création: %v", err)
	}
	if recu.Telephone != "+224628407335" {
		t.Fatalf("téléphone stocké %q, attendu +224628407335", recu.Telephone)
	}
}

func TestCreateTelephoneInvalideNAtteintPasLeRepo(t *testing.T) {
	appele := false
	repo := &stubRepo{
		createFn: func(ctx context.Context, input CreateInput) (*Locataire, error) {
			appele = true
			return nil, nil
		},
	}
	svc := NewService(repo)

	_, err := svc.Create(context.Background(), CreateInput{
		Nom:       "Diallo",
		Prenom:    "Mamadou",
		Telephone: "6283",
	})
	if !errors.Is(err, util.ErrTelephoneInvalide) {
		t.Fatalf("erreur attendue ErrTelephoneInvalide, obtenu %v", err)
	}
	if appele {
		t.Fatal("le repo ne doit pas être appelé sur téléphone invalide")
	}
}

func TestGetByTelephoneNormaliseAvantRecherche(t *testing.T) {
	var cherche string
	repo := &stubRepo{
		getByTelFn: func(ctx context.Context, telephone string) (*Locataire, error) {
			cherche = telephone
			return &Locataire{Telephone: telephone}, nil
		},
	}
	svc := NewService(repo)

	if _, err := svc.GetByTelephone(context.Background(), "00224 628 40 73 35"); err != nil {
		t.Fatalf("recherche: %v", err)
	}
	if cherche != "+224628407335" {
		t.Fatalf("recherche avec %q, attendu +224628407335", cherche)
	}
}

func TestUpdateTransmetLaFinDeBail(t *testing.T) {
	var recu UpdateInput
	repo := &stubRepo{
		updateFn: func(ctx context.Context, id uuid.UUID, input UpdateInput) (*Locataire, error) {
			recu = input
			return &Locataire{ID: id}, nil
		},
	}
	svc := NewService(repo)

	finBail := time.Date(2027, 6, 30, 0, 0, 0, 0, time.UTC)
	_, err := svc.Update(context.Background(), uuid.New(), UpdateInput{
		Nom:         "Diallo",
		Prenom:      "Mamadou",
		Telephone:   "628407335",
		DateFinBail: &finBail,
	})
	if err != nil {
		t.Fatalf("mise à jour: %v", err)
	}
	if recu.DateFinBail == nil || !recu.DateFinBail.Equal(finBail) {
		t.Fatalf("fin de bail transmise %v, attendu %v", recu.DateFinBail, finBail)
	}
}

func TestAffecterDateParDefaut(t *testing.T) {
	var entree time.Time
	repo := &stubRepo{
		affecterFn: func(ctx context.Context, locataireID, immeubleID, appartementID uuid.UUID, e time.Time) (*Locataire, error) {
			entree = e
			return &Locataire{ID: locataireID}, nil
		},
	}
	svc := NewService(repo)

	_, err := svc.Affecter(context.Background(), uuid.New(), uuid.New(), uuid.New(), time.Time{})
	if err != nil {
		t.Fatalf("affectation: %v", err)
	}
	if entree.IsZero() {
		t.Fatal("la date d'entrée doit être renseignée par défaut")
	}
}

func TestArchiveDepuisSnapshot(t *testing.T) {
	sortie := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	entree := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	email := "a@exemple.com"
	app := &immeuble.Appartement{
		ID:         uuid.New(),
		ImmeubleID: uuid.New(),
		Numero:     "A001",
		Statut:     immeuble.StatutOccupe,
		LocataireActuel: &immeuble.LocataireActuel{
			LocataireID: uuid.New(),
			Nom:         "Diallo",
			Prenom:      "Mamadou",
			Telephone:   "+224628407335",
			Email:       &email,
			DateEntree:  entree,
		},
	}

	h, ok := ArchiveDepuisSnapshot(app, sortie)
	if !ok {
		t.Fatal("un appartement occupé doit produire une archive")
	}
	if h.AppartementID != app.ID || h.LocataireID != app.LocataireActuel.LocataireID {
		t.Fatal("l'archive doit référencer l'appartement et l'occupant")
	}
	if !h.DateEntree.Equal(entree) || !h.DateSortie.Equal(sortie) {
		t.Fatalf("bornes d'occupation incorrectes: %v → %v", h.DateEntree, h.DateSortie)
	}
	if h.Nom != "Diallo" || h.Telephone != "+224628407335" {
		t.Fatal("l'archive doit copier l'instantané occupant")
	}
}

func TestArchiveDepuisSnapshotAppartementLibre(t *testing.T) {
	app := &immeuble.Appartement{ID: uuid.New(), Statut: immeuble.StatutLibre}
	if _, ok := ArchiveDepuisSnapshot(app, time.Now()); ok {
		t.Fatal("un appartement libre ne produit pas d'archive")
	}
}
