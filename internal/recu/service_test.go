package recu

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gestimmo/api/internal/storage"
)

type stubRepo struct {
	recus map[uuid.UUID]*Recu
}

func newStubRepo() *stubRepo {
	return &stubRepo{recus: map[uuid.UUID]*Recu{}}
}

func (s *stubRepo) Create(ctx context.Context, rec *Recu) (*Recu, error) {
	rec.Statut = StatutEnAttente
	rec.CreeLe = time.Now().UTC()
	s.recus[rec.ID] = rec
	return rec, nil
}

func (s *stubRepo) GetByID(ctx context.Context, id uuid.UUID) (*Recu, error) {
	rec, ok := s.recus[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (s *stubRepo) ListByImmeuble(ctx context.Context, immeubleID uuid.UUID, statut string) ([]Recu, error) {
	return nil, nil
}

func (s *stubRepo) ListByLocataire(ctx context.Context, locataireID uuid.UUID) ([]Recu, error) {
	return nil, nil
}

func (s *stubRepo) Review(ctx context.Context, input ReviewInput) (*Recu, error) {
	rec, ok := s.recus[input.RecuID]
	if !ok {
		return nil, ErrNotFound
	}
	if rec.Statut != StatutEnAttente {
		return nil, ErrDejaRevu
	}
	if input.Montant > 0 {
		rec.Montant = input.Montant
	}
	if input.Approuve && rec.Montant <= 0 {
		return nil, ErrMontantRequis
	}
	if input.Approuve {
		rec.Statut = StatutApprouve
	} else {
		rec.Statut = StatutRejete
	}
	if input.Description != nil {
		rec.Description = *input.Description
	}
	if input.Commentaire != "" {
		rec.Commentaire = &input.Commentaire
	}
	now := time.Now().UTC()
	rec.RevuParID = &input.RevuParID
	rec.RevuLe = &now
	return rec, nil
}

func (s *stubRepo) SommeApprouvee(ctx context.Context, immeubleID uuid.UUID, debut, fin string) (int64, error) {
	var total int64
	for _, rec := range s.recus {
		if rec.ImmeubleID == immeubleID && rec.Statut == StatutApprouve &&
			rec.Periode >= debut && rec.Periode <= fin {
			total += rec.Montant
		}
	}
	return total, nil
}

func (s *stubRepo) ParMois(ctx context.Context, immeubleID uuid.UUID, debut, fin string) (map[string]int64, error) {
	out := map[string]int64{}
	for _, rec := range s.recus {
		if rec.ImmeubleID == immeubleID && rec.Statut == StatutApprouve &&
			rec.Periode >= debut && rec.Periode <= fin {
			out[rec.Periode] += rec.Montant
		}
	}
	return out, nil
}

func (s *stubRepo) MoisReglesParLocataire(ctx context.Context, immeubleID uuid.UUID, debut, fin string) (map[uuid.UUID]int, error) {
	periodes := map[uuid.UUID]map[string]bool{}
	for _, rec := range s.recus {
		if rec.ImmeubleID != immeubleID || rec.Statut != StatutApprouve {
			continue
		}
		premier, err := time.Parse("2006-01", rec.Periode)
		if err != nil {
			continue
		}
		n := rec.NombreMois
		if n < 1 {
			n = 1
		}
		for i := 0; i < n; i++ {
			mois := premier.AddDate(0, i, 0).Format("2006-01")
			if mois < debut || mois > fin {
				continue
			}
			if periodes[rec.LocataireID] == nil {
				periodes[rec.LocataireID] = map[string]bool{}
			}
			periodes[rec.LocataireID][mois] = true
		}
	}
	out := map[uuid.UUID]int{}
	for id, mois := range periodes {
		out[id] = len(mois)
	}
	return out, nil
}

type stubUploader struct {
	key string
}

func (u *stubUploader) Upload(ctx context.Context, input storage.UploadInput) (*storage.UploadResult, error) {
	u.key = input.Key
	return &storage.UploadResult{URL: "https://cdn.gestimmo.test/" + input.Key}, nil
}

func deposerValide(t *testing.T, svc *Service, immeubleID uuid.UUID) *Recu {
	t.Helper()
	rec, err := svc.Deposer(context.Background(), CreateInput{
		LocataireID:   uuid.New(),
		AppartementID: uuid.New(),
		ImmeubleID:    immeubleID,
		Periode:       "2026-03",
		Montant:       1_500_000,
		Description:   "loyer mars",
		Fichier:       []byte("fake-jpeg"),
		NomFichier:    "recu.jpg",
		ContentType:   "image/jpeg",
	})
	if err != nil {
		t.Fatalf("dépôt: %v", err)
	}
	return rec
}

func TestDeposerConstruitLaCleEtLURL(t *testing.T) {
	uploader := &stubUploader{}
	svc := NewService(newStubRepo(), uploader)
	immeubleID := uuid.New()

	rec := deposerValide(t, svc, immeubleID)

	if !strings.HasPrefix(uploader.key, "recus/"+immeubleID.String()+"/") || !strings.HasSuffix(uploader.key, ".jpg") {
		t.Fatalf("clé d'objet inattendue: %s", uploader.key)
	}
	if rec.Statut != StatutEnAttente {
		t.Fatalf("statut initial %q, attendu en_attente", rec.Statut)
	}
	if !strings.Contains(rec.FichierURL, uploader.key) {
		t.Fatalf("URL du justificatif incohérente: %s", rec.FichierURL)
	}
}

func TestDeposerRejetteLesPeriodesInvalides(t *testing.T) {
	svc := NewService(newStubRepo(), &stubUploader{})

	_, err := svc.Deposer(context.Background(), CreateInput{
		Periode:     "mars 2026",
		Montant:     1000,
		Fichier:     []byte("x"),
		ContentType: "image/jpeg",
	})
	if !errors.Is(err, ErrPeriodeInvalide) {
		t.Fatalf("attendu ErrPeriodeInvalide, obtenu %v", err)
	}
}

func TestDeposerRejetteLesTypesInconnus(t *testing.T) {
	svc := NewService(newStubRepo(), &stubUploader{})

	_, err := svc.Deposer(context.Background(), CreateInput{
		Periode:     "2026-03",
		Montant:     1000,
		Fichier:     []byte("x"),
		ContentType: "application/zip",
	})
	if err == nil {
		t.Fatal("un type de fichier inconnu doit être refusé")
	}
}

func TestDeposerSansMontantPuisSaisieEnRevue(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, &stubUploader{})

	// Le locataire ne déclare ni montant ni description: le reçu part
	// quand même en revue, sur trois mois couverts.
	rec, err := svc.Deposer(context.Background(), CreateInput{
		LocataireID:   uuid.New(),
		AppartementID: uuid.New(),
		ImmeubleID:    uuid.New(),
		Periode:       "2026-01",
		NombreMois:    3,
		Fichier:       []byte("fake-jpeg"),
		NomFichier:    "recu.jpg",
		ContentType:   "image/jpeg",
	})
	if err != nil {
		t.Fatalf("dépôt: %v", err)
	}
	if rec.NombreMois != 3 {
		t.Fatalf("nombre de mois %d, attendu 3", rec.NombreMois)
	}
	if rec.Montant != 0 {
		t.Fatalf("montant %d, attendu 0 avant revue", rec.Montant)
	}

	// Approuver sans montant est refusé.
	_, err = svc.Revoir(context.Background(), ReviewInput{
		RecuID:    rec.ID,
		RevuParID: uuid.New(),
		Approuve:  true,
	})
	if !errors.Is(err, ErrMontantRequis) {
		t.Fatalf("approbation sans montant: err = %v, attendu ErrMontantRequis", err)
	}

	// Le réviseur saisit montant et description, l'approbation passe.
	description := "loyer janvier à mars"
	revu, err := svc.Revoir(context.Background(), ReviewInput{
		RecuID:      rec.ID,
		RevuParID:   uuid.New(),
		Approuve:    true,
		Montant:     4_500_000,
		Description: &description,
	})
	if err != nil {
		t.Fatalf("revue: %v", err)
	}
	if revu.Montant != 4_500_000 || revu.Description != description {
		t.Fatal("montant et description saisis en revue doivent être conservés")
	}
}

func TestMoisReglesCouvrePlusieursMois(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, &stubUploader{})
	immeubleID := uuid.New()
	locataireID := uuid.New()

	rec, err := svc.Deposer(context.Background(), CreateInput{
		LocataireID:   locataireID,
		AppartementID: uuid.New(),
		ImmeubleID:    immeubleID,
		Periode:       "2026-02",
		NombreMois:    4,
		Fichier:       []byte("fake-pdf"),
		NomFichier:    "recu.pdf",
		ContentType:   "application/pdf",
	})
	if err != nil {
		t.Fatalf("dépôt: %v", err)
	}
	if _, err := svc.Revoir(context.Background(), ReviewInput{
		RecuID:    rec.ID,
		RevuParID: uuid.New(),
		Approuve:  true,
		Montant:   6_000_000,
	}); err != nil {
		t.Fatalf("revue: %v", err)
	}

	regles, err := svc.MoisReglesParLocataire(context.Background(), immeubleID, "2026-01", "2026-12")
	if err != nil {
		t.Fatalf("agrégat: %v", err)
	}
	if regles[locataireID] != 4 {
		t.Fatalf("mois réglés = %d, attendu 4 (février à mai)", regles[locataireID])
	}
}

func TestRevueEstTerminale(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, &stubUploader{})
	rec := deposerValide(t, svc, uuid.New())

	revu, err := svc.Revoir(context.Background(), ReviewInput{
		RecuID:    rec.ID,
		RevuParID: uuid.New(),
		Approuve:  true,
	})
	if err != nil {
		t.Fatalf("revue: %v", err)
	}
	if revu.Statut != StatutApprouve {
		t.Fatalf("statut %q, attendu approuve", revu.Statut)
	}

	_, err = svc.Revoir(context.Background(), ReviewInput{
		RecuID:      rec.ID,
		RevuParID:   uuid.New(),
		Approuve:    false,
		Commentaire: "doublon",
	})
	if !errors.Is(err, ErrDejaRevu) {
		t.Fatalf("seconde revue: attendu ErrDejaRevu, obtenu %v", err)
	}
}

func TestRejetDoitEtreCommente(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, &stubUploader{})
	rec := deposerValide(t, svc, uuid.New())

	_, err := svc.Revoir(context.Background(), ReviewInput{
		RecuID:    rec.ID,
		RevuParID: uuid.New(),
		Approuve:  false,
	})
	if err == nil {
		t.Fatal("un rejet sans commentaire doit être refusé")
	}
	if repo.recus[rec.ID].Statut != StatutEnAttente {
		t.Fatal("le reçu doit rester en attente après un rejet invalide")
	}
}
