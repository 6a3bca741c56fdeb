//go:build integration

package locataire

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"

	"github.com/gestimmo/api/migrations"
)

// Ces tests exigent une base PostgreSQL jetable:
//
//	TEST_DB_DSN=postgres://... go test -tags integration ./internal/locataire/
func newIntegrationRepo(t *testing.T) (*Repository, *pgxpool.Pool) {
	t.Helper()

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN non défini")
	}

	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		t.Fatalf("dialect: %v", err)
	}
	if err := goose.Up(db, "."); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return NewRepository(pool), pool
}

func seedAppartement(t *testing.T, pool *pgxpool.Pool) (immeubleID, appartementID uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	immeubleID = uuid.New()
	if _, err := pool.Exec(ctx, `
        INSERT INTO immeubles (id, nom, pays, ville, quartier, type, nombre_appartements,
                               proprietaire_nom, proprietaire_date_debut)
        VALUES ($1, $2, 'Guinée', 'Conakry', 'Kipé', 'habitation', 1, 'Camara', now())
    `, immeubleID, "Test "+immeubleID.String()[:8]); err != nil {
		t.Fatalf("seed immeuble: %v", err)
	}

	appartementID = uuid.New()
	if _, err := pool.Exec(ctx, `
        INSERT INTO appartements (id, immeuble_id, numero) VALUES ($1, $2, 'A001')
    `, appartementID, immeubleID); err != nil {
		t.Fatalf("seed appartement: %v", err)
	}
	return immeubleID, appartementID
}

func telephoneUnique(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("+2246%08d", time.Now().UnixNano()%100_000_000)
}

func TestAffectationParDessusOccupantArchiveLAncien(t *testing.T) {
	repo, pool := newIntegrationRepo(t)
	ctx := context.Background()
	immeubleID, appartementID := seedAppartement(t, pool)

	entreeA := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	locA, err := repo.Create(ctx, CreateInput{
		Nom: "Diallo", Prenom: "Mamadou", Telephone: telephoneUnique(t),
		ImmeubleID: immeubleID, AppartementID: &appartementID, DateEntree: &entreeA,
	})
	if err != nil {
		t.Fatalf("création A: %v", err)
	}

	locB, err := repo.Create(ctx, CreateInput{
		Nom: "Barry", Prenom: "Fatou", Telephone: telephoneUnique(t),
	})
	if err != nil {
		t.Fatalf("création B: %v", err)
	}

	// B par-dessus l'appartement occupé par A: exactement une ligne
	// d'historique, bornée par la date d'affectation de B.
	dateB := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if _, err := repo.Affecter(ctx, locB.ID, immeubleID, appartementID, dateB); err != nil {
		t.Fatalf("affectation B: %v", err)
	}

	var archives int
	if err := pool.QueryRow(ctx,
		`SELECT count(*) FROM historique_locataires WHERE appartement_id = $1`,
		appartementID).Scan(&archives); err != nil {
		t.Fatalf("count historique: %v", err)
	}
	if archives != 1 {
		t.Fatalf("historique = %d lignes, attendu 1", archives)
	}

	var archiveLoc uuid.UUID
	var archiveSortie time.Time
	if err := pool.QueryRow(ctx, `
        SELECT locataire_id, date_sortie FROM historique_locataires WHERE appartement_id = $1
    `, appartementID).Scan(&archiveLoc, &archiveSortie); err != nil {
		t.Fatalf("lecture historique: %v", err)
	}
	if archiveLoc != locA.ID {
		t.Fatal("l'archive doit porter l'ancien occupant")
	}
	if !archiveSortie.UTC().Equal(dateB) {
		t.Fatalf("date de sortie archivée %v, attendu %v", archiveSortie.UTC(), dateB)
	}

	// La fiche de A redevient sans logement, avec sa date de sortie.
	reluA, err := repo.GetByID(ctx, locA.ID)
	if err != nil {
		t.Fatalf("relecture A: %v", err)
	}
	if reluA.AppartementID != nil {
		t.Fatal("A ne doit plus être affecté")
	}
	if reluA.DateSortie == nil || !reluA.DateSortie.UTC().Equal(dateB) {
		t.Fatalf("date de sortie de A = %v, attendu %v", reluA.DateSortie, dateB)
	}

	// B est le seul occupant courant.
	var occupant uuid.UUID
	if err := pool.QueryRow(ctx,
		`SELECT locataire_id FROM appartements WHERE id = $1`, appartementID).Scan(&occupant); err != nil {
		t.Fatalf("lecture appartement: %v", err)
	}
	if occupant != locB.ID {
		t.Fatal("B doit être l'occupant courant")
	}
}

func TestLiberationArchiveEtFixeLaSortie(t *testing.T) {
	repo, pool := newIntegrationRepo(t)
	ctx := context.Background()
	immeubleID, appartementID := seedAppartement(t, pool)

	entree := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	loc, err := repo.Create(ctx, CreateInput{
		Nom: "Sow", Prenom: "Aissatou", Telephone: telephoneUnique(t),
		ImmeubleID: immeubleID, AppartementID: &appartementID, DateEntree: &entree,
	})
	if err != nil {
		t.Fatalf("création: %v", err)
	}

	sortie := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)
	libere, err := repo.Liberer(ctx, loc.ID, sortie)
	if err != nil {
		t.Fatalf("libération: %v", err)
	}
	if libere.DateSortie == nil || !libere.DateSortie.UTC().Equal(sortie) {
		t.Fatalf("date de sortie = %v, attendu %v", libere.DateSortie, sortie)
	}

	var archives int
	if err := pool.QueryRow(ctx,
		`SELECT count(*) FROM historique_locataires WHERE appartement_id = $1`,
		appartementID).Scan(&archives); err != nil {
		t.Fatalf("count historique: %v", err)
	}
	if archives != 1 {
		t.Fatalf("historique = %d lignes, attendu 1", archives)
	}

	var statut string
	var occupant *uuid.UUID
	if err := pool.QueryRow(ctx,
		`SELECT statut, locataire_id FROM appartements WHERE id = $1`, appartementID).
		Scan(&statut, &occupant); err != nil {
		t.Fatalf("lecture appartement: %v", err)
	}
	if statut != "libre" || occupant != nil {
		t.Fatal("l'appartement doit être libre, sans instantané occupant")
	}

	// La réaffectation rouvre la fiche.
	if _, err := repo.Affecter(ctx, loc.ID, immeubleID, appartementID, sortie.AddDate(0, 1, 0)); err != nil {
		t.Fatalf("réaffectation: %v", err)
	}
	relu, err := repo.GetByID(ctx, loc.ID)
	if err != nil {
		t.Fatalf("relecture: %v", err)
	}
	if relu.DateSortie != nil {
		t.Fatal("la réaffectation doit effacer la date de sortie")
	}
}
