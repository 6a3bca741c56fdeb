package permission

import (
	"testing"

	"github.com/google/uuid"
)

func TestSuperAdminToujoursVrai(t *testing.T) {
	ctx := &Contexte{Role: RoleSuperAdmin}
	inconnu := uuid.New()

	if !ctx.AccesImmeuble(inconnu) {
		t.Fatal("SUPER_ADMIN doit accéder à tout immeuble, même inexistant")
	}
	if !ctx.EcritureCompta(inconnu) || !ctx.SuppressionImmeuble(inconnu) {
		t.Fatal("SUPER_ADMIN doit passer tous les prédicats")
	}
}

func TestGestionnaireSansJeuRefuse(t *testing.T) {
	immeuble := uuid.New()
	ctx := &Contexte{
		Role:              RoleGestionnaire,
		ImmeublesAssignes: []uuid.UUID{immeuble},
		// aucun jeu pour cet immeuble: assigné mais sans entrée
	}

	if !ctx.AccesImmeuble(immeuble) {
		t.Fatal("l'accès se réduit à l'appartenance")
	}
	if ctx.EcritureCompta(immeuble) {
		t.Fatal("jeu absent: EcritureCompta doit refuser par défaut")
	}
	if ctx.LectureCompta(immeuble) || ctx.LectureStats(immeuble) || ctx.SuppressionImmeuble(immeuble) {
		t.Fatal("jeu absent: tout prédicat granulaire doit refuser")
	}
}

func TestGestionnaireJeuTypé(t *testing.T) {
	immeuble := uuid.New()
	autre := uuid.New()
	ctx := &Contexte{
		Role:              RoleGestionnaire,
		ImmeublesAssignes: []uuid.UUID{immeuble},
		Jeux: map[uuid.UUID]Jeu{
			immeuble: {
				GestionLocataires: true,
				Comptabilite:      Compta{Lecture: true, Export: true},
				Statistiques:      Stats{Lecture: true},
			},
		},
	}

	if !ctx.LectureCompta(immeuble) || !ctx.ExportCompta(immeuble) {
		t.Fatal("droits comptables accordés par le jeu")
	}
	if ctx.EcritureCompta(immeuble) {
		t.Fatal("écriture comptable absente du jeu")
	}
	if !ctx.EcritureLocataires(immeuble) {
		t.Fatal("gestion locataires accordée par le jeu")
	}
	if ctx.ExportStats(immeuble) {
		t.Fatal("export stats absent du jeu")
	}
	if ctx.LectureCompta(autre) || ctx.AccesImmeuble(autre) {
		t.Fatal("immeuble non assigné: tout doit refuser")
	}
}

func TestAdminSeReduitALAppartenance(t *testing.T) {
	assigne := uuid.New()
	nonAssigne := uuid.New()
	ctx := &Contexte{
		Role:              RoleAdmin,
		ImmeublesAssignes: []uuid.UUID{assigne},
		// Le jeu devrait être ignoré pour ADMIN, même entièrement à faux.
		Jeux: map[uuid.UUID]Jeu{assigne: {}},
	}

	predicats := map[string]func(uuid.UUID) bool{
		"AccesImmeuble":       ctx.AccesImmeuble,
		"GestionImmeuble":     ctx.GestionImmeuble,
		"EcritureLocataires":  ctx.EcritureLocataires,
		"LectureCompta":       ctx.LectureCompta,
		"EcritureCompta":      ctx.EcritureCompta,
		"ExportCompta":        ctx.ExportCompta,
		"LectureStats":        ctx.LectureStats,
		"ExportStats":         ctx.ExportStats,
		"SuppressionImmeuble": ctx.SuppressionImmeuble,
	}

	for nom, fn := range predicats {
		if !fn(assigne) {
			t.Fatalf("%s: ADMIN assigné doit être autorisé", nom)
		}
		if fn(nonAssigne) {
			t.Fatalf("%s: ADMIN non assigné doit être refusé", nom)
		}
	}
}
