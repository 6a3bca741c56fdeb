package immeuble

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestNormalizeType(t *testing.T) {
	cas := []struct {
		entree string
		sortie string
	}{
		{"habitation", TypeHabitation},
		{" Habitation ", TypeHabitation},
		{"COMMERCIAL", TypeCommercial},
		{"mixte", TypeMixte},
		{"bureau", ""},
		{"", ""},
	}
	for _, c := range cas {
		if got := NormalizeType(c.entree); got != c.sortie {
			t.Errorf("NormalizeType(%q) = %q, attendu %q", c.entree, got, c.sortie)
		}
	}
}

func TestCreateValideLesEntrees(t *testing.T) {
	svc := NewService(nil)
	ctx := context.Background()

	base := CreateInput{
		Nom:                "Résidence Kipé",
		Type:               "habitation",
		NombreAppartements: 12,
		Proprietaire:       Proprietaire{Nom: "Camara"},
	}

	cas := []struct {
		nom     string
		mutate  func(*CreateInput)
		message string
	}{
		{"nom vide", func(in *CreateInput) { in.Nom = "" }, "nom obligatoire"},
		{"type inconnu", func(in *CreateInput) { in.Type = "bureau" }, "type d'immeuble invalide"},
		{"nombre négatif", func(in *CreateInput) { in.NombreAppartements = -1 }, "nombre d'appartements invalide"},
		{"nombre excessif", func(in *CreateInput) { in.NombreAppartements = 501 }, "nombre d'appartements invalide"},
		{"propriétaire vide", func(in *CreateInput) { in.Proprietaire.Nom = "" }, "propriétaire obligatoire"},
	}
	for _, c := range cas {
		t.Run(c.nom, func(t *testing.T) {
			in := base
			c.mutate(&in)
			_, err := svc.Create(ctx, in)
			if err == nil || err.Error() != c.message {
				t.Fatalf("err = %v, attendu %q", err, c.message)
			}
		})
	}
}

func TestChangeOwnerExigeUnNom(t *testing.T) {
	svc := NewService(nil)
	if _, err := svc.ChangeOwner(context.Background(), uuid.Nil, Proprietaire{}); err == nil {
		t.Fatal("un propriétaire sans nom doit être refusé")
	}
}
