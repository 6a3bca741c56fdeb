package compte

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gestimmo/api/internal/auth"
	"github.com/gestimmo/api/internal/permission"
)

type stubRepo struct {
	invitations map[string]*Invitation
	crees       []*Utilisateur
}

func newStubRepo() *stubRepo {
	return &stubRepo{invitations: map[string]*Invitation{}}
}

func (s *stubRepo) CreateUtilisateur(ctx context.Context, u *Utilisateur, affectations []Affectation) (*Utilisateur, error) {
	u.ID = uuid.New()
	s.crees = append(s.crees, u)
	return u, nil
}

func (s *stubRepo) GetByEmail(ctx context.Context, email string) (*Utilisateur, error) {
	return nil, ErrNotFound
}

func (s *stubRepo) GetByID(ctx context.Context, id uuid.UUID) (*Utilisateur, error) {
	return nil, ErrNotFound
}

func (s *stubRepo) List(ctx context.Context) ([]Utilisateur, error) { return nil, nil }

func (s *stubRepo) Update(ctx context.Context, id uuid.UUID, nom, prenom, role string, actif bool) (*Utilisateur, error) {
	return nil, ErrNotFound
}

func (s *stubRepo) UpdateMotDePasse(ctx context.Context, id uuid.UUID, hash string) error {
	return nil
}

func (s *stubRepo) TouchDernierAcces(ctx context.Context, id uuid.UUID) error { return nil }

func (s *stubRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }

func (s *stubRepo) ReplaceAffectations(ctx context.Context, utilisateurID uuid.UUID, affectations []Affectation) error {
	return nil
}

func (s *stubRepo) ListAffectations(ctx context.Context, utilisateurID uuid.UUID) ([]Affectation, error) {
	return nil, nil
}

func (s *stubRepo) ChargerContexte(ctx context.Context, utilisateurID uuid.UUID) (*permission.Contexte, error) {
	return nil, ErrNotFound
}

func (s *stubRepo) CreateInvitation(ctx context.Context, inv *Invitation) (*Invitation, error) {
	inv.ID = uuid.New()
	inv.CreeLe = time.Now().UTC()
	s.invitations[inv.TokenHash] = inv
	return inv, nil
}

func (s *stubRepo) ListInvitations(ctx context.Context) ([]Invitation, error) { return nil, nil }

func (s *stubRepo) ConsommerInvitation(ctx context.Context, tokenHash string, u *Utilisateur) (*Utilisateur, error) {
	inv, ok := s.invitations[tokenHash]
	if !ok {
		return nil, ErrInvitationInvalide
	}
	if inv.ConsommeeLe != nil {
		return nil, ErrInvitationConsommee
	}
	if inv.EstExpiree(time.Now().UTC()) {
		return nil, ErrInvitationExpiree
	}
	now := time.Now().UTC()
	inv.ConsommeeLe = &now
	u.Nom = inv.Nom
	u.Prenom = inv.Prenom
	u.Telephone = inv.Telephone
	u.Email = inv.Email
	u.Role = inv.Role
	return s.CreateUtilisateur(ctx, u, inv.Affectations)
}

type stubMailer struct {
	to    string
	corps string
}

func (m *stubMailer) Send(ctx context.Context, to, subject, html string) error {
	m.to = to
	m.corps = html
	return nil
}

func TestInviterStockeLEmpreinteEtEnvoieLeLien(t *testing.T) {
	repo := newStubRepo()
	mailer := &stubMailer{}
	svc := NewService(repo, mailer, "https://app.gestimmo.test", 7*24*time.Hour)

	inv, err := svc.Inviter(context.Background(), InviterInput{
		Email:     "gerant@exemple.com",
		Nom:       "Barry",
		Prenom:    "Fatou",
		Role:      permission.RoleGestionnaire,
		CreeParID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("invitation: %v", err)
	}
	if mailer.to != "gerant@exemple.com" {
		t.Fatalf("e-mail envoyé à %q", mailer.to)
	}
	if strings.Contains(mailer.corps, inv.TokenHash) {
		t.Fatal("l'e-mail ne doit pas contenir l'empreinte, seulement le jeton en clair")
	}
	if !strings.Contains(mailer.corps, "https://app.gestimmo.test/invitation/") {
		t.Fatalf("lien d'invitation absent du corps: %s", mailer.corps)
	}

	// Le jeton en clair de l'e-mail doit se résoudre vers l'empreinte
	// stockée.
	debut := strings.Index(mailer.corps, "/invitation/") + len("/invitation/")
	fin := strings.Index(mailer.corps[debut:], `"`)
	raw := mailer.corps[debut : debut+fin]
	if _, ok := repo.invitations[auth.HashToken(raw)]; !ok {
		t.Fatal("le jeton du lien ne correspond à aucune invitation stockée")
	}
}

func TestAccepterInvitationUneSeuleFois(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, &stubMailer{}, "https://app.gestimmo.test", 7*24*time.Hour)

	raw, hash, err := auth.GenerateToken()
	if err != nil {
		t.Fatal(err)
	}
	repo.invitations[hash] = &Invitation{
		ID:       uuid.New(),
		Email:    "gerant@exemple.com",
		Nom:      "Barry",
		Prenom:   "Fatou",
		Role:     permission.RoleGestionnaire,
		ExpireLe: time.Now().Add(time.Hour),
	}

	u, err := svc.AccepterInvitation(context.Background(), AccepterInput{
		Token:      raw,
		MotDePasse: "motdepasse1",
	})
	if err != nil {
		t.Fatalf("acceptation: %v", err)
	}
	if u.Email != "gerant@exemple.com" || u.Role != permission.RoleGestionnaire {
		t.Fatal("e-mail et rôle doivent provenir de l'invitation")
	}
	if u.MotDePasseHash == "motdepasse1" || u.MotDePasseHash == "" {
		t.Fatal("le mot de passe doit être stocké haché")
	}

	_, err = svc.AccepterInvitation(context.Background(), AccepterInput{
		Token:      raw,
		MotDePasse: "motdepasse1",
	})
	if !errors.Is(err, ErrInvitationConsommee) {
		t.Fatalf("seconde acceptation: attendu ErrInvitationConsommee, obtenu %v", err)
	}
}

func TestAccepterInvitationExpiree(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, &stubMailer{}, "https://app.gestimmo.test", 7*24*time.Hour)

	raw, hash, err := auth.GenerateToken()
	if err != nil {
		t.Fatal(err)
	}
	repo.invitations[hash] = &Invitation{
		ID:       uuid.New(),
		Email:    "gerant@exemple.com",
		Nom:      "Barry",
		Role:     permission.RoleGestionnaire,
		ExpireLe: time.Now().Add(-time.Minute),
	}

	_, err = svc.AccepterInvitation(context.Background(), AccepterInput{
		Token:      raw,
		MotDePasse: "motdepasse1",
	})
	if !errors.Is(err, ErrInvitationExpiree) {
		t.Fatalf("attendu ErrInvitationExpiree, obtenu %v", err)
	}
}

func TestAccepterInvitationJetonInconnu(t *testing.T) {
	svc := NewService(newStubRepo(), &stubMailer{}, "https://app.gestimmo.test", 7*24*time.Hour)

	_, err := svc.AccepterInvitation(context.Background(), AccepterInput{
		Token:      "jeton-bidon",
		MotDePasse: "motdepasse1",
	})
	if !errors.Is(err, ErrInvitationInvalide) {
		t.Fatalf("attendu ErrInvitationInvalide, obtenu %v", err)
	}
}

func TestInvitationPorteLIdentiteEtLaMaterialise(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, &stubMailer{}, "https://app.gestimmo.test", 7*24*time.Hour)

	tel := "00224 628 40 73 35"
	inv, err := svc.Inviter(context.Background(), InviterInput{
		Email:     "gerant@exemple.com",
		Nom:       "Diallo",
		Prenom:    "Mamadou",
		Telephone: &tel,
		Role:      permission.RoleGestionnaire,
		CreeParID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("invitation: %v", err)
	}
	if inv.Nom != "Diallo" || inv.Prenom != "Mamadou" {
		t.Fatalf("identité non stockée sur l'invitation: %q %q", inv.Nom, inv.Prenom)
	}
	if inv.Telephone == nil || *inv.Telephone != "+224628407335" {
		t.Fatalf("téléphone non normalisé sur l'invitation: %v", inv.Telephone)
	}

	// Ré-indexe l'invitation sous un jeton connu du test pour
	// l'accepter sans relire l'e-mail.
	raw, hash, err := auth.GenerateToken()
	if err != nil {
		t.Fatal(err)
	}
	repo.invitations[hash] = inv

	u, err := svc.AccepterInvitation(context.Background(), AccepterInput{
		Token:      raw,
		MotDePasse: "motdepasse1",
	})
	if err != nil {
		t.Fatalf("acceptation: %v", err)
	}
	if u.Nom != "Diallo" || u.Prenom != "Mamadou" {
		t.Fatalf("le compte doit porter l'identité de l'invitation, obtenu %q %q", u.Nom, u.Prenom)
	}
	if u.Telephone == nil || *u.Telephone != "+224628407335" {
		t.Fatalf("le compte doit porter le téléphone de l'invitation, obtenu %v", u.Telephone)
	}
}

func TestInviterExigeUnNom(t *testing.T) {
	svc := NewService(newStubRepo(), &stubMailer{}, "https://app.gestimmo.test", 7*24*time.Hour)

	_, err := svc.Inviter(context.Background(), InviterInput{
		Email:     "gerant@exemple.com",
		Role:      permission.RoleGestionnaire,
		CreeParID: uuid.New(),
	})
	if err == nil {
		t.Fatal("une invitation sans nom doit être refusée")
	}
}
