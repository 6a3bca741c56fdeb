package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gestimmo/api/internal/auth"
	"github.com/gestimmo/api/internal/compte"
	"github.com/gestimmo/api/internal/locataire"
)

// memTokens garde les refresh tokens en mémoire pour exercer la
// rotation complète.
type memTokens struct {
	parHash map[string]*TokenRefresh
}

func newMemTokens() *memTokens {
	return &memTokens{parHash: map[string]*TokenRefresh{}}
}

func (m *memTokens) Insert(ctx context.Context, t TokenRefresh) error {
	copie := t
	m.parHash[t.TokenHash] = &copie
	return nil
}

func (m *memTokens) GetByHash(ctx context.Context, hash string) (*TokenRefresh, error) {
	t, ok := m.parHash[hash]
	if !ok {
		return nil, ErrTokenNotFound
	}
	copie := *t
	return &copie, nil
}

func (m *memTokens) Revoke(ctx context.Context, hash string) error {
	t, ok := m.parHash[hash]
	if !ok {
		return ErrTokenNotFound
	}
	t.Revoque = true
	return nil
}

func (m *memTokens) RevokeOthers(ctx context.Context, subject uuid.UUID, audience, keepHash string) error {
	for hash, t := range m.parHash {
		if t.Subject == subject && t.Audience == audience && hash != keepHash {
			t.Revoque = true
		}
	}
	return nil
}

type memComptes struct {
	parEmail map[string]*compte.Utilisateur
}

func (m *memComptes) GetByEmail(ctx context.Context, email string) (*compte.Utilisateur, error) {
	if u, ok := m.parEmail[email]; ok {
		return u, nil
	}
	return nil, compte.ErrNotFound
}

func (m *memComptes) Get(ctx context.Context, id uuid.UUID) (*compte.Utilisateur, error) {
	for _, u := range m.parEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, compte.ErrNotFound
}

func (m *memComptes) Affectations(ctx context.Context, id uuid.UUID) ([]compte.Affectation, error) {
	return nil, nil
}

func (m *memComptes) TouchDernierAcces(ctx context.Context, id uuid.UUID) error { return nil }

func newRotationService(t *testing.T) (*AuthService, *memTokens, *stubRedis, *memComptes) {
	t.Helper()
	hash, err := auth.Hash("tres-bon-mot-de-passe")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	comptes := &memComptes{parEmail: map[string]*compte.Utilisateur{
		"fatou@gestimmo.app": {
			ID:             uuid.New(),
			Nom:            "Barry",
			Prenom:         "Fatou",
			Email:          "fatou@gestimmo.app",
			MotDePasseHash: hash,
			Role:           "ADMIN",
			Actif:          true,
		},
	}}
	locs := &stubLocataires{parTelephone: map[string]*locataire.Locataire{}}
	tokens := newMemTokens()
	rds := newStubRedis()
	svc := NewAuthService(comptes, locs, tokens, nil, rds,
		auth.NewJWTManager("secret-de-test", 15*time.Minute), &stubSMS{}, 720*time.Hour)
	return svc, tokens, rds, comptes
}

func TestRefreshFaitTournerLeJeton(t *testing.T) {
	svc, tokens, rds, _ := newRotationService(t)
	ctx := context.Background()

	login, err := svc.LoginBackoffice(ctx, "Fatou@Gestimmo.app", "tres-bon-mot-de-passe")
	if err != nil {
		t.Fatalf("LoginBackoffice: %v", err)
	}

	rotated, err := svc.Refresh(ctx, "backoffice", login.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if rotated.RefreshToken == login.RefreshToken {
		t.Fatal("la rotation doit émettre un nouveau refresh token")
	}
	if rotated.Subject != login.Subject {
		t.Fatal("le sujet doit être conservé à travers la rotation")
	}

	// L'ancien jeton est révoqué en base et absent de Redis.
	ancien := tokens.parHash[login.RefreshHash]
	if ancien == nil || !ancien.Revoque {
		t.Fatal("l'ancien refresh token doit être révoqué en base")
	}
	if _, ok := rds.data[auth.RefreshRedisKey("backoffice", login.RefreshHash)]; ok {
		t.Fatal("l'ancien refresh token doit être purgé de Redis")
	}

	if _, err := svc.Refresh(ctx, "backoffice", login.RefreshToken); !errors.Is(err, ErrRefreshInvalide) {
		t.Fatalf("rejouer l'ancien jeton: err = %v, attendu ErrRefreshInvalide", err)
	}

	// Le nouveau jeton reste utilisable.
	if _, err := svc.Refresh(ctx, "backoffice", rotated.RefreshToken); err != nil {
		t.Fatalf("Refresh avec le jeton tourné: %v", err)
	}
}

func TestRefreshRejetteLaMauvaiseAudience(t *testing.T) {
	svc, _, _, _ := newRotationService(t)
	ctx := context.Background()

	login, err := svc.LoginBackoffice(ctx, "fatou@gestimmo.app", "tres-bon-mot-de-passe")
	if err != nil {
		t.Fatalf("LoginBackoffice: %v", err)
	}

	if _, err := svc.Refresh(ctx, "locataire", login.RefreshToken); !errors.Is(err, ErrRefreshInvalide) {
		t.Fatalf("err = %v, attendu ErrRefreshInvalide", err)
	}
}

func TestLogoutInvalideLeRefresh(t *testing.T) {
	svc, _, _, _ := newRotationService(t)
	ctx := context.Background()

	login, err := svc.LoginBackoffice(ctx, "fatou@gestimmo.app", "tres-bon-mot-de-passe")
	if err != nil {
		t.Fatalf("LoginBackoffice: %v", err)
	}

	if err := svc.Logout(ctx, "backoffice", login.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.Refresh(ctx, "backoffice", login.RefreshToken); !errors.Is(err, ErrRefreshInvalide) {
		t.Fatalf("err = %v, attendu ErrRefreshInvalide", err)
	}
}

func TestLoginBackofficeRefuseLesMauvaisIdentifiants(t *testing.T) {
	svc, _, _, comptes := newRotationService(t)
	ctx := context.Background()

	if _, err := svc.LoginBackoffice(ctx, "fatou@gestimmo.app", "mauvais"); !errors.Is(err, ErrIdentifiantsInvalides) {
		t.Fatalf("mauvais mot de passe: err = %v", err)
	}
	if _, err := svc.LoginBackoffice(ctx, "inconnu@gestimmo.app", "peu importe"); !errors.Is(err, ErrIdentifiantsInvalides) {
		t.Fatalf("compte inconnu: err = %v", err)
	}

	comptes.parEmail["fatou@gestimmo.app"].Actif = false
	if _, err := svc.LoginBackoffice(ctx, "fatou@gestimmo.app", "tres-bon-mot-de-passe"); !errors.Is(err, ErrCompteDesactive) {
		t.Fatalf("compte désactivé: err = %v", err)
	}
}
