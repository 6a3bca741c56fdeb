package service

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gestimmo/api/internal/auth"
	"github.com/gestimmo/api/internal/compte"
	"github.com/gestimmo/api/internal/locataire"
	"github.com/gestimmo/api/internal/util"
)

type stubRedis struct {
	data map[string]string
}

func newStubRedis() *stubRedis {
	return &stubRedis{data: map[string]string{}}
}

func (r *stubRedis) Set(ctx context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case string:
		r.data[key] = v
	default:
		r.data[key] = ""
	}
	return redis.NewStatusResult("OK", nil)
}

func (r *stubRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := r.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (r *stubRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := r.data[k]; ok {
			delete(r.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (r *stubRedis) Incr(ctx context.Context, key string) *redis.IntCmd {
	n, _ := strconv.ParseInt(r.data[key], 10, 64)
	n++
	r.data[key] = strconv.FormatInt(n, 10)
	return redis.NewIntResult(n, nil)
}

func (r *stubRedis) Expire(ctx context.Context, key string, _ time.Duration) *redis.BoolCmd {
	_, ok := r.data[key]
	return redis.NewBoolResult(ok, nil)
}

func (r *stubRedis) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := r.data[k]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

type stubSMS struct {
	envois []string
}

func (s *stubSMS) Send(ctx context.Context, to, message string) error {
	s.envois = append(s.envois, message)
	return nil
}

type stubTokens struct {
	inserts int
	revoked []string
}

func (s *stubTokens) Insert(ctx context.Context, t TokenRefresh) error {
	s.inserts++
	return nil
}

func (s *stubTokens) GetByHash(ctx context.Context, hash string) (*TokenRefresh, error) {
	return nil, ErrTokenNotFound
}

func (s *stubTokens) Revoke(ctx context.Context, hash string) error {
	s.revoked = append(s.revoked, hash)
	return nil
}

func (s *stubTokens) RevokeOthers(ctx context.Context, subject uuid.UUID, audience, keepHash string) error {
	return nil
}

type stubComptes struct{}

func (stubComptes) GetByEmail(ctx context.Context, email string) (*compte.Utilisateur, error) {
	return nil, compte.ErrNotFound
}

func (stubComptes) Get(ctx context.Context, id uuid.UUID) (*compte.Utilisateur, error) {
	return nil, compte.ErrNotFound
}

func (stubComptes) Affectations(ctx context.Context, id uuid.UUID) ([]compte.Affectation, error) {
	return nil, nil
}

func (stubComptes) TouchDernierAcces(ctx context.Context, id uuid.UUID) error { return nil }

type stubLocataires struct {
	parTelephone map[string]*locataire.Locataire
}

func (s *stubLocataires) GetByTelephone(ctx context.Context, telephone string) (*locataire.Locataire, error) {
	if loc, ok := s.parTelephone[telephone]; ok {
		return loc, nil
	}
	return nil, locataire.ErrNotFound
}

func (s *stubLocataires) Fiche(ctx context.Context, id uuid.UUID) (*locataire.Fiche, error) {
	for _, loc := range s.parTelephone {
		if loc.ID == id {
			return &locataire.Fiche{Locataire: *loc}, nil
		}
	}
	return nil, locataire.ErrNotFound
}

var codeSMSRe = regexp.MustCompile(`\b(\d{6})\b`)

func newTestAuthService(t *testing.T) (*AuthService, *stubRedis, *stubSMS, *stubLocataires) {
	t.Helper()
	rds := newStubRedis()
	sms := &stubSMS{}
	locs := &stubLocataires{parTelephone: map[string]*locataire.Locataire{
		"+224628407335": {
			ID:        uuid.New(),
			Nom:       "Diallo",
			Prenom:    "Mamadou",
			Telephone: "+224628407335",
		},
	}}
	svc := NewAuthService(stubComptes{}, locs, &stubTokens{}, nil, rds,
		auth.NewJWTManager("secret-de-test", 15*time.Minute), sms, 720*time.Hour)
	return svc, rds, sms, locs
}

func TestConnexionSMSComplete(t *testing.T) {
	svc, rds, sms, locs := newTestAuthService(t)
	ctx := context.Background()

	if err := svc.DemanderCodeSMS(ctx, "628 40 73 35"); err != nil {
		t.Fatalf("DemanderCodeSMS: %v", err)
	}
	if len(sms.envois) != 1 {
		t.Fatalf("attendu 1 SMS, reçu %d", len(sms.envois))
	}

	code := codeSMSRe.FindString(sms.envois[0])
	if code == "" {
		t.Fatalf("pas de code à six chiffres dans le message %q", sms.envois[0])
	}

	// Seule l'empreinte est stockée, jamais le code en clair.
	if rds.data[cleCodeSMS("+224628407335")] != auth.HashToken(code) {
		t.Fatal("Redis doit contenir l'empreinte SHA-256 du code")
	}

	result, err := svc.VerifierCodeSMS(ctx, "00224628407335", code)
	if err != nil {
		t.Fatalf("VerifierCodeSMS: %v", err)
	}
	if result.Audience != "locataire" {
		t.Fatalf("audience = %q, attendu locataire", result.Audience)
	}
	if result.Subject != locs.parTelephone["+224628407335"].ID {
		t.Fatal("le sujet doit être l'identifiant du locataire")
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("les deux jetons doivent être émis")
	}

	claims, err := svc.JWT().ParseAndValidate(result.AccessToken)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Role != "LOCATAIRE" {
		t.Fatalf("role = %q, attendu LOCATAIRE", claims.Role)
	}

	// Le code est à usage unique.
	if _, err := svc.VerifierCodeSMS(ctx, "+224628407335", code); !errors.Is(err, ErrCodeInvalide) {
		t.Fatalf("second usage: err = %v, attendu ErrCodeInvalide", err)
	}
}

func TestDemanderCodeSMSNormaliseLeNumero(t *testing.T) {
	svc, rds, sms, _ := newTestAuthService(t)
	ctx := context.Background()

	// Forme internationale 00: le service normalise lui-même, sans
	// dépendre d'un appelant qui l'aurait déjà fait.
	if err := svc.DemanderCodeSMS(ctx, "00224 628 40 73 35"); err != nil {
		t.Fatalf("DemanderCodeSMS: %v", err)
	}
	if len(sms.envois) != 1 {
		t.Fatalf("attendu 1 SMS, reçu %d", len(sms.envois))
	}
	if _, ok := rds.data[cleCodeSMS("+224628407335")]; !ok {
		t.Fatal("l'empreinte doit être indexée par le numéro normalisé")
	}

	if err := svc.DemanderCodeSMS(ctx, "abc"); !errors.Is(err, util.ErrTelephoneInvalide) {
		t.Fatalf("numéro invalide: err = %v, attendu ErrTelephoneInvalide", err)
	}
}

func TestDemanderCodeSMSRespecteLeDelai(t *testing.T) {
	svc, _, sms, _ := newTestAuthService(t)
	ctx := context.Background()

	if err := svc.DemanderCodeSMS(ctx, "+224628407335"); err != nil {
		t.Fatalf("première demande: %v", err)
	}
	if err := svc.DemanderCodeSMS(ctx, "+224628407335"); !errors.Is(err, ErrRenvoiTropTot) {
		t.Fatalf("seconde demande: err = %v, attendu ErrRenvoiTropTot", err)
	}
	if len(sms.envois) != 1 {
		t.Fatalf("attendu 1 seul SMS, reçu %d", len(sms.envois))
	}
}

func TestDemanderCodeSMSTelephoneInconnu(t *testing.T) {
	svc, rds, sms, _ := newTestAuthService(t)

	// Un numéro inconnu ne doit ni échouer ni déclencher d'envoi.
	if err := svc.DemanderCodeSMS(context.Background(), "+224611111111"); err != nil {
		t.Fatalf("DemanderCodeSMS: %v", err)
	}
	if len(sms.envois) != 0 {
		t.Fatal("aucun SMS ne doit partir pour un numéro inconnu")
	}
	if len(rds.data) != 0 {
		t.Fatal("aucune clé Redis ne doit être créée pour un numéro inconnu")
	}
}

func TestVerifierCodeSMSEpuiseLesEssais(t *testing.T) {
	svc, rds, sms, _ := newTestAuthService(t)
	ctx := context.Background()

	if err := svc.DemanderCodeSMS(ctx, "+224628407335"); err != nil {
		t.Fatalf("DemanderCodeSMS: %v", err)
	}
	code := codeSMSRe.FindString(sms.envois[0])

	for i := 0; i < 5; i++ {
		if _, err := svc.VerifierCodeSMS(ctx, "+224628407335", "000000"); !errors.Is(err, ErrCodeInvalide) {
			t.Fatalf("essai %d: err = %v, attendu ErrCodeInvalide", i+1, err)
		}
	}

	// Au sixième essai le code est invalidé, même s'il est correct.
	if _, err := svc.VerifierCodeSMS(ctx, "+224628407335", code); !errors.Is(err, ErrTropDeTentatives) {
		t.Fatalf("err = %v, attendu ErrTropDeTentatives", err)
	}
	if _, ok := rds.data[cleCodeSMS("+224628407335")]; ok {
		t.Fatal("le code doit être supprimé après épuisement des essais")
	}
}
