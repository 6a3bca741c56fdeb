package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/gestimmo/api/internal/auth"
	"github.com/gestimmo/api/internal/compte"
	"github.com/gestimmo/api/internal/locataire"
	"github.com/gestimmo/api/internal/permission"
	"github.com/gestimmo/api/internal/util"
)

var (
	// ErrIdentifiantsInvalides signale un échec d'authentification.
	ErrIdentifiantsInvalides = compte.ErrIdentifiantsInvalides
	// ErrCompteDesactive signale un compte désactivé.
	ErrCompteDesactive = errors.New("compte désactivé")
	// ErrRefreshInvalide signale un refresh token invalide ou expiré.
	ErrRefreshInvalide = errors.New("refresh token invalide")
)

type comptesAPI interface {
	GetByEmail(ctx context.Context, email string) (*compte.Utilisateur, error)
	Get(ctx context.Context, id uuid.UUID) (*compte.Utilisateur, error)
	Affectations(ctx context.Context, utilisateurID uuid.UUID) ([]compte.Affectation, error)
	TouchDernierAcces(ctx context.Context, id uuid.UUID) error
}

type locatairesAPI interface {
	GetByTelephone(ctx context.Context, telephone string) (*locataire.Locataire, error)
	Fiche(ctx context.Context, id uuid.UUID) (*locataire.Fiche, error)
}

type refreshStore interface {
	Insert(ctx context.Context, t TokenRefresh) error
	GetByHash(ctx context.Context, tokenHash string) (*TokenRefresh, error)
	Revoke(ctx context.Context, tokenHash string) error
	RevokeOthers(ctx context.Context, subject uuid.UUID, audience, keepHash string) error
}

type redisCommander interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

// AuthService concentre l'authentification et les sessions des deux
// audiences: backoffice (email + mot de passe, passkeys) et locataire
// (code SMS).
type AuthService struct {
	comptes    comptesAPI
	locataires locatairesAPI
	tokens     refreshStore
	redis      redisCommander
	jwt        *auth.JWTManager
	sms        smsSender
	refreshTTL time.Duration
	pool       *pgxpool.Pool
}

func NewAuthService(
	comptes comptesAPI,
	locataires locatairesAPI,
	tokens refreshStore,
	pool *pgxpool.Pool,
	redisClient redisCommander,
	jwtMgr *auth.JWTManager,
	smsClient smsSender,
	refreshTTL time.Duration,
) *AuthService {
	return &AuthService{
		comptes:    comptes,
		locataires: locataires,
		tokens:     tokens,
		pool:       pool,
		redis:      redisClient,
		jwt:        jwtMgr,
		sms:        smsClient,
		refreshTTL: refreshTTL,
	}
}

// JWT expose le gestionnaire de JWT aux middlewares.
func (s *AuthService) JWT() *auth.JWTManager {
	return s.jwt
}

// LoginResult est le retour commun des authentifications.
type LoginResult struct {
	Audience      string
	AccessToken   string
	RefreshToken  string
	Subject       uuid.UUID
	Role          string
	Profile       any
	RefreshHash   string
	RefreshExpiry time.Time
}

// BackofficeProfile décrit un utilisateur du backoffice.
type BackofficeProfile struct {
	ID           string               `json:"id"`
	Nom          string               `json:"nom"`
	Prenom       string               `json:"prenom"`
	Email        string               `json:"email"`
	Role         string               `json:"role"`
	Affectations []compte.Affectation `json:"affectations"`
}

// LocataireProfile décrit un locataire connecté.
type LocataireProfile struct {
	ID        string  `json:"id"`
	Nom       string  `json:"nom"`
	Prenom    string  `json:"prenom"`
	Telephone string  `json:"telephone"`
	Email     *string `json:"email,omitempty"`
}

// LoginBackoffice authentifie un compte interne par email et mot de
// passe.
func (s *AuthService) LoginBackoffice(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.comptes.GetByEmail(ctx, strings.ToLower(email))
	if err != nil {
		if errors.Is(err, compte.ErrNotFound) {
			log.Warn().Msg("login backoffice: compte inconnu")
			return nil, ErrIdentifiantsInvalides
		}
		return nil, err
	}

	ok, err := auth.Verify(password, user.MotDePasseHash)
	if err != nil {
		log.Warn().Err(err).Msg("login backoffice: vérification du mot de passe échouée")
		return nil, ErrIdentifiantsInvalides
	}
	if !ok {
		log.Warn().Msg("login backoffice: mot de passe invalide")
		return nil, ErrIdentifiantsInvalides
	}

	return s.loginBackofficeFromUser(ctx, user)
}

// LoginBackofficeWithUser émet une session pour un compte déjà
// authentifié par un autre facteur (passkey).
func (s *AuthService) LoginBackofficeWithUser(ctx context.Context, user *compte.Utilisateur) (*LoginResult, error) {
	return s.loginBackofficeFromUser(ctx, user)
}

func (s *AuthService) loginBackofficeFromUser(ctx context.Context, user *compte.Utilisateur) (*LoginResult, error) {
	if !user.Actif {
		return nil, ErrCompteDesactive
	}

	affectations, err := s.comptes.Affectations(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	token, _, err := s.jwt.GenerateAccessToken(user.ID.String(), "backoffice", user.Role)
	if err != nil {
		return nil, err
	}

	rawRefresh, refreshHash, err := auth.GenerateToken()
	if err != nil {
		return nil, err
	}

	expires := util.Now().Add(s.refreshTTL)
	if err := s.persistRefresh(ctx, user.ID, "backoffice", refreshHash, expires); err != nil {
		return nil, err
	}

	if err := s.comptes.TouchDernierAcces(ctx, user.ID); err != nil {
		log.Warn().Err(err).Msg("login backoffice: horodatage du dernier accès échoué")
	}

	return &LoginResult{
		Audience:      "backoffice",
		AccessToken:   token,
		RefreshToken:  rawRefresh,
		Subject:       user.ID,
		Role:          user.Role,
		Profile:       backofficeProfile(user, affectations),
		RefreshHash:   refreshHash,
		RefreshExpiry: expires,
	}, nil
}

// GetCompteByEmail expose la recherche de compte aux routes passkey.
func (s *AuthService) GetCompteByEmail(ctx context.Context, email string) (*compte.Utilisateur, error) {
	return s.comptes.GetByEmail(ctx, strings.ToLower(email))
}

// GetCompteByID expose la lecture de compte aux routes passkey.
func (s *AuthService) GetCompteByID(ctx context.Context, id uuid.UUID) (*compte.Utilisateur, error) {
	return s.comptes.Get(ctx, id)
}

// loginLocataire émet une session pour un locataire dont le code SMS a
// été vérifié.
func (s *AuthService) loginLocataire(ctx context.Context, loc *locataire.Locataire) (*LoginResult, error) {
	token, _, err := s.jwt.GenerateAccessToken(loc.ID.String(), "locataire", permission.RoleLocataire)
	if err != nil {
		return nil, err
	}

	rawRefresh, refreshHash, err := auth.GenerateToken()
	if err != nil {
		return nil, err
	}

	expires := util.Now().Add(s.refreshTTL)
	if err := s.persistRefresh(ctx, loc.ID, "locataire", refreshHash, expires); err != nil {
		return nil, err
	}

	return &LoginResult{
		Audience:      "locataire",
		AccessToken:   token,
		RefreshToken:  rawRefresh,
		Subject:       loc.ID,
		Role:          permission.RoleLocataire,
		Profile:       locataireProfile(loc),
		RefreshHash:   refreshHash,
		RefreshExpiry: expires,
	}, nil
}

// Refresh échange un refresh token valide contre une nouvelle paire de
// jetons, avec rotation.
func (s *AuthService) Refresh(ctx context.Context, audience, rawToken string) (*LoginResult, error) {
	if rawToken == "" {
		return nil, ErrRefreshInvalide
	}

	hash := auth.HashToken(rawToken)
	record, err := s.tokens.GetByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, ErrRefreshInvalide
		}
		return nil, err
	}

	if record.Revoque || time.Now().UTC().After(record.ExpireLe) || record.Audience != audience {
		return nil, ErrRefreshInvalide
	}

	redisKey := auth.RefreshRedisKey(audience, hash)
	status, err := s.redis.Get(ctx, redisKey).Result()
	if err == redis.Nil {
		return nil, ErrRefreshInvalide
	}
	if err != nil {
		return nil, err
	}
	if status != "active" {
		return nil, ErrRefreshInvalide
	}

	var result *LoginResult
	switch audience {
	case "backoffice":
		user, err := s.comptes.Get(ctx, record.Subject)
		if err != nil {
			return nil, err
		}
		result, err = s.loginBackofficeFromUser(ctx, user)
		if err != nil {
			return nil, err
		}
	case "locataire":
		fiche, err := s.locataires.Fiche(ctx, record.Subject)
		if err != nil {
			return nil, err
		}
		result, err = s.loginLocataire(ctx, &fiche.Locataire)
		if err != nil {
			return nil, err
		}
	default:
		return nil, ErrRefreshInvalide
	}

	// Révoque l'ancien jeton, base et Redis.
	if err := s.tokens.Revoke(ctx, hash); err != nil && !errors.Is(err, ErrTokenNotFound) {
		return nil, err
	}
	if err := s.redis.Del(ctx, redisKey).Err(); err != nil && err != redis.Nil {
		return nil, err
	}

	return result, nil
}

// Logout révoque le refresh token courant.
func (s *AuthService) Logout(ctx context.Context, audience, rawToken string) error {
	if rawToken == "" {
		return nil
	}
	hash := auth.HashToken(rawToken)
	if err := s.tokens.Revoke(ctx, hash); err != nil && !errors.Is(err, ErrTokenNotFound) {
		return err
	}
	if err := s.redis.Del(ctx, auth.RefreshRedisKey(audience, hash)).Err(); err != nil && err != redis.Nil {
		return err
	}
	return nil
}

// GetMe retourne le profil du sujet selon l'audience.
func (s *AuthService) GetMe(ctx context.Context, audience string, subject uuid.UUID) (any, string, error) {
	switch audience {
	case "backoffice":
		user, err := s.comptes.Get(ctx, subject)
		if err != nil {
			return nil, "", err
		}
		affectations, err := s.comptes.Affectations(ctx, subject)
		if err != nil {
			return nil, "", err
		}
		return backofficeProfile(user, affectations), user.Role, nil
	case "locataire":
		fiche, err := s.locataires.Fiche(ctx, subject)
		if err != nil {
			return nil, "", err
		}
		return locataireProfile(&fiche.Locataire), permission.RoleLocataire, nil
	default:
		return nil, "", errors.New("audience inconnue")
	}
}

// PasskeyCredential est une clé d'accès WebAuthn d'un compte
// backoffice.
type PasskeyCredential struct {
	ID            uuid.UUID
	UtilisateurID uuid.UUID
	CredentialID  []byte
	PublicKey     []byte
	SignCount     uint32
	Transports    []string
	AAGUID        []byte
	Nickname      *string
	Cloned        bool
	CreeLe        time.Time
	MajLe         *time.Time
}

func (s *AuthService) ListPasskeys(ctx context.Context, utilisateurID uuid.UUID) ([]PasskeyCredential, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT id, utilisateur_id, credential_id, public_key, sign_count, transports, aaguid, nickname, cloned, cree_le, maj_le
        FROM webauthn_credentials
        WHERE utilisateur_id = $1
        ORDER BY cree_le DESC
    `, utilisateurID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []PasskeyCredential
	for rows.Next() {
		cred, err := scanPasskey(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, *cred)
	}
	return creds, rows.Err()
}

func (s *AuthService) GetPasskeyByCredentialID(ctx context.Context, credentialID []byte) (*PasskeyCredential, error) {
	cred, err := scanPasskey(s.pool.QueryRow(ctx, `
        SELECT id, utilisateur_id, credential_id, public_key, sign_count, transports, aaguid, nickname, cloned, cree_le, maj_le
        FROM webauthn_credentials
        WHERE credential_id = $1
    `, credentialID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, compte.ErrNotFound
		}
		return nil, err
	}
	return cred, nil
}

func (s *AuthService) CreatePasskey(ctx context.Context, utilisateurID uuid.UUID, credentialID, publicKey []byte, signCount uint32, transports []string, aaguid []byte, nickname *string, cloned bool) (*PasskeyCredential, error) {
	return scanPasskey(s.pool.QueryRow(ctx, `
        INSERT INTO webauthn_credentials (utilisateur_id, credential_id, public_key, sign_count, transports, aaguid, nickname, cloned)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id, utilisateur_id, credential_id, public_key, sign_count, transports, aaguid, nickname, cloned, cree_le, maj_le
    `, utilisateurID, credentialID, publicKey, int64(signCount), transports, aaguid, nickname, cloned))
}

func (s *AuthService) UpdatePasskeyCounter(ctx context.Context, credentialID uuid.UUID, signCount uint32, cloned bool) error {
	cmd, err := s.pool.Exec(ctx, `
        UPDATE webauthn_credentials
        SET sign_count = $2, cloned = $3, maj_le = now()
        WHERE id = $1
    `, credentialID, int64(signCount), cloned)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return compte.ErrNotFound
	}
	return nil
}

func (s *AuthService) persistRefresh(ctx context.Context, subject uuid.UUID, audience, hash string, expires time.Time) error {
	if err := s.tokens.Insert(ctx, TokenRefresh{
		ID:        uuid.New(),
		Subject:   subject,
		Audience:  audience,
		TokenHash: hash,
		ExpireLe:  expires,
	}); err != nil {
		return err
	}

	if err := s.tokens.RevokeOthers(ctx, subject, audience, hash); err != nil {
		return err
	}

	return s.redis.Set(ctx, auth.RefreshRedisKey(audience, hash), "active", time.Until(expires)).Err()
}

func backofficeProfile(user *compte.Utilisateur, affectations []compte.Affectation) *BackofficeProfile {
	if affectations == nil {
		affectations = []compte.Affectation{}
	}
	return &BackofficeProfile{
		ID:           user.ID.String(),
		Nom:          user.Nom,
		Prenom:       user.Prenom,
		Email:        user.Email,
		Role:         user.Role,
		Affectations: affectations,
	}
}

func locataireProfile(loc *locataire.Locataire) *LocataireProfile {
	return &LocataireProfile{
		ID:        loc.ID.String(),
		Nom:       loc.Nom,
		Prenom:    loc.Prenom,
		Telephone: loc.Telephone,
		Email:     loc.Email,
	}
}

func scanPasskey(row pgx.Row) (*PasskeyCredential, error) {
	var (
		cred PasskeyCredential
		sign int64
	)
	err := row.Scan(&cred.ID, &cred.UtilisateurID, &cred.CredentialID, &cred.PublicKey,
		&sign, &cred.Transports, &cred.AAGUID, &cred.Nickname, &cred.Cloned, &cred.CreeLe, &cred.MajLe)
	if err != nil {
		return nil, err
	}
	if sign < 0 {
		sign = 0
	}
	cred.SignCount = uint32(sign)
	return &cred, nil
}
