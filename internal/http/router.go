package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/gestimmo/api/internal/auth"
	"github.com/gestimmo/api/internal/compta"
	"github.com/gestimmo/api/internal/compte"
	"github.com/gestimmo/api/internal/config"
	httpmiddleware "github.com/gestimmo/api/internal/http/middleware"
	"github.com/gestimmo/api/internal/immeuble"
	"github.com/gestimmo/api/internal/locataire"
	"github.com/gestimmo/api/internal/mailer"
	"github.com/gestimmo/api/internal/permission"
	"github.com/gestimmo/api/internal/recu"
	"github.com/gestimmo/api/internal/service"
	"github.com/gestimmo/api/internal/sms"
	"github.com/gestimmo/api/internal/storage"
	"github.com/gestimmo/api/internal/util"
)

type Handler struct {
	cfg           *config.Config
	pool          *pgxpool.Pool
	redis         *redis.Client
	authService   *service.AuthService
	webauthn      *webauthn.WebAuthn
	publicLimiter *httpmiddleware.RateLimiter
	authLimiter   *httpmiddleware.RateLimiter
	devCookies    bool
}

// NewRouter assemble les services du domaine et retourne le routeur
// configuré.
func NewRouter(cfg *config.Config, pool *pgxpool.Pool, redisClient *redis.Client) (http.Handler, error) {
	devCookies := false
	for _, origin := range cfg.AllowOrigins {
		if strings.Contains(origin, "localhost") {
			devCookies = true
			break
		}
	}

	wa, err := webauthn.New(&webauthn.Config{
		RPDisplayName: cfg.WebAuthnRPName,
		RPID:          cfg.WebAuthnRPID,
		RPOrigins:     []string{cfg.WebAuthnRPOrigin},
	})
	if err != nil {
		return nil, fmt.Errorf("webauthn: %w", err)
	}

	var courrier compte.Mailer = mailer.LogSender{}
	if cfg.Mailer.APIToken != "" {
		courrier, err = mailer.New(mailer.Config{APIToken: cfg.Mailer.APIToken, From: cfg.Mailer.From})
		if err != nil {
			return nil, fmt.Errorf("mailer: %w", err)
		}
	}

	var uploader storage.Uploader = storage.NoopUploader{}
	switch cfg.Storage.Provider {
	case "", "noop":
		// uploader par défaut
	case "s3", "r2":
		uploader, err = storage.NewS3Uploader(storage.S3Config{
			Endpoint:     cfg.Storage.S3Endpoint,
			Region:       cfg.Storage.S3Region,
			Bucket:       cfg.Storage.S3Bucket,
			AccessKey:    cfg.Storage.S3AccessKey,
			SecretKey:    cfg.Storage.S3SecretKey,
			PublicDomain: cfg.Storage.S3PublicURL,
		})
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
	default:
		return nil, fmt.Errorf("storage: fournisseur %s non supporté", cfg.Storage.Provider)
	}

	compteService := compte.NewService(compte.NewRepository(pool), courrier, cfg.AppURL, cfg.InvitationTTL)
	immeubleService := immeuble.NewService(immeuble.NewRepository(pool))
	locataireService := locataire.NewService(locataire.NewRepository(pool))
	recuService := recu.NewService(recu.NewRepository(pool), uploader)
	comptaService := compta.NewService(compta.NewRepository(pool), recuService)

	var envoyeurSMS interface {
		Send(ctx context.Context, to, message string) error
	} = sms.LogSender{}
	if cfg.SMS.APIToken != "" {
		envoyeurSMS, err = sms.New(sms.Config{
			APIToken: cfg.SMS.APIToken,
			Sender:   cfg.SMS.Sender,
			APIBase:  cfg.SMS.APIBase,
		})
		if err != nil {
			return nil, fmt.Errorf("sms: %w", err)
		}
	}

	authService := service.NewAuthService(
		compteService,
		locataireService,
		service.NewRefreshRepository(pool),
		pool,
		redisClient,
		auth.NewJWTManager(cfg.JWTSecret, cfg.JWTAccessTTL),
		envoyeurSMS,
		cfg.JWTRefreshTTL,
	)

	h := &Handler{
		cfg:           cfg,
		pool:          pool,
		redis:         redisClient,
		authService:   authService,
		webauthn:      wa,
		publicLimiter: httpmiddleware.NewRateLimiter(cfg.RateLimitPublic.RequestsPerSecond, cfg.RateLimitPublic.Burst),
		authLimiter:   httpmiddleware.NewRateLimiter(cfg.RateLimitAuth.RequestsPerSecond, cfg.RateLimitAuth.Burst),
		devCookies:    devCookies,
	}

	immeubleHandler := immeuble.NewHandler(immeubleService)
	locataireHandler := locataire.NewHandler(locataireService)
	compteHandler := compte.NewHandler(compteService)
	recuHandler := recu.NewHandler(recuService, locataireService)
	comptaHandler := compta.NewHandler(comptaService)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(httpmiddleware.Logging)
	r.Use(httpmiddleware.Recover)
	r.Use(httpmiddleware.CORS(cfg.AllowOrigins))

	r.Group(func(public chi.Router) {
		public.Use(httpmiddleware.IPRateLimit(h.publicLimiter))

		public.Get("/health", h.Health)
		public.Get("/ready", h.Ready)

		public.Route("/auth", func(authRouter chi.Router) {
			authRouter.Post("/backoffice/login", h.LoginBackoffice)
			authRouter.Post("/locataire/code", h.DemanderCodeSMS)
			authRouter.Post("/locataire/verifier", h.VerifierCodeSMS)
			authRouter.Post("/passkey/login/start", h.PasskeyLoginStart)
			authRouter.Post("/passkey/login/finish", h.PasskeyLoginFinish)
			authRouter.Post("/refresh", h.Refresh)
			authRouter.Post("/logout", h.Logout)
		})

		compteHandler.RegisterPublicRoutes(public)
	})

	r.Group(func(private chi.Router) {
		private.Use(httpmiddleware.Auth(authService.JWT()))
		private.Use(httpmiddleware.UserRateLimit(h.authLimiter))

		private.Get("/me", h.Me)

		private.Group(func(backoffice chi.Router) {
			backoffice.Use(httpmiddleware.RequireBackoffice)

			backoffice.Route("/auth/passkey/register", func(r chi.Router) {
				r.Post("/start", h.PasskeyRegisterStart)
				r.Post("/finish", h.PasskeyRegisterFinish)
			})

			backoffice.Group(func(scoped chi.Router) {
				scoped.Use(httpmiddleware.Scope(compteService))

				immeubleHandler.RegisterRoutes(scoped)
				locataireHandler.RegisterRoutes(scoped)
				recuHandler.RegisterRoutes(scoped)
				comptaHandler.RegisterRoutes(scoped)
				compteHandler.RegisterRoutes(scoped)

				scoped.Route("/journal", func(j chi.Router) {
					j.Use(httpmiddleware.RequireRoles(permission.RoleSuperAdmin, permission.RoleAdmin))
					j.Get("/", h.ListJournal)
					j.Post("/", h.AppendJournal)
				})
			})
		})

		private.Group(func(espaceLocataire chi.Router) {
			espaceLocataire.Use(httpmiddleware.RequireLocataire)

			locataireHandler.RegisterLocataireRoutes(espaceLocataire)
			recuHandler.RegisterLocataireRoutes(espaceLocataire)
		})
	})

	return r, nil
}

// Health répond un statut simple.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready vérifie les connexions Postgres et Redis.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	dbErr := h.pool.Ping(ctx)
	redisErr := h.redis.Ping(ctx).Err()

	if dbErr != nil || redisErr != nil {
		WriteError(w, http.StatusServiceUnavailable, "INTERNAL", "dépendances indisponibles", map[string]any{
			"db":    errorString(dbErr),
			"redis": errorString(redisErr),
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// LoginBackoffice authentifie les comptes internes.
func (h *Handler) LoginBackoffice(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email      string `json:"email"`
		MotDePasse string `json:"mot_de_passe"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON invalide", nil)
		return
	}

	if strings.TrimSpace(payload.Email) == "" || strings.TrimSpace(payload.MotDePasse) == "" {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "email et mot de passe sont obligatoires", nil)
		return
	}

	result, err := h.authService.LoginBackoffice(r.Context(), payload.Email, payload.MotDePasse)
	if err != nil {
		h.handleAuthError(w, err)
		return
	}

	h.writeLoginSuccess(w, result)
}

// DemanderCodeSMS déclenche l'envoi d'un code de connexion au
// locataire. La réponse ne révèle pas si le numéro est connu.
func (h *Handler) DemanderCodeSMS(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Telephone string `json:"telephone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON invalide", nil)
		return
	}

	telephone, err := util.FormatTelephone(payload.Telephone)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "numéro de téléphone invalide", nil)
		return
	}

	if err := h.authService.DemanderCodeSMS(r.Context(), telephone); err != nil {
		if errors.Is(err, service.ErrRenvoiTropTot) {
			WriteError(w, http.StatusTooManyRequests, "RATE_LIMIT", err.Error(), nil)
			return
		}
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "envoi du code impossible", nil)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"statut": "code_envoye"})
}

// VerifierCodeSMS échange un code valide contre une session locataire.
func (h *Handler) VerifierCodeSMS(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Telephone string `json:"telephone"`
		Code      string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON invalide", nil)
		return
	}
	if strings.TrimSpace(payload.Code) == "" {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "code obligatoire", nil)
		return
	}

	result, err := h.authService.VerifierCodeSMS(r.Context(), payload.Telephone, payload.Code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCodeInvalide):
			WriteError(w, http.StatusUnauthorized, "AUTH", err.Error(), nil)
		case errors.Is(err, service.ErrTropDeTentatives):
			WriteError(w, http.StatusTooManyRequests, "RATE_LIMIT", err.Error(), nil)
		default:
			WriteError(w, http.StatusInternalServerError, "INTERNAL", "vérification impossible", nil)
		}
		return
	}

	h.writeLoginSuccess(w, result)
}

// Refresh fait tourner la paire de jetons.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	audience, token, err := getRefreshFromRequest(r)
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "AUTH", "refresh absent", nil)
		return
	}

	result, err := h.authService.Refresh(r.Context(), audience, token)
	if err != nil {
		if errors.Is(err, service.ErrRefreshInvalide) {
			WriteError(w, http.StatusUnauthorized, "AUTH", "refresh invalide", nil)
			return
		}
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "renouvellement de session impossible", nil)
		return
	}

	h.writeLoginSuccess(w, result)
}

// Logout révoque le refresh token courant.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if audience, token, err := getRefreshFromRequest(r); err == nil {
		_ = h.authService.Logout(r.Context(), audience, token)
	}

	h.clearRefreshCookie(w, httpmiddleware.AudienceBackoffice)
	h.clearRefreshCookie(w, httpmiddleware.AudienceLocataire)
	WriteJSON(w, http.StatusOK, map[string]string{"statut": "deconnecte"})
}

// Me retourne le profil du sujet authentifié.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	subject, err := h.subjectUUID(r)
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "AUTH", "subject invalide", nil)
		return
	}

	audience := httpmiddleware.GetAudience(r.Context())
	profile, role, err := h.authService.GetMe(r.Context(), audience, subject)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "chargement du profil impossible", nil)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"profil": profile,
		"role":   role,
	})
}

func (h *Handler) handleAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrIdentifiantsInvalides):
		WriteError(w, http.StatusUnauthorized, "AUTH", err.Error(), nil)
	case errors.Is(err, service.ErrCompteDesactive):
		WriteError(w, http.StatusForbidden, "FORBIDDEN", err.Error(), nil)
	default:
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "erreur d'authentification", nil)
	}
}

func (h *Handler) writeLoginSuccess(w http.ResponseWriter, result *service.LoginResult) {
	h.setRefreshCookie(w, result.Audience, result.RefreshToken, result.RefreshExpiry)

	WriteJSON(w, http.StatusOK, map[string]any{
		"access_token": result.AccessToken,
		"profil":       result.Profile,
	})
}

func (h *Handler) subjectUUID(r *http.Request) (uuid.UUID, error) {
	subjectStr := httpmiddleware.GetSubject(r.Context())
	if strings.TrimSpace(subjectStr) == "" {
		return uuid.Nil, errors.New("subject absent")
	}
	return uuid.Parse(subjectStr)
}

func getRefreshFromRequest(r *http.Request) (string, string, error) {
	if c, err := r.Cookie(httpmiddleware.AudienceBackoffice); err == nil && c.Value != "" {
		return httpmiddleware.AudienceBackoffice, c.Value, nil
	}
	if c, err := r.Cookie(httpmiddleware.AudienceLocataire); err == nil && c.Value != "" {
		return httpmiddleware.AudienceLocataire, c.Value, nil
	}
	return "", "", errors.New("refresh absent")
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, audience, token string, expires time.Time) {
	secure := !h.devCookies
	sameSite := http.SameSiteNoneMode
	if h.devCookies {
		sameSite = http.SameSiteLaxMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     audience,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter, audience string) {
	secure := !h.devCookies
	sameSite := http.SameSiteNoneMode
	if h.devCookies {
		sameSite = http.SameSiteLaxMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     audience,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
	})
}
