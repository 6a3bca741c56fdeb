package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gestimmo/api/internal/auth"
	"github.com/gestimmo/api/internal/permission"
)

type contextKey string

const (
	ContextKeySubject     contextKey = "subject"
	ContextKeyAudience    contextKey = "audience"
	ContextKeyRole        contextKey = "role"
	ContextKeyPermissions contextKey = "permissions"
)

// Audiences émises par le service d'authentification.
const (
	AudienceBackoffice = "backoffice"
	AudienceLocataire  = "locataire"
)

// Auth valide le JWT d'accès et injecte les claims dans le contexte.
func Auth(jwtManager *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeError(w, http.StatusUnauthorized, "AUTH", "token absent")
				return
			}

			claims, err := jwtManager.ParseAndValidate(parts[1])
			if err != nil {
				writeError(w, http.StatusUnauthorized, "AUTH", "token invalide")
				return
			}

			if len(claims.Audience) == 0 {
				writeError(w, http.StatusUnauthorized, "AUTH", "audience invalide")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeySubject, claims.Subject)
			ctx = context.WithValue(ctx, ContextKeyAudience, claims.Audience[0])
			ctx = context.WithValue(ctx, ContextKeyRole, claims.Role)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSubject récupère le subject du contexte.
func GetSubject(ctx context.Context) string {
	val, _ := ctx.Value(ContextKeySubject).(string)
	return val
}

// GetAudience récupère l'audience du contexte.
func GetAudience(ctx context.Context) string {
	val, _ := ctx.Value(ContextKeyAudience).(string)
	return val
}

// GetRole récupère le rôle du contexte.
func GetRole(ctx context.Context) string {
	val, _ := ctx.Value(ContextKeyRole).(string)
	return val
}

// RequireBackoffice restreint aux utilisateurs du backoffice.
func RequireBackoffice(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.EqualFold(GetAudience(r.Context()), AudienceBackoffice) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "accès réservé au backoffice")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireLocataire restreint aux locataires connectés.
func RequireLocataire(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.EqualFold(GetAudience(r.Context()), AudienceLocataire) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "accès réservé aux locataires")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRoles garantit que l'utilisateur du backoffice porte l'un des
// rôles donnés.
func RequireRoles(requiredRoles ...string) func(http.Handler) http.Handler {
	normalized := make([]string, 0, len(requiredRoles))
	for _, role := range requiredRoles {
		role = strings.ToUpper(strings.TrimSpace(role))
		if role != "" {
			normalized = append(normalized, role)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.EqualFold(GetAudience(r.Context()), AudienceBackoffice) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "accès réservé au backoffice")
				return
			}

			role := strings.ToUpper(strings.TrimSpace(GetRole(r.Context())))
			for _, required := range normalized {
				if role == required {
					next.ServeHTTP(w, r)
					return
				}
			}

			writeError(w, http.StatusForbidden, "FORBIDDEN", "accès refusé")
		})
	}
}

// SetPermissions injecte le contexte de permissions dérivé.
func SetPermissions(ctx context.Context, perms *permission.Contexte) context.Context {
	return context.WithValue(ctx, ContextKeyPermissions, perms)
}

// GetPermissions retourne le contexte de permissions, éventuellement nil.
func GetPermissions(ctx context.Context) *permission.Contexte {
	val, _ := ctx.Value(ContextKeyPermissions).(*permission.Contexte)
	return val
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": nil,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
