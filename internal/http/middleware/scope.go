package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gestimmo/api/internal/permission"
)

// ContexteLoader charge le contexte de permissions d'un utilisateur.
type ContexteLoader interface {
	ChargerContexte(ctx context.Context, utilisateurID uuid.UUID) (*permission.Contexte, error)
}

// Scope dérive les permissions de l'utilisateur du backoffice et vérifie
// l'accès à l'immeuble ciblé par l'URL. Le contexte dérivé est rechargé à
// chaque requête: un changement de droits prend effet immédiatement.
func Scope(loader ContexteLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.EqualFold(GetAudience(r.Context()), AudienceBackoffice) {
				writeScopeError(w, http.StatusForbidden, "FORBIDDEN", "accès réservé au backoffice")
				return
			}

			subject := GetSubject(r.Context())
			subUUID, err := uuid.Parse(subject)
			if err != nil {
				writeScopeError(w, http.StatusUnauthorized, "AUTH", "subject invalide")
				return
			}

			perms, err := loader.ChargerContexte(r.Context(), subUUID)
			if err != nil {
				writeScopeError(w, http.StatusInternalServerError, "INTERNAL", "impossible de charger les permissions")
				return
			}

			if raw := chi.URLParam(r, "immeubleID"); raw != "" {
				immeubleID, err := uuid.Parse(raw)
				if err != nil {
					writeScopeError(w, http.StatusBadRequest, "VALIDATION", "immeuble invalide")
					return
				}
				if !perms.AccesImmeuble(immeubleID) {
					writeScopeError(w, http.StatusForbidden, "FORBIDDEN", "accès à l'immeuble refusé")
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(SetPermissions(r.Context(), perms)))
		})
	}
}

func writeScopeError(w http.ResponseWriter, status int, code, message string) {
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
