package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	httpmiddleware "github.com/gestimmo/api/internal/http/middleware"
)

type entreeJournal struct {
	ID          uuid.UUID `json:"id"`
	Utilisateur uuid.UUID `json:"utilisateur_id"`
	Role        string    `json:"role"`
	Action      string    `json:"action"`
	Cible       *string   `json:"cible,omitempty"`
	IP          *string   `json:"ip,omitempty"`
	UserAgent   *string   `json:"user_agent,omitempty"`
	CreeLe      time.Time `json:"cree_le"`
}

// ListJournal retourne les entrées récentes du journal d'activité.
func (h *Handler) ListJournal(w http.ResponseWriter, r *http.Request) {
	entrees, err := h.loadJournal(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "lecture du journal impossible", nil)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"journal": entrees})
}

// AppendJournal enregistre une action. L'auteur et son rôle viennent de
// la session, jamais du client.
func (h *Handler) AppendJournal(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Action string  `json:"action"`
		Cible  *string `json:"cible"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON invalide", nil)
		return
	}

	action := strings.TrimSpace(payload.Action)
	if action == "" {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "action obligatoire", nil)
		return
	}

	auteur, err := h.subjectUUID(r)
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "AUTH", "session invalide", nil)
		return
	}

	ip := realIP(r)
	ua := strings.TrimSpace(r.UserAgent())

	const insert = `
        INSERT INTO journal_activite (utilisateur_id, role, action, cible, ip, user_agent)
        VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''))
        RETURNING id
    `

	cible := ""
	if payload.Cible != nil {
		cible = strings.TrimSpace(*payload.Cible)
	}

	var id uuid.UUID
	if err := h.pool.QueryRow(r.Context(), insert, auteur,
		httpmiddleware.GetRole(r.Context()), action, cible, ip, ua).Scan(&id); err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "écriture du journal impossible", nil)
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (h *Handler) loadJournal(ctx context.Context) ([]entreeJournal, error) {
	rows, err := h.pool.Query(ctx, `
        SELECT id, utilisateur_id, role, action, cible, ip, user_agent, cree_le
        FROM journal_activite
        ORDER BY cree_le DESC
        LIMIT 100
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entrees := []entreeJournal{}
	for rows.Next() {
		var e entreeJournal
		if err := rows.Scan(&e.ID, &e.Utilisateur, &e.Role, &e.Action,
			&e.Cible, &e.IP, &e.UserAgent, &e.CreeLe); err != nil {
			return nil, err
		}
		entrees = append(entrees, e)
	}
	return entrees, rows.Err()
}

func realIP(r *http.Request) string {
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	return strings.Trim(host, "[]")
}
