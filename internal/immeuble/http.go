package immeuble

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	httpmiddleware "github.com/gestimmo/api/internal/http/middleware"
	"github.com/gestimmo/api/internal/permission"
)

// Handler orchestre les routes immeubles/appartements.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/immeubles", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Route("/{immeubleID}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Put("/", h.handleUpdate)
			r.Delete("/", h.handleDelete)
			r.Post("/proprietaire", h.handleChangeOwner)
			r.Get("/proprietaire/historique", h.handleOwnerHistory)
			r.Get("/stats", h.handleStats)
			r.Get("/appartements", h.handleListAppartements)
			r.Post("/appartements", h.handleAddAppartement)
		})
	})

	r.Route("/appartements/{id}", func(r chi.Router) {
		r.Get("/", h.handleGetAppartement)
		r.Put("/", h.handleRenameAppartement)
		r.Get("/historique", h.handleHistorique)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	perms := httpmiddleware.GetPermissions(ctx)
	if perms == nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "permissions absentes", nil)
		return
	}

	var visibles []uuid.UUID
	if perms.Role != permission.RoleSuperAdmin {
		visibles = perms.ImmeublesAssignes
		if visibles == nil {
			visibles = []uuid.UUID{}
		}
	}

	immeubles, err := h.service.List(ctx, visibles)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"immeubles": immeubles})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	role := httpmiddleware.GetRole(ctx)
	if role != permission.RoleSuperAdmin && role != permission.RoleAdmin {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "création réservée aux administrateurs", nil)
		return
	}

	var payload struct {
		Nom                string    `json:"nom"`
		Pays               string    `json:"pays"`
		Ville              string    `json:"ville"`
		Quartier           string    `json:"quartier"`
		Type               string    `json:"type"`
		NombreAppartements int       `json:"nombre_appartements"`
		Proprietaire       struct {
			Nom       string    `json:"nom"`
			Contact   string    `json:"contact"`
			DateDebut time.Time `json:"date_debut"`
		} `json:"proprietaire"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON invalide", nil)
		return
	}

	debut := payload.Proprietaire.DateDebut
	if debut.IsZero() {
		debut = time.Now().UTC()
	}

	imm, err := h.service.Create(ctx, CreateInput{
		Nom:                payload.Nom,
		Pays:               payload.Pays,
		Ville:              payload.Ville,
		Quartier:           payload.Quartier,
		Type:               payload.Type,
		NombreAppartements: payload.NombreAppartements,
		Proprietaire: Proprietaire{
			Nom:       payload.Proprietaire.Nom,
			Contact:   payload.Proprietaire.Contact,
			DateDebut: debut,
		},
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"immeuble": imm})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := immeubleIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "identifiant invalide", nil)
		return
	}

	imm, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"immeuble": imm})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := immeubleIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "identifiant invalide", nil)
		return
	}
	if !requirePermission(w, ctx, id, (*permission.Contexte).GestionImmeuble) {
		return
	}

	var payload struct {
		Nom      string `json:"nom"`
		Pays     string `json:"pays"`
		Ville    string `json:"ville"`
		Quartier string `json:"quartier"`
		Type     string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON invalide", nil)
		return
	}

	imm, err := h.service.Update(ctx, id, UpdateInput{
		Nom:      payload.Nom,
		Pays:     payload.Pays,
		Ville:    payload.Ville,
		Quartier: payload.Quartier,
		Type:     payload.Type,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"immeuble": imm})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := immeubleIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "identifiant invalide", nil)
		return
	}
	if !requirePermission(w, ctx, id, (*permission.Contexte).SuppressionImmeuble) {
		return
	}

	if err := h.service.Delete(ctx, id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"statut": "supprime"})
}

func (h *Handler) handleChangeOwner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := immeubleIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "identifiant invalide", nil)
		return
	}
	if !requirePermission(w, ctx, id, (*permission.Contexte).GestionImmeuble) {
		return
	}

	var payload struct {
		Nom       string    `json:"nom"`
		Contact   string    `json:"contact"`
		DateDebut time.Time `json:"date_debut"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON invalide", nil)
		return
	}
	if payload.DateDebut.IsZero() {
		payload.DateDebut = time.Now().UTC()
	}

	imm, err := h.service.ChangeOwner(ctx, id, Proprietaire{
		Nom:       payload.Nom,
		Contact:   payload.Contact,
		DateDebut: payload.DateDebut,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"immeuble": imm})
}

func (h *Handler) handleOwnerHistory(w http.ResponseWriter, r *http.Request) {
	id, err := immeubleIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "identifiant invalide", nil)
		return
	}

	historique, err := h.service.OwnerHistory(r.Context(), id)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"historique": historique})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := immeubleIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "identifiant invalide", nil)
		return
	}
	if !requirePermission(w, ctx, id, (*permission.Contexte).LectureStats) {
		return
	}

	stats, err := h.service.ComputeStats(ctx, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

func (h *Handler) handleListAppartements(w http.ResponseWriter, r *http.Request) {
	id, err := immeubleIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "identifiant invalide", nil)
		return
	}

	apps, err := h.service.Appartements(r.Context(), id)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appartements": apps})
}

func (h *Handler) handleAddAppartement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := immeubleIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "identifiant invalide", nil)
		return
	}
	if !requirePermission(w, ctx, id, (*permission.Contexte).GestionImmeuble) {
		return
	}

	var payload struct {
		Numero string `json:"numero"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON invalide", nil)
		return
	}

	app, err := h.service.AddAppartement(ctx, id, payload.Numero)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"appartement": app})
}

func (h *Handler) handleGetAppartement(w http.ResponseWriter, r *http.Request) {
	app, ok := h.loadAppartementAvecAcces(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appartement": app})
}

func (h *Handler) handleRenameAppartement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	app, ok := h.loadAppartementAvecAcces(w, r)
	if !ok {
		return
	}
	if !requirePermission(w, ctx, app.ImmeubleID, (*permission.Contexte).GestionImmeuble) {
		return
	}

	var payload struct {
		Numero string `json:"numero"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON invalide", nil)
		return
	}

	updated, err := h.service.RenameAppartement(ctx, app.ID, payload.Numero)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appartement": updated})
}

func (h *Handler) handleHistorique(w http.ResponseWriter, r *http.Request) {
	app, ok := h.loadAppartementAvecAcces(w, r)
	if !ok {
		return
	}

	historique, err := h.service.Historique(r.Context(), app.ID)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"historique": historique})
}

// loadAppartementAvecAcces charge l'unité puis vérifie l'accès à son
// immeuble, la route ne portant pas l'id d'immeuble.
func (h *Handler) loadAppartementAvecAcces(w http.ResponseWriter, r *http.Request) (*Appartement, bool) {
	ctx := r.Context()
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "identifiant invalide", nil)
		return nil, false
	}

	app, err := h.service.Appartement(ctx, id)
	if err != nil {
		writeServiceError(w, err)
		return nil, false
	}

	perms := httpmiddleware.GetPermissions(ctx)
	if perms == nil || !perms.AccesImmeuble(app.ImmeubleID) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "accès à l'immeuble refusé", nil)
		return nil, false
	}
	return app, true
}

func requirePermission(w http.ResponseWriter, ctx context.Context, immeubleID uuid.UUID, pred func(*permission.Contexte, uuid.UUID) bool) bool {
	perms := httpmiddleware.GetPermissions(ctx)
	if perms == nil || !pred(perms, immeubleID) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "permission refusée", nil)
		return false
	}
	return true
}

func immeubleIDParam(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "immeubleID"))
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAppartementNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	default:
		writeInternalError(w, err)
	}
}

func writeInternalError(w http.ResponseWriter, err error) {
	log.Error().Err(err).Msg("immeuble handler error")
	writeError(w, http.StatusInternalServerError, "INTERNAL", "erreur interne", nil)
}

// Helpers de réponse JSON compatibles avec le reste du projet.
type successEnvelope struct {
	Data  any `json:"data"`
	Error any `json:"error"`
}

type errorEnvelope struct {
	Data  any            `json:"data"`
	Error *errorResponse `json:"error"`
}

type errorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(successEnvelope{Data: payload, Error: nil})
}

func writeError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Data: nil, Error: &errorResponse{Code: code, Message: message, Details: details}})
}
