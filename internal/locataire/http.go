package locataire

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	httpmiddleware "github.com/gestimmo/api/internal/http/middleware"
	"github.com/gestimmo/api/internal/immeuble"
	"github.com/gestimmo/api/internal/permission"
	"github.com/gestimmo/api/internal/util"
)

// Handler expose les routes locataires du backoffice et l'espace
// locataire.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes branche les routes backoffice.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/immeubles/{immeubleID}/locataires", h.handleListByImmeuble)
	r.Post("/immeubles/{immeubleID}/locataires", h.handleCreate)
	r.Get("/locataires/sans-logement", h.handleListSansLogement)

	r.Route("/locataires/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Put("/", h.handleUpdate)
		r.Delete("/", h.handleDelete)
		r.Post("/affectation", h.handleAffecter)
		r.Post("/demenagement", h.handleDemenager)
		r.Post("/liberation", h.handleLiberer)
	})
}

// RegisterLocataireRoutes branche l'espace locataire authentifié.
func (h *Handler) RegisterLocataireRoutes(r chi.Router) {
	r.Get("/moi", h.handleMoi)
}

func (h *Handler) handleListByImmeuble(w http.ResponseWriter, r *http.Request) {
	immeubleID, err := uuid.Parse(chi.URLParam(r, "immeubleID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "identifiant invalide", nil)
		return
	}

	locataires, err := h.service.ListByImmeuble(r.Context(), immeubleID)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"locataires": locataires})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	immeubleID, err := uuid.Parse(chi.URLParam(r, "immeubleID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "identifiant invalide", nil)
		return
	}
	if !h.requireEcriture(w, r, immeubleID) {
		return
	}

	var payload struct {
		Nom           string     `json:"nom"`
		Prenom        string     `json:"prenom"`
		Telephone     string     `json:"telephone"`
		Email         *string    `json:"email"`
		AppartementID *uuid.UUID `json:"appartement_id"`
		DateEntree    *time.Time `json:"date_entree"`
		DateFinBail   *time.Time `json:"date_fin_bail"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON invalide", nil)
		return
	}

	// L'auteur vient du jeton, jamais du corps de la requête.
	var creePar *uuid.UUID
	if auteur, err := uuid.Parse(httpmiddleware.GetSubject(ctx)); err == nil {
		creePar = &auteur
	}

	loc, err := h.service.Create(ctx, CreateInput{
		Nom:           payload.Nom,
		Prenom:        payload.Prenom,
		Telephone:     payload.Telephone,
		Email:         payload.Email,
		ImmeubleID:    immeubleID,
		AppartementID: payload.AppartementID,
		DateEntree:    payload.DateEntree,
		DateFinBail:   payload.DateFinBail,
		CreePar:       creePar,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"locataire": loc})
}

func (h *Handler) handleListSansLogement(w http.ResponseWriter, r *http.Request) {
	locataires, err := h.service.ListSansLogement(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"locataires": locataires})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	loc, ok := h.loadAvecAcces(w, r, false)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"locataire": loc})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	loc, ok := h.loadAvecAcces(w, r, true)
	if !ok {
		return
	}

	var payload struct {
		Nom         string     `json:"nom"`
		Prenom      string     `json:"prenom"`
		Telephone   string     `json:"telephone"`
		Email       *string    `json:"email"`
		DateFinBail *time.Time `json:"date_fin_bail"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON invalide", nil)
		return
	}

	updated, err := h.service.Update(r.Context(), loc.ID, UpdateInput{
		Nom:         payload.Nom,
		Prenom:      payload.Prenom,
		Telephone:   payload.Telephone,
		Email:       payload.Email,
		DateFinBail: payload.DateFinBail,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"locataire": updated})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	loc, ok := h.loadAvecAcces(w, r, true)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), loc.ID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"statut": "supprime"})
}

func (h *Handler) handleAffecter(w http.ResponseWriter, r *http.Request) {
	loc, ok := h.loadAvecAcces(w, r, true)
	if !ok {
		return
	}

	var payload struct {
		AppartementID uuid.UUID `json:"appartement_id"`
		DateEntree    time.Time `json:"date_entree"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON invalide", nil)
		return
	}

	immeubleID, ok := h.resoudreCible(w, r, payload.AppartementID)
	if !ok {
		return
	}

	updated, err := h.service.Affecter(r.Context(), loc.ID, immeubleID, payload.AppartementID, payload.DateEntree)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"locataire": updated})
}

func (h *Handler) handleDemenager(w http.ResponseWriter, r *http.Request) {
	loc, ok := h.loadAvecAcces(w, r, true)
	if !ok {
		return
	}

	var payload struct {
		AppartementID uuid.UUID `json:"appartement_id"`
		Date          time.Time `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON invalide", nil)
		return
	}

	immeubleID, ok := h.resoudreCible(w, r, payload.AppartementID)
	if !ok {
		return
	}

	updated, err := h.service.Demenager(r.Context(), loc.ID, immeubleID, payload.AppartementID, payload.Date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"locataire": updated})
}

func (h *Handler) handleLiberer(w http.ResponseWriter, r *http.Request) {
	loc, ok := h.loadAvecAcces(w, r, true)
	if !ok {
		return
	}

	var payload struct {
		DateSortie time.Time `json:"date_sortie"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON invalide", nil)
		return
	}

	updated, err := h.service.Liberer(r.Context(), loc.ID, payload.DateSortie)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"locataire": updated})
}

func (h *Handler) handleMoi(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject := httpmiddleware.GetSubject(ctx)
	id, err := uuid.Parse(subject)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "session invalide", nil)
		return
	}

	fiche, err := h.service.Fiche(ctx, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fiche": fiche})
}

// loadAvecAcces charge le locataire puis vérifie l'accès au travers de
// son immeuble courant. Les fiches sans logement restent réservées aux
// administrateurs.
func (h *Handler) loadAvecAcces(w http.ResponseWriter, r *http.Request, ecriture bool) (*Locataire, bool) {
	ctx := r.Context()
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "identifiant invalide", nil)
		return nil, false
	}

	loc, err := h.service.Get(ctx, id)
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}

	perms := httpmiddleware.GetPermissions(ctx)
	if perms == nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "permissions absentes", nil)
		return nil, false
	}

	if loc.AppartementID == nil {
		if perms.Role != permission.RoleSuperAdmin && perms.Role != permission.RoleAdmin {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "fiche réservée aux administrateurs", nil)
			return nil, false
		}
		return loc, true
	}

	immeubleID, err := h.service.ImmeubleDe(ctx, *loc.AppartementID)
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}

	autorise := perms.AccesImmeuble(immeubleID)
	if ecriture {
		autorise = perms.EcritureLocataires(immeubleID)
	}
	if !autorise {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "permission refusée", nil)
		return nil, false
	}
	return loc, true
}

// resoudreCible résout l'immeuble de l'appartement visé et vérifie le
// droit d'écriture sur celui-ci.
func (h *Handler) resoudreCible(w http.ResponseWriter, r *http.Request, appartementID uuid.UUID) (uuid.UUID, bool) {
	ctx := r.Context()
	immeubleID, err := h.service.ImmeubleDe(ctx, appartementID)
	if err != nil {
		writeDomainError(w, err)
		return uuid.Nil, false
	}
	if !h.requireEcriture(w, r, immeubleID) {
		return uuid.Nil, false
	}
	return immeubleID, true
}

func (h *Handler) requireEcriture(w http.ResponseWriter, r *http.Request, immeubleID uuid.UUID) bool {
	perms := httpmiddleware.GetPermissions(r.Context())
	if perms == nil || !perms.EcritureLocataires(immeubleID) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "permission refusée", nil)
		return false
	}
	return true
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, immeuble.ErrAppartementNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrTelephoneDejaUtilise), errors.Is(err, ErrDejaLoge),
		errors.Is(err, ErrSansLogement), errors.Is(err, util.ErrTelephoneInvalide):
		writeError(w, http.StatusConflict, "VALIDATION", err.Error(), nil)
	default:
		if estValidation(err) {
			writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
			return
		}
		writeInternalError(w, err)
	}
}

// estValidation distingue les erreurs de saisie du service des pannes
// techniques.
func estValidation(err error) bool {
	var ve *util.ErreurValidation
	return errors.As(err, &ve)
}

func writeInternalError(w http.ResponseWriter, err error) {
	log.Error().Err(err).Msg("locataire handler error")
	writeError(w, http.StatusInternalServerError, "INTERNAL", "erreur interne", nil)
}

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
