package compte

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	httpmiddleware "github.com/gestimmo/api/internal/http/middleware"
	"github.com/gestimmo/api/internal/permission"
)

// Handler expose la gestion des comptes et des invitations.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes branche les routes d'administration des comptes. La
// gestion des comptes est réservée aux administrateurs.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/comptes", func(r chi.Router) {
		r.Use(httpmiddleware.RequireRoles(permission.RoleSuperAdmin, permission.RoleAdmin))
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Put("/", h.handleUpdate)
			r.Delete("/", h.handleDelete)
			r.Get("/affectations", h.handleAffectations)
			r.Put("/affectations", h.handleModifierAffectations)
		})
	})

	r.Route("/invitations", func(r chi.Router) {
		r.Use(httpmiddleware.RequireRoles(permission.RoleSuperAdmin, permission.RoleAdmin))
		r.Get("/", h.handleListInvitations)
		r.Post("/", h.handleInviter)
	})
}

// RegisterPublicRoutes branche l'acceptation d'invitation, accessible
// sans session.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/invitations/acceptation", h.handleAccepter)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	comptes, err := h.service.List(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comptes": comptes})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Nom          string        `json:"nom"`
		Prenom       string        `json:"prenom"`
		Email        string        `json:"email"`
		MotDePasse   string        `json:"mot_de_passe"`
		Role         string        `json:"role"`
		Affectations []Affectation `json:"affectations"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON invalide", nil)
		return
	}

	u, err := h.service.CreateUtilisateur(r.Context(), CreateUtilisateurInput{
		Nom:          payload.Nom,
		Prenom:       payload.Prenom,
		Email:        payload.Email,
		MotDePasse:   payload.MotDePasse,
		Role:         payload.Role,
		Affectations: payload.Affectations,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"compte": u})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "identifiant invalide", nil)
		return
	}

	u, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"compte": u})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "identifiant invalide", nil)
		return
	}

	var payload struct {
		Nom    string `json:"nom"`
		Prenom string `json:"prenom"`
		Role   string `json:"role"`
		Actif  bool   `json:"actif"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON invalide", nil)
		return
	}

	u, err := h.service.Update(r.Context(), id, payload.Nom, payload.Prenom, payload.Role, payload.Actif)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"compte": u})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "identifiant invalide", nil)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"statut": "supprime"})
}

func (h *Handler) handleAffectations(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "identifiant invalide", nil)
		return
	}

	affectations, err := h.service.Affectations(r.Context(), id)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if affectations == nil {
		affectations = []Affectation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"affectations": affectations})
}

func (h *Handler) handleModifierAffectations(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "identifiant invalide", nil)
		return
	}

	var payload struct {
		Affectations []Affectation `json:"affectations"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON invalide", nil)
		return
	}

	if err := h.service.ModifierAffectations(r.Context(), id, payload.Affectations); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"statut": "ok"})
}

func (h *Handler) handleListInvitations(w http.ResponseWriter, r *http.Request) {
	invitations, err := h.service.ListInvitations(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invitations": invitations})
}

func (h *Handler) handleInviter(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	creePar, err := uuid.Parse(httpmiddleware.GetSubject(ctx))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "session invalide", nil)
		return
	}

	var payload struct {
		Email        string        `json:"email"`
		Nom          string        `json:"nom"`
		Prenom       string        `json:"prenom"`
		Telephone    *string       `json:"telephone"`
		Role         string        `json:"role"`
		Affectations []Affectation `json:"affectations"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON invalide", nil)
		return
	}

	inv, err := h.service.Inviter(ctx, InviterInput{
		Email:        payload.Email,
		Nom:          payload.Nom,
		Prenom:       payload.Prenom,
		Telephone:    payload.Telephone,
		Role:         payload.Role,
		Affectations: payload.Affectations,
		CreeParID:    creePar,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"invitation": inv})
}

func (h *Handler) handleAccepter(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Token      string `json:"token"`
		MotDePasse string `json:"mot_de_passe"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON invalide", nil)
		return
	}

	u, err := h.service.AccepterInvitation(r.Context(), AccepterInput{
		Token:      payload.Token,
		MotDePasse: payload.MotDePasse,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"compte": u})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrEmailDejaUtilise), errors.Is(err, ErrInvitationConsommee):
		writeError(w, http.StatusConflict, "VALIDATION", err.Error(), nil)
	case errors.Is(err, ErrInvitationInvalide), errors.Is(err, ErrInvitationExpiree):
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
	default:
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
	}
}

func writeInternalError(w http.ResponseWriter, err error) {
	log.Error().Err(err).Msg("compte handler error")
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
