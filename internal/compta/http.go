package compta

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	httpmiddleware "github.com/gestimmo/api/internal/http/middleware"
	"github.com/gestimmo/api/internal/permission"
)

// Handler expose les routes comptables du backoffice.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/immeubles/{immeubleID}", func(r chi.Router) {
		r.Get("/depenses", h.handleListDepenses)
		r.Post("/depenses", h.handleCreateDepense)
		r.Get("/bilan", h.handleBilan)
		r.Get("/rapports", h.handleListRapports)
		r.Get("/rapports/{annee}", h.handleRapportAnnuel)
		r.Delete("/rapports/{annee}", h.handleDeleteRapport)
	})

	r.Route("/depenses/{id}", func(r chi.Router) {
		r.Put("/", h.handleUpdateDepense)
		r.Delete("/", h.handleDeleteDepense)
	})
}

func (h *Handler) handleListDepenses(w http.ResponseWriter, r *http.Request) {
	immeubleID, ok := h.immeubleAvecDroit(w, r, (*permission.Contexte).LectureCompta)
	if !ok {
		return
	}

	debut, fin := bornesRequete(r)
	depenses, err := h.service.ListDepenses(r.Context(), immeubleID, debut, fin)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"depenses": depenses})
}

func (h *Handler) handleCreateDepense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	immeubleID, ok := h.immeubleAvecDroit(w, r, (*permission.Contexte).EcritureCompta)
	if !ok {
		return
	}

	creePar, err := uuid.Parse(httpmiddleware.GetSubject(ctx))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "session invalide", nil)
		return
	}

	input, ok := decodeDepense(w, r)
	if !ok {
		return
	}

	d, err := h.service.CreateDepense(ctx, immeubleID, creePar, input)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"depense": d})
}

func (h *Handler) handleUpdateDepense(w http.ResponseWriter, r *http.Request) {
	d, ok := h.depenseAvecDroit(w, r)
	if !ok {
		return
	}

	input, ok := decodeDepense(w, r)
	if !ok {
		return
	}

	updated, err := h.service.UpdateDepense(r.Context(), d.ID, input)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"depense": updated})
}

func (h *Handler) handleDeleteDepense(w http.ResponseWriter, r *http.Request) {
	d, ok := h.depenseAvecDroit(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteDepense(r.Context(), d.ID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"statut": "supprime"})
}

func (h *Handler) handleBilan(w http.ResponseWriter, r *http.Request) {
	immeubleID, ok := h.immeubleAvecDroit(w, r, (*permission.Contexte).LectureCompta)
	if !ok {
		return
	}

	debut, fin := bornesRequete(r)
	bilan, err := h.service.Bilan(r.Context(), immeubleID, debut, fin)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bilan": bilan})
}

func (h *Handler) handleRapportAnnuel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	immeubleID, ok := h.immeubleAvecDroit(w, r, (*permission.Contexte).ExportStats)
	if !ok {
		return
	}

	annee, err := strconv.Atoi(chi.URLParam(r, "annee"))
	if err != nil || annee < 2000 || annee > 2200 {
		writeError(w, http.StatusBadRequest, "VALIDATION", "année invalide", nil)
		return
	}

	generePar, err := uuid.Parse(httpmiddleware.GetSubject(ctx))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "session invalide", nil)
		return
	}

	rapport, err := h.service.RapportAnnuel(ctx, immeubleID, annee, generePar)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rapport": rapport})
}

func (h *Handler) handleListRapports(w http.ResponseWriter, r *http.Request) {
	immeubleID, ok := h.immeubleAvecDroit(w, r, (*permission.Contexte).ExportStats)
	if !ok {
		return
	}

	rapports, err := h.service.ListRapports(r.Context(), immeubleID)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rapports": rapports})
}

func (h *Handler) handleDeleteRapport(w http.ResponseWriter, r *http.Request) {
	immeubleID, ok := h.immeubleAvecDroit(w, r, (*permission.Contexte).EcritureCompta)
	if !ok {
		return
	}

	annee, err := strconv.Atoi(chi.URLParam(r, "annee"))
	if err != nil || annee < 2000 || annee > 2200 {
		writeError(w, http.StatusBadRequest, "VALIDATION", "année invalide", nil)
		return
	}

	if err := h.service.DeleteRapport(r.Context(), immeubleID, annee); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"statut": "supprime"})
}

func (h *Handler) immeubleAvecDroit(w http.ResponseWriter, r *http.Request, pred func(*permission.Contexte, uuid.UUID) bool) (uuid.UUID, bool) {
	immeubleID, err := uuid.Parse(chi.URLParam(r, "immeubleID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "identifiant invalide", nil)
		return uuid.Nil, false
	}

	perms := httpmiddleware.GetPermissions(r.Context())
	if perms == nil || !pred(perms, immeubleID) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "permission refusée", nil)
		return uuid.Nil, false
	}
	return immeubleID, true
}

func (h *Handler) depenseAvecDroit(w http.ResponseWriter, r *http.Request) (*Depense, bool) {
	ctx := r.Context()
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "identifiant invalide", nil)
		return nil, false
	}

	d, err := h.service.GetDepense(ctx, id)
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}

	perms := httpmiddleware.GetPermissions(ctx)
	if perms == nil || !perms.EcritureCompta(d.ImmeubleID) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "permission refusée", nil)
		return nil, false
	}
	return d, true
}

func decodeDepense(w http.ResponseWriter, r *http.Request) (DepenseInput, bool) {
	var payload struct {
		Libelle   string    `json:"libelle"`
		Categorie string    `json:"categorie"`
		Montant   int64     `json:"montant"`
		Date      time.Time `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON invalide", nil)
		return DepenseInput{}, false
	}
	return DepenseInput{
		Libelle:   payload.Libelle,
		Categorie: payload.Categorie,
		Montant:   payload.Montant,
		Date:      payload.Date,
	}, true
}

// bornesRequete lit l'intervalle de périodes, avec l'année civile
// courante par défaut.
func bornesRequete(r *http.Request) (string, string) {
	debut := r.URL.Query().Get("debut")
	fin := r.URL.Query().Get("fin")
	if debut == "" || fin == "" {
		annee := time.Now().UTC().Year()
		debut, fin = BornesAnnee(annee)
	}
	return debut, fin
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrRapportNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrAnneeOuverte):
		writeError(w, http.StatusConflict, "VALIDATION", err.Error(), nil)
	default:
		writeInternalError(w, err)
	}
}

func writeInternalError(w http.ResponseWriter, err error) {
	log.Error().Err(err).Msg("compta handler error")
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
