package recu

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	httpmiddleware "github.com/gestimmo/api/internal/http/middleware"
	"github.com/gestimmo/api/internal/locataire"
)

// Handler expose le dépôt et la revue des reçus.
type Handler struct {
	service    *Service
	locataires *locataire.Service
}

func NewHandler(service *Service, locataires *locataire.Service) *Handler {
	return &Handler{service: service, locataires: locataires}
}

// RegisterRoutes branche les routes backoffice.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/immeubles/{immeubleID}/recus", h.handleListByImmeuble)
	r.Post("/recus/{id}/revue", h.handleRevue)
}

// RegisterLocataireRoutes branche l'espace locataire.
func (h *Handler) RegisterLocataireRoutes(r chi.Router) {
	r.Get("/moi/recus", h.handleMesRecus)
	r.Post("/moi/recus", h.handleDeposer)
}

func (h *Handler) handleListByImmeuble(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	immeubleID, err := uuid.Parse(chi.URLParam(r, "immeubleID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "identifiant invalide", nil)
		return
	}

	perms := httpmiddleware.GetPermissions(ctx)
	if perms == nil || !perms.LectureCompta(immeubleID) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "permission refusée", nil)
		return
	}

	recus, err := h.service.ListByImmeuble(ctx, immeubleID, r.URL.Query().Get("statut"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recus": recus})
}

func (h *Handler) handleRevue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "identifiant invalide", nil)
		return
	}

	rec, err := h.service.Get(ctx, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	perms := httpmiddleware.GetPermissions(ctx)
	if perms == nil || !perms.EcritureCompta(rec.ImmeubleID) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "permission refusée", nil)
		return
	}

	revuPar, err := uuid.Parse(httpmiddleware.GetSubject(ctx))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "session invalide", nil)
		return
	}

	var payload struct {
		Approuve    bool    `json:"approuve"`
		Commentaire string  `json:"commentaire"`
		Montant     int64   `json:"montant"`
		Description *string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON invalide", nil)
		return
	}

	revu, err := h.service.Revoir(ctx, ReviewInput{
		RecuID:      id,
		RevuParID:   revuPar,
		Approuve:    payload.Approuve,
		Commentaire: payload.Commentaire,
		Montant:     payload.Montant,
		Description: payload.Description,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recu": revu})
}

func (h *Handler) handleMesRecus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	locataireID, err := uuid.Parse(httpmiddleware.GetSubject(ctx))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "session invalide", nil)
		return
	}

	recus, err := h.service.ListByLocataire(ctx, locataireID)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recus": recus})
}

// handleDeposer reçoit le justificatif en multipart. L'appartement et
// l'immeuble proviennent de la fiche du locataire, jamais du client.
func (h *Handler) handleDeposer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	locataireID, err := uuid.Parse(httpmiddleware.GetSubject(ctx))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "session invalide", nil)
		return
	}

	fiche, err := h.locataires.Fiche(ctx, locataireID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if fiche.Appartement == nil {
		writeError(w, http.StatusConflict, "VALIDATION", "aucun appartement affecté", nil)
		return
	}

	if err := r.ParseMultipartForm(MaxFichier); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "formulaire invalide", nil)
		return
	}

	// Montant et description sont facultatifs au dépôt, le réviseur
	// les renseigne pendant la revue.
	var montant int64
	if v := r.FormValue("montant"); v != "" {
		montant, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION", "montant invalide", nil)
			return
		}
	}

	nombreMois := 1
	if v := r.FormValue("nombre_mois"); v != "" {
		nombreMois, err = strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION", "nombre de mois invalide", nil)
			return
		}
	}

	file, header, err := r.FormFile("fichier")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "justificatif obligatoire", nil)
		return
	}
	defer file.Close()

	body, err := io.ReadAll(io.LimitReader(file, MaxFichier+1))
	if err != nil {
		writeInternalError(w, err)
		return
	}

	rec, err := h.service.Deposer(ctx, CreateInput{
		LocataireID:   locataireID,
		AppartementID: fiche.Appartement.ID,
		ImmeubleID:    fiche.Appartement.ImmeubleID,
		Periode:       r.FormValue("periode"),
		NombreMois:    nombreMois,
		Montant:       montant,
		Description:   r.FormValue("description"),
		Fichier:       body,
		NomFichier:    header.Filename,
		ContentType:   header.Header.Get("Content-Type"),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"recu": rec})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, locataire.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrDejaRevu):
		writeError(w, http.StatusConflict, "VALIDATION", err.Error(), nil)
	case errors.Is(err, ErrPeriodeInvalide), errors.Is(err, ErrDecisionInvalide), errors.Is(err, ErrMontantRequis):
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
	default:
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
	}
}

func writeInternalError(w http.ResponseWriter, err error) {
	log.Error().Err(err).Msg("recu handler error")
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
