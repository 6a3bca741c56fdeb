package locataire

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gestimmo/api/internal/util"
)

func TestWriteDomainErrorClasseLesErreursParType(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"saisie rejetée", util.Invalide("nom obligatoire"), 400, "VALIDATION"},
		{"saisie enveloppée", fmt.Errorf("création: %w", util.Invalide("email invalide")), 400, "VALIDATION"},
		{"introuvable", ErrNotFound, 404, "NOT_FOUND"},
		{"conflit téléphone", ErrTelephoneDejaUtilise, 409, "VALIDATION"},
		// Une panne technique reste une 500 même si son message
		// contient un mot-clé de validation.
		{"panne au message trompeur", errors.New(`colonne "date_requise" invalide`), 500, "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeDomainError(rec, tt.err)

			if rec.Code != tt.status {
				t.Fatalf("statut: attendu %d, obtenu %d", tt.status, rec.Code)
			}
			var body struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("décodage: %v", err)
			}
			if body.Error.Code != tt.code {
				t.Fatalf("code: attendu %q, obtenu %q", tt.code, body.Error.Code)
			}
		})
	}
}
