package util

import (
	"net/mail"
	"strings"
)

// ErreurValidation signale une entrée utilisateur rejetée. Les
// handlers la détectent avec errors.As pour répondre 400 plutôt
// que 500.
type ErreurValidation struct {
	Message string
}

func (e *ErreurValidation) Error() string { return e.Message }

// Invalide construit une ErreurValidation.
func Invalide(message string) error {
	return &ErreurValidation{Message: message}
}

// ValidateEmail retourne une erreur pour les e-mails invalides.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return Invalide("email obligatoire")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return Invalide("email invalide")
	}
	return nil
}

// ValidatePassword vérifie les exigences minimales de mot de passe.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return Invalide("le mot de passe doit contenir au moins 8 caractères")
	}
	return nil
}

// RequireString garantit une chaîne non vide.
func RequireString(value, field string) error {
	if strings.TrimSpace(value) == "" {
		return Invalide(field + " obligatoire")
	}
	return nil
}
