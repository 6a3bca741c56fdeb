package util

import (
	"time"

	"github.com/google/uuid"
)

// NewID génère un UUID v4 sous forme de chaîne.
func NewID() string {
	return uuid.NewString()
}

// Now retourne l'heure courante en UTC.
func Now() time.Time {
	return time.Now().UTC()
}
