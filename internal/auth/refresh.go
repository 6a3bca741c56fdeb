package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	// ErrInvalidRefresh est retourné quand le refresh token est invalide ou expiré.
	ErrInvalidRefresh = errors.New("refresh token invalide")
)

// GenerateToken crée un token aléatoire sûr et son hash persistable.
// Sert aussi bien aux refresh tokens qu'aux tokens d'invitation.
func GenerateToken() (raw string, hashed string, err error) {
	buf := make([]byte, 32)
	if _, err = rand.Read(buf); err != nil {
		return "", "", err
	}

	raw = base64.RawURLEncoding.EncodeToString(buf)
	hashed = HashToken(raw)
	return raw, hashed, nil
}

// HashToken produit un hash SHA-256 encodé en base64.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// RefreshRedisKey construit la clé unique portant l'état du refresh.
func RefreshRedisKey(audience, hash string) string {
	return fmt.Sprintf("refresh:%s:%s", audience, hash)
}
