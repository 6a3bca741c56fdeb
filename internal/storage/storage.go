// Package storage persiste les pièces jointes, principalement les
// justificatifs de reçus envoyés par les locataires.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// UploadInput représente un envoi de blob.
type UploadInput struct {
	Key          string
	Body         []byte
	ContentType  string
	CacheControl string
}

// UploadResult décrit l'artefact persisté.
type UploadResult struct {
	URL  string
	ETag string
}

// Uploader définit le comportement minimal de stockage de blobs.
type Uploader interface {
	Upload(ctx context.Context, input UploadInput) (*UploadResult, error)
}

// RecuKey construit la clé d'objet d'un justificatif de reçu. Le nom
// d'origine n'est conservé que pour son extension.
func RecuKey(immeubleID, recuID uuid.UUID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("recus/%s/%s%s", immeubleID, recuID, ext)
}
