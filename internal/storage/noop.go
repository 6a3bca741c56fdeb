package storage

import (
	"context"
	"errors"
)

// NoopUploader refuse tout envoi, aucun backend n'étant configuré.
type NoopUploader struct{}

func (NoopUploader) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	return nil, errors.New("storage: aucun backend configuré")
}
