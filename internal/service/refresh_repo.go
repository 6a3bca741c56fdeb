package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrTokenNotFound signale un refresh token inconnu en base.
var ErrTokenNotFound = errors.New("refresh token introuvable")

// TokenRefresh est la trace en base d'un refresh token émis. Seule
// l'empreinte du jeton est stockée.
type TokenRefresh struct {
	ID        uuid.UUID
	Subject   uuid.UUID
	Audience  string
	TokenHash string
	ExpireLe  time.Time
	Revoque   bool
	CreeLe    time.Time
}

// RefreshRepository persiste les refresh tokens.
type RefreshRepository struct {
	pool *pgxpool.Pool
}

func NewRefreshRepository(pool *pgxpool.Pool) *RefreshRepository {
	return &RefreshRepository{pool: pool}
}

func (r *RefreshRepository) Insert(ctx context.Context, t TokenRefresh) error {
	_, err := r.pool.Exec(ctx, `
        INSERT INTO tokens_refresh (id, subject, audience, token_hash, expire_le)
        VALUES ($1, $2, $3, $4, $5)
    `, t.ID, t.Subject, t.Audience, t.TokenHash, t.ExpireLe)
	return err
}

func (r *RefreshRepository) GetByHash(ctx context.Context, tokenHash string) (*TokenRefresh, error) {
	var t TokenRefresh
	err := r.pool.QueryRow(ctx, `
        SELECT id, subject, audience, token_hash, expire_le, revoque, cree_le
        FROM tokens_refresh WHERE token_hash = $1
    `, tokenHash).Scan(&t.ID, &t.Subject, &t.Audience, &t.TokenHash, &t.ExpireLe, &t.Revoque, &t.CreeLe)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *RefreshRepository) Revoke(ctx context.Context, tokenHash string) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE tokens_refresh SET revoque = TRUE WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// RevokeOthers révoque tous les jetons du sujet sauf celui conservé.
// Une rotation laisse ainsi au plus un refresh token actif par
// audience.
func (r *RefreshRepository) RevokeOthers(ctx context.Context, subject uuid.UUID, audience, keepHash string) error {
	_, err := r.pool.Exec(ctx, `
        UPDATE tokens_refresh SET revoque = TRUE
        WHERE subject = $1 AND audience = $2 AND token_hash <> $3
    `, subject, audience, keepHash)
	return err
}
