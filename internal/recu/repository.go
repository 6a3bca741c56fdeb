package recu

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gestimmo/api/internal/db"
)

const recuColumns = `
        id, locataire_id, appartement_id, immeuble_id, periode, nombre_mois, montant,
        description, fichier_url, statut, commentaire, revu_par_id, revu_le, cree_le, maj_le`

// Repository fournit l'accès aux reçus.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create insère un reçu en attente de revue.
func (r *Repository) Create(ctx context.Context, rec *Recu) (*Recu, error) {
	row := r.pool.QueryRow(ctx, `
        INSERT INTO recus (id, locataire_id, appartement_id, immeuble_id, periode, nombre_mois, montant, description, fichier_url, statut)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'en_attente')
        RETURNING`+recuColumns,
		uuid.New(), rec.LocataireID, rec.AppartementID, rec.ImmeubleID,
		rec.Periode, rec.NombreMois, rec.Montant, rec.Description, rec.FichierURL)
	return scanRecu(row)
}

// GetByID récupère un reçu.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Recu, error) {
	const query = `SELECT` + recuColumns + ` FROM recus WHERE id = $1`
	return scanRecu(r.pool.QueryRow(ctx, query, id))
}

// ListByImmeuble retourne les reçus d'un immeuble, filtrés par statut
// si fourni.
func (r *Repository) ListByImmeuble(ctx context.Context, immeubleID uuid.UUID, statut string) ([]Recu, error) {
	query := `SELECT` + recuColumns + ` FROM recus WHERE immeuble_id = $1`
	args := []any{immeubleID}
	if statut != "" {
		query += ` AND statut = $2`
		args = append(args, statut)
	}
	query += ` ORDER BY cree_le DESC`
	return r.queryList(ctx, query, args...)
}

// ListByLocataire retourne les reçus d'un locataire.
func (r *Repository) ListByLocataire(ctx context.Context, locataireID uuid.UUID) ([]Recu, error) {
	const query = `SELECT` + recuColumns + ` FROM recus WHERE locataire_id = $1 ORDER BY cree_le DESC`
	return r.queryList(ctx, query, locataireID)
}

// Review applique la décision. Le verrou garantit qu'une seule revue
// aboutit, la décision étant terminale.
func (r *Repository) Review(ctx context.Context, input ReviewInput) (*Recu, error) {
	var out *Recu
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		courant, err := scanRecu(tx.QueryRow(ctx,
			`SELECT`+recuColumns+` FROM recus WHERE id = $1 FOR UPDATE`, input.RecuID))
		if err != nil {
			return err
		}
		if courant.Statut != StatutEnAttente {
			return ErrDejaRevu
		}

		statut := StatutRejete
		if input.Approuve {
			statut = StatutApprouve
		}
		montant := courant.Montant
		if input.Montant > 0 {
			montant = input.Montant
		}
		if input.Approuve && montant <= 0 {
			return ErrMontantRequis
		}
		var commentaire *string
		if input.Commentaire != "" {
			commentaire = &input.Commentaire
		}

		description := courant.Description
		if input.Description != nil {
			description = *input.Description
		}

		out, err = scanRecu(tx.QueryRow(ctx, `
            UPDATE recus
            SET statut = $2, montant = $3, description = $4, commentaire = $5, revu_par_id = $6, revu_le = now(), maj_le = now()
            WHERE id = $1
            RETURNING`+recuColumns,
			input.RecuID, statut, montant, description, commentaire, input.RevuParID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SommeApprouvee agrège les reçus approuvés d'un immeuble sur un
// intervalle de périodes inclusif.
func (r *Repository) SommeApprouvee(ctx context.Context, immeubleID uuid.UUID, debut, fin string) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
        SELECT COALESCE(SUM(montant), 0)
        FROM recus
        WHERE immeuble_id = $1 AND statut = 'approuve' AND periode BETWEEN $2 AND $3
    `, immeubleID, debut, fin).Scan(&total)
	return total, err
}

// ParMois ventile les reçus approuvés par période sur l'intervalle.
func (r *Repository) ParMois(ctx context.Context, immeubleID uuid.UUID, debut, fin string) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT periode, SUM(montant)
        FROM recus
        WHERE immeuble_id = $1 AND statut = 'approuve' AND periode BETWEEN $2 AND $3
        GROUP BY periode
    `, immeubleID, debut, fin)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var (
			periode string
			total   int64
		)
		if err := rows.Scan(&periode, &total); err != nil {
			return nil, err
		}
		out[periode] = total
	}
	return out, rows.Err()
}

// MoisReglesParLocataire compte, par locataire, les mois distincts
// couverts par au moins un reçu approuvé sur l'intervalle. Un reçu
// couvre nombre_mois mois consécutifs à partir de sa période.
func (r *Repository) MoisReglesParLocataire(ctx context.Context, immeubleID uuid.UUID, debut, fin string) (map[uuid.UUID]int, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT locataire_id, COUNT(DISTINCT mois)
        FROM (
            SELECT r.locataire_id,
                   to_char(generate_series(
                       to_date(r.periode, 'YYYY-MM'),
                       to_date(r.periode, 'YYYY-MM') + make_interval(months => r.nombre_mois - 1),
                       interval '1 month'
                   ), 'YYYY-MM') AS mois
            FROM recus r
            WHERE r.immeuble_id = $1 AND r.statut = 'approuve'
        ) couverts
        WHERE mois BETWEEN $2 AND $3
        GROUP BY locataire_id
    `, immeubleID, debut, fin)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[uuid.UUID]int{}
	for rows.Next() {
		var (
			locataireID uuid.UUID
			mois        int
		)
		if err := rows.Scan(&locataireID, &mois); err != nil {
			return nil, err
		}
		out[locataireID] = mois
	}
	return out, rows.Err()
}

func (r *Repository) queryList(ctx context.Context, query string, args ...any) ([]Recu, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Recu
	for rows.Next() {
		rec, err := scanRecu(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanRecu(row pgx.Row) (*Recu, error) {
	var (
		rec    Recu
		revuLe *time.Time
	)
	err := row.Scan(&rec.ID, &rec.LocataireID, &rec.AppartementID, &rec.ImmeubleID,
		&rec.Periode, &rec.NombreMois, &rec.Montant, &rec.Description, &rec.FichierURL,
		&rec.Statut, &rec.Commentaire, &rec.RevuParID, &revuLe, &rec.CreeLe, &rec.MajLe)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec.RevuLe = revuLe
	return &rec, nil
}
