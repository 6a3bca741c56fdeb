package compta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const depenseColumns = `
        id, immeuble_id, libelle, categorie, montant, date, cree_par_id, cree_le, maj_le`

// Repository fournit l'accès aux dépenses et rapports annuels.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateDepense enregistre une dépense.
func (r *Repository) CreateDepense(ctx context.Context, immeubleID, creePar uuid.UUID, input DepenseInput) (*Depense, error) {
	row := r.pool.QueryRow(ctx, `
        INSERT INTO depenses (id, immeuble_id, libelle, categorie, montant, date, cree_par_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING`+depenseColumns,
		uuid.New(), immeubleID, strings.TrimSpace(input.Libelle), input.Categorie,
		input.Montant, input.Date, creePar)
	return scanDepense(row)
}

// GetDepense récupère une dépense.
func (r *Repository) GetDepense(ctx context.Context, id uuid.UUID) (*Depense, error) {
	const query = `SELECT` + depenseColumns + ` FROM depenses WHERE id = $1`
	return scanDepense(r.pool.QueryRow(ctx, query, id))
}

// ListDepenses retourne les dépenses d'un immeuble entre deux périodes
// AAAA-MM incluses.
func (r *Repository) ListDepenses(ctx context.Context, immeubleID uuid.UUID, debut, fin string) ([]Depense, error) {
	const query = `
        SELECT` + depenseColumns + `
        FROM depenses
        WHERE immeuble_id = $1 AND to_char(date, 'YYYY-MM') BETWEEN $2 AND $3
        ORDER BY date DESC
    `

	rows, err := r.pool.Query(ctx, query, immeubleID, debut, fin)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Depense
	for rows.Next() {
		d, err := scanDepense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// UpdateDepense modifie une dépense.
func (r *Repository) UpdateDepense(ctx context.Context, id uuid.UUID, input DepenseInput) (*Depense, error) {
	const query = `
        UPDATE depenses
        SET libelle = $2, categorie = $3, montant = $4, date = $5, maj_le = now()
        WHERE id = $1
        RETURNING` + depenseColumns

	return scanDepense(r.pool.QueryRow(ctx, query, id,
		strings.TrimSpace(input.Libelle), input.Categorie, input.Montant, input.Date))
}

// DeleteDepense supprime une dépense.
func (r *Repository) DeleteDepense(ctx context.Context, id uuid.UUID) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM depenses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SommeDepenses agrège les dépenses sur un intervalle de périodes.
func (r *Repository) SommeDepenses(ctx context.Context, immeubleID uuid.UUID, debut, fin string) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
        SELECT COALESCE(SUM(montant), 0)
        FROM depenses
        WHERE immeuble_id = $1 AND to_char(date, 'YYYY-MM') BETWEEN $2 AND $3
    `, immeubleID, debut, fin).Scan(&total)
	return total, err
}

// DepensesParMois ventile les dépenses d'une année par période.
func (r *Repository) DepensesParMois(ctx context.Context, immeubleID uuid.UUID, debut, fin string) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT to_char(date, 'YYYY-MM') AS periode, SUM(montant)
        FROM depenses
        WHERE immeuble_id = $1 AND to_char(date, 'YYYY-MM') BETWEEN $2 AND $3
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

const rapportColumns = `
        id, immeuble_id, annee, revenus, depenses, solde, detail, retardataires, genere_par_id, genere_le`

// GetRapport relit un rapport annuel figé.
func (r *Repository) GetRapport(ctx context.Context, immeubleID uuid.UUID, annee int) (*RapportAnnuel, error) {
	row := r.pool.QueryRow(ctx, `
        SELECT`+rapportColumns+`
        FROM rapports_annuels
        WHERE immeuble_id = $1 AND annee = $2
    `, immeubleID, annee)
	return scanRapport(row)
}

// ListRapports retourne les rapports figés d'un immeuble, du plus
// récent au plus ancien.
func (r *Repository) ListRapports(ctx context.Context, immeubleID uuid.UUID) ([]RapportAnnuel, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT`+rapportColumns+`
        FROM rapports_annuels
        WHERE immeuble_id = $1
        ORDER BY annee DESC
    `, immeubleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RapportAnnuel
	for rows.Next() {
		rapport, err := scanRapport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rapport)
	}
	return out, rows.Err()
}

// DeleteRapport supprime un rapport figé. L'année redevient générable.
func (r *Repository) DeleteRapport(ctx context.Context, immeubleID uuid.UUID, annee int) error {
	cmd, err := r.pool.Exec(ctx,
		`DELETE FROM rapports_annuels WHERE immeuble_id = $1 AND annee = $2`, immeubleID, annee)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrRapportNotFound
	}
	return nil
}

// InsertRapport fige un rapport. La contrainte d'unicité
// (immeuble, année) protège contre une double génération concurrente.
func (r *Repository) InsertRapport(ctx context.Context, rapport *RapportAnnuel) (*RapportAnnuel, error) {
	detail, err := json.Marshal(rapport.Detail)
	if err != nil {
		return nil, err
	}
	retardataires, err := json.Marshal(rapport.Retardataires)
	if err != nil {
		return nil, err
	}

	row := r.pool.QueryRow(ctx, `
        INSERT INTO rapports_annuels (id, immeuble_id, annee, revenus, depenses, solde, detail, retardataires, genere_par_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (immeuble_id, annee) DO NOTHING
        RETURNING`+rapportColumns,
		uuid.New(), rapport.ImmeubleID, rapport.Annee, rapport.Revenus, rapport.Depenses,
		rapport.Solde, detail, retardataires, rapport.GenereParID)

	inserted, err := scanRapport(row)
	if err != nil {
		if errors.Is(err, ErrRapportNotFound) {
			// Course perdue: un rapport concurrent vient d'être figé.
			return r.GetRapport(ctx, rapport.ImmeubleID, rapport.Annee)
		}
		return nil, err
	}
	return inserted, nil
}

// OccupationsAnnee ventile, par locataire, les mois d'occupation d'un
// immeuble sur une année. Les positions courantes et l'historique sont
// confondus: un locataire entré, sorti puis revenu compte chaque mois
// une seule fois.
func (r *Repository) OccupationsAnnee(ctx context.Context, immeubleID uuid.UUID, annee int) ([]Occupation, error) {
	debut := fmt.Sprintf("%04d-01-01", annee)
	fin := fmt.Sprintf("%04d-12-01", annee)

	rows, err := r.pool.Query(ctx, `
        SELECT locataire_id, nom, prenom, COUNT(DISTINCT mois)
        FROM (
            SELECT l.id AS locataire_id, l.nom, l.prenom,
                   to_char(gs, 'YYYY-MM') AS mois
            FROM locataires l
            JOIN appartements a ON a.id = l.appartement_id
            CROSS JOIN generate_series(
                GREATEST(date_trunc('month', l.date_entree), $2::date),
                $3::date, interval '1 month') gs
            WHERE a.immeuble_id = $1 AND date_trunc('month', l.date_entree) <= $3::date
            UNION ALL
            SELECT h.locataire_id, h.nom, h.prenom,
                   to_char(gs, 'YYYY-MM')
            FROM historique_locataires h
            JOIN appartements a ON a.id = h.appartement_id
            CROSS JOIN generate_series(
                GREATEST(date_trunc('month', h.date_entree), $2::date),
                LEAST(date_trunc('month', h.date_sortie), $3::date), interval '1 month') gs
            WHERE a.immeuble_id = $1 AND h.date_sortie >= $2::date
        ) occupation
        GROUP BY locataire_id, nom, prenom
        ORDER BY nom, prenom
    `, immeubleID, debut, fin)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Occupation
	for rows.Next() {
		var occ Occupation
		if err := rows.Scan(&occ.LocataireID, &occ.Nom, &occ.Prenom, &occ.Mois); err != nil {
			return nil, err
		}
		out = append(out, occ)
	}
	return out, rows.Err()
}

func scanDepense(row pgx.Row) (*Depense, error) {
	var d Depense
	err := row.Scan(&d.ID, &d.ImmeubleID, &d.Libelle, &d.Categorie, &d.Montant,
		&d.Date, &d.CreeParID, &d.CreeLe, &d.MajLe)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanRapport(row pgx.Row) (*RapportAnnuel, error) {
	var (
		rapport       RapportAnnuel
		detail        []byte
		retardataires []byte
	)
	err := row.Scan(&rapport.ID, &rapport.ImmeubleID, &rapport.Annee, &rapport.Revenus,
		&rapport.Depenses, &rapport.Solde, &detail, &retardataires,
		&rapport.GenereParID, &rapport.GenereLe)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRapportNotFound
		}
		return nil, err
	}
	if len(detail) > 0 {
		if err := json.Unmarshal(detail, &rapport.Detail); err != nil {
			return nil, err
		}
	}
	if len(retardataires) > 0 {
		if err := json.Unmarshal(retardataires, &rapport.Retardataires); err != nil {
			return nil, err
		}
	}
	return &rapport, nil
}
