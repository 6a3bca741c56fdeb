package immeuble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const immeubleColumns = `
        id, nom, pays, ville, quartier, type, nombre_appartements,
        proprietaire_nom, proprietaire_contact, proprietaire_date_debut,
        cree_le, maj_le`

const appartementColumns = `
        id, immeuble_id, numero, statut,
        locataire_id, locataire_nom, locataire_prenom, locataire_telephone,
        locataire_email, locataire_date_entree, cree_le, maj_le`

// Repository fournit l'accès aux immeubles et appartements.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create insère l'immeuble et provisionne les appartements numérotés.
func (r *Repository) Create(ctx context.Context, input CreateInput) (*Immeuble, error) {
	const query = `
        INSERT INTO immeubles (id, nom, pays, ville, quartier, type, nombre_appartements,
                               proprietaire_nom, proprietaire_contact, proprietaire_date_debut)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING` + immeubleColumns

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	id := uuid.New()
	row := tx.QueryRow(ctx, query,
		id,
		strings.TrimSpace(input.Nom),
		strings.TrimSpace(input.Pays),
		strings.TrimSpace(input.Ville),
		strings.TrimSpace(input.Quartier),
		input.Type,
		input.NombreAppartements,
		strings.TrimSpace(input.Proprietaire.Nom),
		strings.TrimSpace(input.Proprietaire.Contact),
		input.Proprietaire.DateDebut,
	)

	imm, err := scanImmeuble(row)
	if err != nil {
		return nil, err
	}

	// Le nombre déclaré sert de graine; rien ne force l'égalité ensuite.
	for i := 1; i <= input.NombreAppartements; i++ {
		if _, err := tx.Exec(ctx, `
            INSERT INTO appartements (id, immeuble_id, numero, statut)
            VALUES ($1, $2, $3, 'libre')
        `, uuid.New(), id, fmt.Sprintf("A%03d", i)); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return imm, nil
}

// GetByID récupère un immeuble.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Immeuble, error) {
	const query = `SELECT` + immeubleColumns + ` FROM immeubles WHERE id = $1`
	return scanImmeuble(r.pool.QueryRow(ctx, query, id))
}

// List retourne les immeubles, éventuellement restreints à un ensemble d'ids.
func (r *Repository) List(ctx context.Context, ids []uuid.UUID) ([]Immeuble, error) {
	query := `SELECT` + immeubleColumns + ` FROM immeubles`
	args := []any{}
	if ids != nil {
		query += ` WHERE id = ANY($1)`
		args = append(args, ids)
	}
	query += ` ORDER BY cree_le ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Immeuble
	for rows.Next() {
		imm, err := scanImmeuble(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *imm)
	}
	return out, rows.Err()
}

// Update modifie les champs descriptifs de l'immeuble.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*Immeuble, error) {
	const query = `
        UPDATE immeubles
        SET nom = $2, pays = $3, ville = $4, quartier = $5, type = $6, maj_le = now()
        WHERE id = $1
        RETURNING` + immeubleColumns

	return scanImmeuble(r.pool.QueryRow(ctx, query, id,
		strings.TrimSpace(input.Nom),
		strings.TrimSpace(input.Pays),
		strings.TrimSpace(input.Ville),
		strings.TrimSpace(input.Quartier),
		input.Type,
	))
}

// ChangeOwner archive le propriétaire courant et installe le nouveau.
func (r *Repository) ChangeOwner(ctx context.Context, id uuid.UUID, nouveau Proprietaire) (*Immeuble, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var (
		ancienNom     string
		ancienContact string
		ancienDebut   time.Time
	)
	err = tx.QueryRow(ctx, `
        SELECT proprietaire_nom, proprietaire_contact, proprietaire_date_debut
        FROM immeubles WHERE id = $1 FOR UPDATE
    `, id).Scan(&ancienNom, &ancienContact, &ancienDebut)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
        INSERT INTO proprietaires_historique (id, immeuble_id, nom, contact, date_debut, date_fin)
        VALUES ($1, $2, $3, $4, $5, now())
    `, uuid.New(), id, ancienNom, ancienContact, ancienDebut); err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
        UPDATE immeubles
        SET proprietaire_nom = $2, proprietaire_contact = $3, proprietaire_date_debut = $4, maj_le = now()
        WHERE id = $1
        RETURNING`+immeubleColumns,
		id, strings.TrimSpace(nouveau.Nom), strings.TrimSpace(nouveau.Contact), nouveau.DateDebut)

	imm, err := scanImmeuble(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return imm, nil
}

// ListOwnerHistory retourne l'historique des propriétaires.
func (r *Repository) ListOwnerHistory(ctx context.Context, id uuid.UUID) ([]ProprietaireHistorique, error) {
	const query = `
        SELECT id, nom, contact, date_debut, date_fin
        FROM proprietaires_historique
        WHERE immeuble_id = $1
        ORDER BY date_debut ASC
    `

	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProprietaireHistorique
	for rows.Next() {
		var h ProprietaireHistorique
		if err := rows.Scan(&h.ID, &h.Nom, &h.Contact, &h.DateDebut, &h.DateFin); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Delete supprime l'immeuble; appartements et historiques suivent en cascade.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM immeubles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAppartements retourne les appartements d'un immeuble.
func (r *Repository) ListAppartements(ctx context.Context, immeubleID uuid.UUID) ([]Appartement, error) {
	const query = `SELECT` + appartementColumns + ` FROM appartements WHERE immeuble_id = $1 ORDER BY numero ASC`

	rows, err := r.pool.Query(ctx, query, immeubleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Appartement
	for rows.Next() {
		app, err := scanAppartement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *app)
	}
	return out, rows.Err()
}

// GetAppartement récupère un appartement par id: une requête indexée, pas
// de parcours de collection.
func (r *Repository) GetAppartement(ctx context.Context, id uuid.UUID) (*Appartement, error) {
	const query = `SELECT` + appartementColumns + ` FROM appartements WHERE id = $1`
	app, err := scanAppartement(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrAppartementNotFound
		}
		return nil, err
	}
	return app, nil
}

// CreateAppartement ajoute une unité à un immeuble existant.
func (r *Repository) CreateAppartement(ctx context.Context, immeubleID uuid.UUID, numero string) (*Appartement, error) {
	const query = `
        INSERT INTO appartements (id, immeuble_id, numero, statut)
        VALUES ($1, $2, $3, 'libre')
        RETURNING` + appartementColumns

	return scanAppartement(r.pool.QueryRow(ctx, query, uuid.New(), immeubleID, strings.TrimSpace(numero)))
}

// UpdateAppartementNumero renomme une unité.
func (r *Repository) UpdateAppartementNumero(ctx context.Context, id uuid.UUID, numero string) (*Appartement, error) {
	const query = `
        UPDATE appartements SET numero = $2, maj_le = now()
        WHERE id = $1
        RETURNING` + appartementColumns

	app, err := scanAppartement(r.pool.QueryRow(ctx, query, id, strings.TrimSpace(numero)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrAppartementNotFound
		}
		return nil, err
	}
	return app, nil
}

// ListHistorique retourne l'historique d'occupation d'un appartement.
func (r *Repository) ListHistorique(ctx context.Context, appartementID uuid.UUID) ([]HistoriqueLocataire, error) {
	const query = `
        SELECT id, appartement_id, locataire_id, nom, prenom, telephone, email, date_entree, date_sortie
        FROM historique_locataires
        WHERE appartement_id = $1
        ORDER BY date_sortie ASC
    `

	rows, err := r.pool.Query(ctx, query, appartementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoriqueLocataire
	for rows.Next() {
		var h HistoriqueLocataire
		if err := rows.Scan(&h.ID, &h.AppartementID, &h.LocataireID, &h.Nom, &h.Prenom,
			&h.Telephone, &h.Email, &h.DateEntree, &h.DateSortie); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func scanImmeuble(row pgx.Row) (*Immeuble, error) {
	var imm Immeuble
	err := row.Scan(
		&imm.ID, &imm.Nom, &imm.Pays, &imm.Ville, &imm.Quartier, &imm.Type,
		&imm.NombreAppartements,
		&imm.Proprietaire.Nom, &imm.Proprietaire.Contact, &imm.Proprietaire.DateDebut,
		&imm.CreeLe, &imm.MajLe,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &imm, nil
}

func scanAppartement(row pgx.Row) (*Appartement, error) {
	var (
		app       Appartement
		locID     *uuid.UUID
		locNom    *string
		locPrenom *string
		locTel    *string
		locEmail  *string
		locEntree *time.Time
	)
	err := row.Scan(
		&app.ID, &app.ImmeubleID, &app.Numero, &app.Statut,
		&locID, &locNom, &locPrenom, &locTel, &locEmail, &locEntree,
		&app.CreeLe, &app.MajLe,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if locID != nil {
		app.LocataireActuel = &LocataireActuel{
			LocataireID: *locID,
			Nom:         derefString(locNom),
			Prenom:      derefString(locPrenom),
			Telephone:   derefString(locTel),
			Email:       locEmail,
			DateEntree:  derefTime(locEntree),
		}
	}
	return &app, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
