package locataire

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gestimmo/api/internal/db"
	"github.com/gestimmo/api/internal/immeuble"
)

const locataireColumns = `
        id, nom, prenom, telephone, email, appartement_id, date_entree,
        date_sortie, date_fin_bail, cree_par, cree_le, maj_le`

const appartementColumns = `
        id, immeuble_id, numero, statut,
        locataire_id, locataire_nom, locataire_prenom, locataire_telephone,
        locataire_email, locataire_date_entree, cree_le, maj_le`

// Repository porte la couche de synchronisation locataire⇄appartement.
// Toute écriture qui touche les deux côtés passe par une transaction
// avec verrouillage des lignes concernées.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create insère le locataire et, si un appartement est fourni,
// l'affecte dans la même transaction.
func (r *Repository) Create(ctx context.Context, input CreateInput) (*Locataire, error) {
	var out *Locataire
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
            INSERT INTO locataires (id, nom, prenom, telephone, email, date_fin_bail, cree_par)
            VALUES ($1, $2, $3, $4, $5, $6, $7)
            RETURNING`+locataireColumns,
			uuid.New(),
			strings.TrimSpace(input.Nom),
			strings.TrimSpace(input.Prenom),
			input.Telephone,
			input.Email,
			input.DateFinBail,
			input.CreePar,
		)

		loc, err := scanLocataire(row)
		if err != nil {
			return mapTelephoneUnique(err)
		}

		if input.AppartementID != nil {
			entree := time.Now().UTC()
			if input.DateEntree != nil {
				entree = *input.DateEntree
			}
			if err := r.affecterDansTx(ctx, tx, loc, input.ImmeubleID, *input.AppartementID, entree); err != nil {
				return err
			}
			loc.AppartementID = input.AppartementID
			loc.DateEntree = &entree
		}

		out = loc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetByID récupère un locataire.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Locataire, error) {
	const query = `SELECT` + locataireColumns + ` FROM locataires WHERE id = $1`
	return scanLocataire(r.pool.QueryRow(ctx, query, id))
}

// GetByTelephone récupère un locataire par numéro normalisé. C'est le
// point d'entrée de l'authentification SMS.
func (r *Repository) GetByTelephone(ctx context.Context, telephone string) (*Locataire, error) {
	const query = `SELECT` + locataireColumns + ` FROM locataires WHERE telephone = $1`
	return scanLocataire(r.pool.QueryRow(ctx, query, telephone))
}

// ListByImmeuble retourne les locataires occupant un appartement de
// l'immeuble.
func (r *Repository) ListByImmeuble(ctx context.Context, immeubleID uuid.UUID) ([]Locataire, error) {
	const query = `
        SELECT l.id, l.nom, l.prenom, l.telephone, l.email, l.appartement_id, l.date_entree,
               l.date_sortie, l.date_fin_bail, l.cree_par, l.cree_le, l.maj_le
        FROM locataires l
        JOIN appartements a ON a.id = l.appartement_id
        WHERE a.immeuble_id = $1
        ORDER BY l.nom ASC, l.prenom ASC
    `
	return r.queryList(ctx, query, immeubleID)
}

// ListSansLogement retourne les locataires sans appartement.
func (r *Repository) ListSansLogement(ctx context.Context) ([]Locataire, error) {
	const query = `SELECT` + locataireColumns + ` FROM locataires WHERE appartement_id IS NULL ORDER BY nom ASC`
	return r.queryList(ctx, query)
}

// ImmeubleDe résout l'immeuble d'un appartement.
func (r *Repository) ImmeubleDe(ctx context.Context, appartementID uuid.UUID) (uuid.UUID, error) {
	var immeubleID uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT immeuble_id FROM appartements WHERE id = $1`, appartementID).Scan(&immeubleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, immeuble.ErrAppartementNotFound
		}
		return uuid.Nil, err
	}
	return immeubleID, nil
}

// Fiche assemble locataire, appartement et immeuble en une lecture.
func (r *Repository) Fiche(ctx context.Context, id uuid.UUID) (*Fiche, error) {
	loc, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	fiche := &Fiche{Locataire: *loc}
	if loc.AppartementID == nil {
		return fiche, nil
	}

	app, err := scanAppartement(r.pool.QueryRow(ctx,
		`SELECT`+appartementColumns+` FROM appartements WHERE id = $1`, *loc.AppartementID))
	if err != nil {
		return nil, err
	}
	fiche.Appartement = app

	var imm immeuble.Immeuble
	err = r.pool.QueryRow(ctx, `
        SELECT id, nom, pays, ville, quartier, type, nombre_appartements,
               proprietaire_nom, proprietaire_contact, proprietaire_date_debut, cree_le, maj_le
        FROM immeubles WHERE id = $1
    `, app.ImmeubleID).Scan(
		&imm.ID, &imm.Nom, &imm.Pays, &imm.Ville, &imm.Quartier, &imm.Type,
		&imm.NombreAppartements,
		&imm.Proprietaire.Nom, &imm.Proprietaire.Contact, &imm.Proprietaire.DateDebut,
		&imm.CreeLe, &imm.MajLe,
	)
	if err != nil {
		return nil, err
	}
	fiche.Immeuble = &imm
	return fiche, nil
}

// Update modifie la fiche et propage l'instantané vers l'appartement
// occupé dans la même transaction.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*Locataire, error) {
	var out *Locataire
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
            UPDATE locataires
            SET nom = $2, prenom = $3, telephone = $4, email = $5, date_fin_bail = $6, maj_le = now()
            WHERE id = $1
            RETURNING`+locataireColumns,
			id,
			strings.TrimSpace(input.Nom),
			strings.TrimSpace(input.Prenom),
			input.Telephone,
			input.Email,
			input.DateFinBail,
		)

		loc, err := scanLocataire(row)
		if err != nil {
			return mapTelephoneUnique(err)
		}

		if loc.AppartementID != nil {
			if _, err := tx.Exec(ctx, `
                UPDATE appartements
                SET locataire_nom = $2, locataire_prenom = $3, locataire_telephone = $4,
                    locataire_email = $5, maj_le = now()
                WHERE id = $1 AND locataire_id = $6
            `, *loc.AppartementID, loc.Nom, loc.Prenom, loc.Telephone, loc.Email, loc.ID); err != nil {
				return err
			}
		}

		out = loc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Affecter installe un locataire sans logement dans un appartement.
// Si l'appartement est occupé, l'occupant courant est archivé et
// redevient sans logement.
func (r *Repository) Affecter(ctx context.Context, locataireID, immeubleID, appartementID uuid.UUID, entree time.Time) (*Locataire, error) {
	var out *Locataire
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		loc, err := lockLocataire(ctx, tx, locataireID)
		if err != nil {
			return err
		}
		if loc.AppartementID != nil {
			return ErrDejaLoge
		}
		if err := r.affecterDansTx(ctx, tx, loc, immeubleID, appartementID, entree); err != nil {
			return err
		}
		loc.AppartementID = &appartementID
		loc.DateEntree = &entree
		loc.DateSortie = nil
		out = loc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Demenager archive l'occupation courante puis installe le locataire
// dans le nouvel appartement, le tout dans une transaction.
func (r *Repository) Demenager(ctx context.Context, locataireID, immeubleID, appartementID uuid.UUID, date time.Time) (*Locataire, error) {
	var out *Locataire
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		loc, err := lockLocataire(ctx, tx, locataireID)
		if err != nil {
			return err
		}
		if loc.AppartementID == nil {
			return ErrSansLogement
		}

		ancien, err := lockAppartement(ctx, tx, *loc.AppartementID)
		if err != nil {
			return err
		}
		if err := archiverOccupant(ctx, tx, ancien, date); err != nil {
			return err
		}
		if err := liberer(ctx, tx, ancien.ID); err != nil {
			return err
		}

		loc.AppartementID = nil
		if err := r.affecterDansTx(ctx, tx, loc, immeubleID, appartementID, date); err != nil {
			return err
		}
		loc.AppartementID = &appartementID
		loc.DateEntree = &date
		loc.DateSortie = nil
		out = loc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Liberer archive l'occupation courante et libère l'appartement.
func (r *Repository) Liberer(ctx context.Context, locataireID uuid.UUID, sortie time.Time) (*Locataire, error) {
	var out *Locataire
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		loc, err := lockLocataire(ctx, tx, locataireID)
		if err != nil {
			return err
		}
		if loc.AppartementID == nil {
			return ErrSansLogement
		}

		app, err := lockAppartement(ctx, tx, *loc.AppartementID)
		if err != nil {
			return err
		}
		if err := archiverOccupant(ctx, tx, app, sortie); err != nil {
			return err
		}
		if err := liberer(ctx, tx, app.ID); err != nil {
			return err
		}

		loc.AppartementID = nil
		loc.DateEntree = nil
		loc.DateSortie = &sortie
		out = loc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete libère l'appartement éventuel puis supprime la fiche.
// L'historique d'occupation est conservé, il ne référence le locataire
// que par valeur.
func (r *Repository) Delete(ctx context.Context, locataireID uuid.UUID) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		loc, err := lockLocataire(ctx, tx, locataireID)
		if err != nil {
			return err
		}
		if loc.AppartementID != nil {
			app, err := lockAppartement(ctx, tx, *loc.AppartementID)
			if err != nil {
				return err
			}
			if err := archiverOccupant(ctx, tx, app, time.Now().UTC()); err != nil {
				return err
			}
			if err := liberer(ctx, tx, app.ID); err != nil {
				return err
			}
		}
		_, err = tx.Exec(ctx, `DELETE FROM locataires WHERE id = $1`, locataireID)
		return err
	})
}

// affecterDansTx verrouille l'appartement cible, archive l'occupant
// éventuel puis installe le locataire. L'appartement doit appartenir à
// l'immeuble annoncé.
func (r *Repository) affecterDansTx(ctx context.Context, tx pgx.Tx, loc *Locataire, immeubleID, appartementID uuid.UUID, entree time.Time) error {
	app, err := lockAppartement(ctx, tx, appartementID)
	if err != nil {
		return err
	}
	if app.ImmeubleID != immeubleID {
		return immeuble.ErrAppartementNotFound
	}

	if err := archiverOccupant(ctx, tx, app, entree); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
        UPDATE appartements
        SET statut = 'occupe', locataire_id = $2, locataire_nom = $3, locataire_prenom = $4,
            locataire_telephone = $5, locataire_email = $6, locataire_date_entree = $7, maj_le = now()
        WHERE id = $1
    `, app.ID, loc.ID, loc.Nom, loc.Prenom, loc.Telephone, loc.Email, entree); err != nil {
		return err
	}

	// Une réaffectation rouvre la fiche: la date de sortie saute.
	_, err = tx.Exec(ctx, `
        UPDATE locataires
        SET appartement_id = $2, date_entree = $3, date_sortie = NULL, maj_le = now()
        WHERE id = $1
    `, loc.ID, app.ID, entree)
	return err
}

// archiverOccupant fige l'occupant courant dans l'historique et remet
// sa fiche à l'état sans logement. Sans effet si l'appartement est
// libre.
func archiverOccupant(ctx context.Context, tx pgx.Tx, app *immeuble.Appartement, sortie time.Time) error {
	h, ok := ArchiveDepuisSnapshot(app, sortie)
	if !ok {
		return nil
	}

	if _, err := tx.Exec(ctx, `
        INSERT INTO historique_locataires (id, appartement_id, locataire_id, nom, prenom, telephone, email, date_entree, date_sortie)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `, h.ID, h.AppartementID, h.LocataireID, h.Nom, h.Prenom, h.Telephone, h.Email, h.DateEntree, h.DateSortie); err != nil {
		return err
	}

	_, err := tx.Exec(ctx, `
        UPDATE locataires
        SET appartement_id = NULL, date_entree = NULL, date_sortie = $2, maj_le = now()
        WHERE id = $1
    `, h.LocataireID, sortie)
	return err
}

func liberer(ctx context.Context, tx pgx.Tx, appartementID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
        UPDATE appartements
        SET statut = 'libre', locataire_id = NULL, locataire_nom = NULL, locataire_prenom = NULL,
            locataire_telephone = NULL, locataire_email = NULL, locataire_date_entree = NULL, maj_le = now()
        WHERE id = $1
    `, appartementID)
	return err
}

func lockLocataire(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*Locataire, error) {
	return scanLocataire(tx.QueryRow(ctx,
		`SELECT`+locataireColumns+` FROM locataires WHERE id = $1 FOR UPDATE`, id))
}

func lockAppartement(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*immeuble.Appartement, error) {
	app, err := scanAppartement(tx.QueryRow(ctx,
		`SELECT`+appartementColumns+` FROM appartements WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, immeuble.ErrAppartementNotFound
		}
		return nil, err
	}
	return app, nil
}

func (r *Repository) queryList(ctx context.Context, query string, args ...any) ([]Locataire, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Locataire
	for rows.Next() {
		loc, err := scanLocataire(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *loc)
	}
	return out, rows.Err()
}

func scanLocataire(row pgx.Row) (*Locataire, error) {
	var loc Locataire
	err := row.Scan(&loc.ID, &loc.Nom, &loc.Prenom, &loc.Telephone, &loc.Email,
		&loc.AppartementID, &loc.DateEntree, &loc.DateSortie, &loc.DateFinBail,
		&loc.CreePar, &loc.CreeLe, &loc.MajLe)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &loc, nil
}

func scanAppartement(row pgx.Row) (*immeuble.Appartement, error) {
	var (
		app       immeuble.Appartement
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
		app.LocataireActuel = &immeuble.LocataireActuel{
			LocataireID: *locID,
			Telephone:   deref(locTel),
			Nom:         deref(locNom),
			Prenom:      deref(locPrenom),
			Email:       locEmail,
		}
		if locEntree != nil {
			app.LocataireActuel.DateEntree = *locEntree
		}
	}
	return &app, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func mapTelephoneUnique(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && strings.Contains(pgErr.ConstraintName, "telephone") {
		return ErrTelephoneDejaUtilise
	}
	return err
}
