package compte

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gestimmo/api/internal/db"
	"github.com/gestimmo/api/internal/permission"
)

const utilisateurColumns = `
        id, nom, prenom, email, telephone, mot_de_passe_hash, role, actif, dernier_acces_le, cree_le, maj_le`

const affectationColumns = `
        immeuble_id, gestion_immeuble, gestion_locataires,
        compta_lecture, compta_ecriture, compta_export,
        stats_lecture, stats_export, suppression_immeuble`

// Repository gère les comptes backoffice, leurs affectations et les
// invitations.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateUtilisateur insère le compte et ses affectations en une
// transaction.
func (r *Repository) CreateUtilisateur(ctx context.Context, u *Utilisateur, affectations []Affectation) (*Utilisateur, error) {
	var out *Utilisateur
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		created, err := insererUtilisateur(ctx, tx, u)
		if err != nil {
			return err
		}
		if err := remplacerAffectations(ctx, tx, created.ID, affectations); err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetByEmail récupère un compte par email, insensible à la casse.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*Utilisateur, error) {
	const query = `SELECT` + utilisateurColumns + ` FROM utilisateurs WHERE lower(email) = lower($1)`
	return scanUtilisateur(r.pool.QueryRow(ctx, query, strings.TrimSpace(email)))
}

// GetByID récupère un compte.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Utilisateur, error) {
	const query = `SELECT` + utilisateurColumns + ` FROM utilisateurs WHERE id = $1`
	return scanUtilisateur(r.pool.QueryRow(ctx, query, id))
}

// List retourne tous les comptes du backoffice.
func (r *Repository) List(ctx context.Context) ([]Utilisateur, error) {
	const query = `SELECT` + utilisateurColumns + ` FROM utilisateurs ORDER BY nom ASC, prenom ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Utilisateur
	for rows.Next() {
		u, err := scanUtilisateur(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// Update modifie identité, rôle et état d'activation.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, nom, prenom, role string, actif bool) (*Utilisateur, error) {
	const query = `
        UPDATE utilisateurs
        SET nom = $2, prenom = $3, role = $4, actif = $5, maj_le = now()
        WHERE id = $1
        RETURNING` + utilisateurColumns

	return scanUtilisateur(r.pool.QueryRow(ctx, query, id,
		strings.TrimSpace(nom), strings.TrimSpace(prenom), role, actif))
}

// UpdateMotDePasse remplace l'empreinte du mot de passe.
func (r *Repository) UpdateMotDePasse(ctx context.Context, id uuid.UUID, hash string) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE utilisateurs SET mot_de_passe_hash = $2, maj_le = now() WHERE id = $1`, id, hash)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchDernierAcces horodate la dernière connexion.
func (r *Repository) TouchDernierAcces(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE utilisateurs SET dernier_acces_le = now() WHERE id = $1`, id)
	return err
}

// Delete supprime le compte et ses affectations.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM utilisateurs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceAffectations remplace l'ensemble des affectations du compte.
func (r *Repository) ReplaceAffectations(ctx context.Context, utilisateurID uuid.UUID, affectations []Affectation) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return remplacerAffectations(ctx, tx, utilisateurID, affectations)
	})
}

// ListAffectations retourne les affectations typées du compte.
func (r *Repository) ListAffectations(ctx context.Context, utilisateurID uuid.UUID) ([]Affectation, error) {
	const query = `SELECT` + affectationColumns + `
        FROM affectations_immeubles WHERE utilisateur_id = $1`

	rows, err := r.pool.Query(ctx, query, utilisateurID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Affectation
	for rows.Next() {
		a, err := scanAffectation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ChargerContexte assemble le contexte de permissions d'un compte. Une
// affectation sans aucun droit reste une appartenance: l'immeuble est
// listé mais le jeu dérive tout à faux.
func (r *Repository) ChargerContexte(ctx context.Context, utilisateurID uuid.UUID) (*permission.Contexte, error) {
	u, err := r.GetByID(ctx, utilisateurID)
	if err != nil {
		return nil, err
	}
	if !u.Actif {
		return nil, ErrNotFound
	}

	affectations, err := r.ListAffectations(ctx, utilisateurID)
	if err != nil {
		return nil, err
	}

	contexte := &permission.Contexte{
		UtilisateurID:     u.ID,
		Role:              u.Role,
		ImmeublesAssignes: make([]uuid.UUID, 0, len(affectations)),
		Jeux:              make(map[uuid.UUID]permission.Jeu, len(affectations)),
	}
	for _, a := range affectations {
		contexte.ImmeublesAssignes = append(contexte.ImmeublesAssignes, a.ImmeubleID)
		contexte.Jeux[a.ImmeubleID] = a.Jeu
	}
	return contexte, nil
}

// CreateInvitation insère l'invitation avec son empreinte de jeton.
func (r *Repository) CreateInvitation(ctx context.Context, inv *Invitation) (*Invitation, error) {
	payload, err := json.Marshal(inv.Affectations)
	if err != nil {
		return nil, err
	}

	row := r.pool.QueryRow(ctx, `
        INSERT INTO invitations (id, email, nom, prenom, telephone, role, affectations, token_hash, cree_par_id, expire_le)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id, email, nom, prenom, telephone, role, affectations, token_hash, cree_par_id, expire_le, consommee_le, cree_le
    `, uuid.New(), strings.ToLower(strings.TrimSpace(inv.Email)),
		strings.TrimSpace(inv.Nom), strings.TrimSpace(inv.Prenom), inv.Telephone,
		inv.Role, payload, inv.TokenHash, inv.CreeParID, inv.ExpireLe)

	return scanInvitation(row)
}

// ListInvitations retourne les invitations, plus récentes d'abord.
func (r *Repository) ListInvitations(ctx context.Context) ([]Invitation, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT id, email, nom, prenom, telephone, role, affectations, token_hash, cree_par_id, expire_le, consommee_le, cree_le
        FROM invitations ORDER BY cree_le DESC
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

// ConsommerInvitation valide le jeton, crée le compte et matérialise
// les affectations. Le verrou sur la ligne d'invitation garantit
// l'usage unique.
func (r *Repository) ConsommerInvitation(ctx context.Context, tokenHash string, u *Utilisateur) (*Utilisateur, error) {
	var out *Utilisateur
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		inv, err := scanInvitation(tx.QueryRow(ctx, `
            SELECT id, email, nom, prenom, telephone, role, affectations, token_hash, cree_par_id, expire_le, consommee_le, cree_le
            FROM invitations WHERE token_hash = $1 FOR UPDATE
        `, tokenHash))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrInvitationInvalide
			}
			return err
		}
		if inv.ConsommeeLe != nil {
			return ErrInvitationConsommee
		}
		if inv.EstExpiree(time.Now().UTC()) {
			return ErrInvitationExpiree
		}

		// L'identité promise par l'inviteur fait foi, pas le client.
		u.Nom = inv.Nom
		u.Prenom = inv.Prenom
		u.Telephone = inv.Telephone
		u.Email = inv.Email
		u.Role = inv.Role
		created, err := insererUtilisateur(ctx, tx, u)
		if err != nil {
			return err
		}
		if err := remplacerAffectations(ctx, tx, created.ID, inv.Affectations); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE invitations SET consommee_le = now() WHERE id = $1`, inv.ID); err != nil {
			return err
		}

		out = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func insererUtilisateur(ctx context.Context, tx pgx.Tx, u *Utilisateur) (*Utilisateur, error) {
	row := tx.QueryRow(ctx, `
        INSERT INTO utilisateurs (id, nom, prenom, email, telephone, mot_de_passe_hash, role, actif)
        VALUES ($1, $2, $3, lower($4), $5, $6, $7, TRUE)
        RETURNING`+utilisateurColumns,
		uuid.New(),
		strings.TrimSpace(u.Nom),
		strings.TrimSpace(u.Prenom),
		strings.TrimSpace(u.Email),
		u.Telephone,
		u.MotDePasseHash,
		u.Role,
	)

	created, err := scanUtilisateur(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrEmailDejaUtilise
		}
		return nil, err
	}
	return created, nil
}

func remplacerAffectations(ctx context.Context, tx pgx.Tx, utilisateurID uuid.UUID, affectations []Affectation) error {
	if _, err := tx.Exec(ctx,
		`DELETE FROM affectations_immeubles WHERE utilisateur_id = $1`, utilisateurID); err != nil {
		return err
	}
	for _, a := range affectations {
		if _, err := tx.Exec(ctx, `
            INSERT INTO affectations_immeubles (utilisateur_id, immeuble_id, gestion_immeuble, gestion_locataires,
                compta_lecture, compta_ecriture, compta_export, stats_lecture, stats_export, suppression_immeuble)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        `, utilisateurID, a.ImmeubleID,
			a.Jeu.GestionImmeuble, a.Jeu.GestionLocataires,
			a.Jeu.Comptabilite.Lecture, a.Jeu.Comptabilite.Ecriture, a.Jeu.Comptabilite.Export,
			a.Jeu.Statistiques.Lecture, a.Jeu.Statistiques.Export,
			a.Jeu.SuppressionImmeuble); err != nil {
			return err
		}
	}
	return nil
}

func scanUtilisateur(row pgx.Row) (*Utilisateur, error) {
	var u Utilisateur
	err := row.Scan(&u.ID, &u.Nom, &u.Prenom, &u.Email, &u.Telephone, &u.MotDePasseHash,
		&u.Role, &u.Actif, &u.DernierAccesLe, &u.CreeLe, &u.MajLe)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func scanAffectation(row pgx.Row) (Affectation, error) {
	var a Affectation
	err := row.Scan(&a.ImmeubleID,
		&a.Jeu.GestionImmeuble, &a.Jeu.GestionLocataires,
		&a.Jeu.Comptabilite.Lecture, &a.Jeu.Comptabilite.Ecriture, &a.Jeu.Comptabilite.Export,
		&a.Jeu.Statistiques.Lecture, &a.Jeu.Statistiques.Export,
		&a.Jeu.SuppressionImmeuble)
	return a, err
}

func scanInvitation(row pgx.Row) (*Invitation, error) {
	var (
		inv     Invitation
		payload []byte
	)
	err := row.Scan(&inv.ID, &inv.Email, &inv.Nom, &inv.Prenom, &inv.Telephone,
		&inv.Role, &payload, &inv.TokenHash,
		&inv.CreeParID, &inv.ExpireLe, &inv.ConsommeeLe, &inv.CreeLe)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &inv.Affectations); err != nil {
			return nil, err
		}
	}
	return &inv, nil
}
